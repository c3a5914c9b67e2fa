package llm

// Message represents a single message in a conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// SchemaType is the JSON type of a [Schema] node.
type SchemaType string

// Schema node types.
const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
)

// Schema is a provider-neutral subset of JSON Schema sufficient to describe
// structured readings.
type Schema struct {
	Type        SchemaType
	Description string

	// Properties and Required apply to objects.
	Properties map[string]*Schema
	Required   []string

	// Items applies to arrays.
	Items *Schema
}

// JSONSchema renders s as a JSON Schema document.
func (s *Schema) JSONSchema() map[string]any {
	if s == nil {
		return nil
	}
	out := map[string]any{"type": string(s.Type)}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.JSONSchema()
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	if s.Items != nil {
		out["items"] = s.Items.JSONSchema()
	}
	return out
}

// String returns a string schema with the given description.
func String(desc string) *Schema { return &Schema{Type: TypeString, Description: desc} }

// Integer returns an integer schema with the given description.
func Integer(desc string) *Schema { return &Schema{Type: TypeInteger, Description: desc} }

// StringArray returns an array-of-strings schema with the given description.
func StringArray(desc string) *Schema {
	return &Schema{Type: TypeArray, Description: desc, Items: &Schema{Type: TypeString}}
}
