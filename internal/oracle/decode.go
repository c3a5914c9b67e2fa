package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/fortuna/internal/resilience"
	"github.com/MrWong99/fortuna/pkg/provider/llm"
)

// decodeReading parses model output into dst after checking that every
// required field of schema is present, non-null and of the declared type.
// Shape violations wrap [resilience.ErrMalformedResponse].
func decodeReading(content string, schema *llm.Schema, dst any) error {
	content = stripFence(content)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return fmt.Errorf("oracle: %w: %w", resilience.ErrMalformedResponse, err)
	}
	for _, name := range schema.Required {
		raw, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("oracle: %w: missing field %q", resilience.ErrMalformedResponse, name)
		}
		if err := checkType(raw, schema.Properties[name]); err != nil {
			return fmt.Errorf("oracle: %w: field %q: %w", resilience.ErrMalformedResponse, name, err)
		}
	}
	if err := json.Unmarshal([]byte(content), dst); err != nil {
		return fmt.Errorf("oracle: %w: %w", resilience.ErrMalformedResponse, err)
	}
	return nil
}

func checkType(raw json.RawMessage, s *llm.Schema) error {
	if s == nil {
		return nil
	}
	var err error
	switch s.Type {
	case llm.TypeInteger:
		var v int
		err = json.Unmarshal(raw, &v)
	case llm.TypeNumber:
		var v float64
		err = json.Unmarshal(raw, &v)
	case llm.TypeString:
		var v string
		err = json.Unmarshal(raw, &v)
	case llm.TypeBoolean:
		var v bool
		err = json.Unmarshal(raw, &v)
	case llm.TypeArray:
		var v []json.RawMessage
		if err = json.Unmarshal(raw, &v); err == nil && s.Items != nil {
			for _, item := range v {
				if err = checkType(item, s.Items); err != nil {
					break
				}
			}
		}
	case llm.TypeObject:
		var v map[string]json.RawMessage
		err = json.Unmarshal(raw, &v)
	}
	if err != nil {
		return fmt.Errorf("want %s", s.Type)
	}
	return nil
}

// stripFence removes a Markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
