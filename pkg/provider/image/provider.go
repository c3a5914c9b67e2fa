// Package image defines the Provider interface for image generation backends.
//
// Images are used for the illustrated "wanted poster" that accompanies a
// reading. Implementations must be safe for concurrent use.
package image

import (
	"context"
	"encoding/base64"
)

// Request describes the picture to generate.
type Request struct {
	// Prompt is the full text prompt.
	Prompt string

	// AspectRatio such as "3:4". Empty selects the provider default.
	AspectRatio string
}

// Image is a generated picture.
type Image struct {
	// MIMEType is the encoded image type, e.g. "image/png".
	MIMEType string

	// Data is the encoded image.
	Data []byte
}

// DataURL renders the image as an RFC 2397 data URL.
func (img *Image) DataURL() string {
	if img == nil || len(img.Data) == 0 {
		return ""
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Provider is the abstraction over any image generation backend.
type Provider interface {
	// Generate produces one image for req.
	Generate(ctx context.Context, req Request) (*Image, error)
}
