// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns a finished piece of text (a reading, a greeting) into
// raw 16-bit little-endian mono PCM that the playback scheduler can queue.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the named voice. An empty voice selects the
	// provider default. The returned Speech always carries its sample rate.
	Synthesize(ctx context.Context, text, voice string) (*Speech, error)

	// Voices returns the voice names the provider accepts.
	Voices() []string
}
