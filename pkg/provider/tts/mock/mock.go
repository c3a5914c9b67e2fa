// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio to consumers and to verify that the
// correct text and voice are passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Speech: &tts.Speech{PCM: pcm, SampleRate: 24000},
//	}
//	speech, _ := p.Synthesize(ctx, "Ahoy", "Puck")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/fortuna/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the voice passed to Synthesize.
	Voice string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Speech is returned by Synthesize. May be nil (returns nil, nil).
	Speech *tts.Speech

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// VoiceList is returned by Voices.
	VoiceList []string

	// --- Call records (read after test) ---

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns Speech or SynthesizeErr.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) (*tts.Speech, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	return p.Speech, nil
}

// Voices returns VoiceList.
func (p *Provider) Voices() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.VoiceList
}

// Calls returns the number of Synthesize invocations so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}
