// Package gemini provides a TTS provider backed by the Gemini speech
// generation models.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/MrWong99/fortuna/pkg/audio"
	"github.com/MrWong99/fortuna/pkg/provider"
	"github.com/MrWong99/fortuna/pkg/provider/googleai"
	"github.com/MrWong99/fortuna/pkg/provider/tts"
)

const (
	// DefaultModel is used when New is called with an empty model name.
	DefaultModel = "gemini-2.5-flash-preview-tts"

	// DefaultVoice is the prebuilt voice used when none is requested.
	DefaultVoice = "Puck"
)

// prebuiltVoices lists the voices the speech models accept.
var prebuiltVoices = []string{
	"Puck", "Charon", "Kore", "Fenrir", "Aoede",
	"Leda", "Orus", "Zephyr", "Enceladus", "Algenib",
}

var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider.
type Provider struct {
	client *genai.Client
	model  string
}

// New constructs a Gemini TTS Provider.
func New(ctx context.Context, apiKey, model string, opts ...googleai.ClientOption) (*Provider, error) {
	if model == "" {
		model = DefaultModel
	}
	client, err := googleai.NewClient(ctx, apiKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini tts: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Voices implements tts.Provider.
func (p *Provider) Voices() []string {
	out := make([]string, len(prebuiltVoices))
	copy(out, prebuiltVoices)
	return out
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) (*tts.Speech, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("gemini tts: text must not be empty")
	}
	if voice == "" {
		voice = DefaultVoice
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini tts: generate content: %w", googleai.MapError(err))
	}
	if err := googleai.CheckBlocked(resp); err != nil {
		return nil, fmt.Errorf("gemini tts: %w", err)
	}

	speech := &tts.Speech{}
	for _, part := range googleai.Parts(resp) {
		if part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		if speech.MIMEType == "" {
			speech.MIMEType = part.InlineData.MIMEType
		}
		speech.PCM = append(speech.PCM, part.InlineData.Data...)
	}
	if len(speech.PCM) == 0 {
		return nil, fmt.Errorf("gemini tts: %w", provider.ErrEmptyResponse)
	}
	speech.SampleRate = tts.RateFromMIME(speech.MIMEType, audio.PlaybackSampleRate)
	return speech, nil
}
