package tts

import (
	"testing"
	"time"
)

func TestRateFromMIME(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mime string
		want int
	}{
		{"audio/L16;codec=pcm;rate=24000", 24000},
		{"audio/pcm; rate=16000", 16000},
		{"audio/pcm", 24000},
		{"audio/pcm;rate=abc", 24000},
		{"audio/pcm;rate=-5", 24000},
		{"", 24000},
	}
	for _, tt := range tests {
		if got := RateFromMIME(tt.mime, 24000); got != tt.want {
			t.Errorf("RateFromMIME(%q) = %d, want %d", tt.mime, got, tt.want)
		}
	}
}

func TestSpeech_Duration(t *testing.T) {
	t.Parallel()

	s := &Speech{PCM: make([]byte, 48000), SampleRate: 24000}
	if got := s.Duration(); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
	var nilSpeech *Speech
	if nilSpeech.Duration() != 0 {
		t.Error("nil speech should have zero duration")
	}
}
