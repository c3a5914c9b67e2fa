package tts

import (
	"strconv"
	"strings"
	"time"
)

// Speech is synthesised audio.
type Speech struct {
	// PCM holds 16-bit signed little-endian mono samples.
	PCM []byte

	// SampleRate is the PCM sample rate in Hz.
	SampleRate int

	// MIMEType is the type reported by the backend,
	// e.g. "audio/L16;codec=pcm;rate=24000".
	MIMEType string
}

// Duration returns the playback length of the speech.
func (s *Speech) Duration() time.Duration {
	if s == nil || s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.PCM)/2) * time.Second / time.Duration(s.SampleRate)
}

// RateFromMIME extracts the "rate=" parameter from a PCM MIME type. It returns
// def when the parameter is absent or malformed.
func RateFromMIME(mime string, def int) int {
	for _, param := range strings.Split(mime, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
