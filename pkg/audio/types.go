package audio

import (
	"errors"
	"time"
)

// ErrDeviceDenied is returned when an audio device cannot be acquired,
// including when the operating system refuses microphone access.
var ErrDeviceDenied = errors.New("audio: device unavailable or access denied")

// Sample rates used by the live voice pipeline.
const (
	// CaptureSampleRate is the rate at which microphone audio is captured and
	// sent to the remote model.
	CaptureSampleRate = 16000

	// PlaybackSampleRate is the rate of the PCM audio streamed back by the
	// remote model.
	PlaybackSampleRate = 24000

	// FrameSize is the number of mono samples in one captured frame.
	FrameSize = 4096

	// PCMMimeType is the MIME type announced for outbound capture chunks.
	PCMMimeType = "audio/pcm;rate=16000"
)

// EncodedChunk is base64 text of 16-bit little-endian mono PCM. It is the only
// audio representation that crosses the network boundary.
type EncodedChunk string

// Frame is a fixed-length block of float samples captured from an input
// device. Samples are nominally in [-1, 1].
type Frame []float32

// Buffer is decoded mono audio ready to be scheduled for playback.
type Buffer struct {
	// Samples holds the normalised float samples.
	Samples []float32

	// SampleRate in Hz (24000 for model output).
	SampleRate int
}

// Len returns the number of samples in the buffer.
func (b Buffer) Len() int { return len(b.Samples) }

// Duration returns the playback length of the buffer. A buffer with a
// non-positive sample rate has zero duration.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}
