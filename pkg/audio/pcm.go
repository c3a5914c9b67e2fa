package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

var warnOddBytes sync.Once

// EncodePCM converts float samples to 16-bit little-endian PCM and returns it
// as base64 text. Each sample is multiplied by 32768 and truncated to int16.
// There is no clipping guard: values outside [-1, 1) wrap, so callers must
// keep their input normalised.
func EncodePCM(samples []float32) EncodedChunk {
	return EncodedChunk(base64.StdEncoding.EncodeToString(Float32ToPCM16(samples)))
}

// Float32ToPCM16 converts float samples to little-endian int16 PCM bytes using
// the same scaling as [EncodePCM].
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(int32(s * 32768))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodeBase64 decodes an encoded chunk to raw bytes. It performs no
// interpretation of the payload.
func DecodeBase64(chunk EncodedChunk) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(string(chunk))
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64: %w", err)
	}
	return raw, nil
}

// BytesToBuffer interprets raw as 16-bit little-endian signed PCM and returns
// a mono buffer at sampleRate with each sample divided by 32768. A trailing odd
// byte is ignored.
func BytesToBuffer(raw []byte, sampleRate int) Buffer {
	if len(raw)%2 != 0 {
		warnOddBytes.Do(func() {
			slog.Warn("audio: odd byte count in PCM data, ignoring trailing byte",
				"bytes", len(raw),
				"sampleRate", sampleRate,
			)
		})
	}
	n := len(raw) / 2
	samples := make([]float32, n)
	for i := range n {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float32(v) / 32768.0
	}
	return Buffer{Samples: samples, SampleRate: sampleRate}
}

// DecodeChunk is DecodeBase64 followed by BytesToBuffer.
func DecodeChunk(chunk EncodedChunk, sampleRate int) (Buffer, error) {
	raw, err := DecodeBase64(chunk)
	if err != nil {
		return Buffer{}, err
	}
	return BytesToBuffer(raw, sampleRate), nil
}
