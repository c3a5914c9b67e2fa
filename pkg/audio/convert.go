package audio

import (
	"log/slog"
	"sync"
)

// Converter brings buffers to a target sample rate. It logs a warning on the
// first rate mismatch. Create one per stream.
type Converter struct {
	TargetRate     int
	warnedMismatch sync.Once
}

// Convert returns buf resampled to the target rate. If the rates already
// match, buf is returned unchanged (zero allocation).
func (c *Converter) Convert(buf Buffer) Buffer {
	if buf.SampleRate == c.TargetRate || c.TargetRate <= 0 {
		return buf
	}
	c.warnedMismatch.Do(func() {
		slog.Warn("audio sample rate mismatch: resampling",
			"from", buf.SampleRate,
			"to", c.TargetRate,
		)
	})
	return Buffer{
		Samples:    Resample(buf.Samples, buf.SampleRate, c.TargetRate),
		SampleRate: c.TargetRate,
	}
}

// Resample converts mono float samples from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate or either rate is invalid, the input is
// returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}
