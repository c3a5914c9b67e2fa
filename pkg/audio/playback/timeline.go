package playback

import (
	"io"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/fortuna/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ Device    = (*Timeline)(nil)
	_ io.Reader = (*Timeline)(nil)
)

// Timeline is a software mixer that renders scheduled units into a continuous
// stream of 16-bit little-endian mono PCM. The output clock is the number of
// samples consumed through [Timeline.Read]; gaps between units are filled
// with silence, so Read never blocks.
//
// A Timeline is meant to be handed to a pull-based audio player that calls
// Read from its own goroutine. All methods are safe for concurrent use.
type Timeline struct {
	rate int
	conv audio.Converter

	mu     sync.Mutex
	pos    int64
	units  []*timelineUnit
	closed bool
}

type timelineUnit struct {
	unit    *Unit
	start   int64
	samples []float32
	onEnded func()
}

func (tu *timelineUnit) end() int64 { return tu.start + int64(len(tu.samples)) }

// NewTimeline returns a Timeline that renders at sampleRate.
func NewTimeline(sampleRate int) *Timeline {
	if sampleRate <= 0 {
		sampleRate = audio.PlaybackSampleRate
	}
	return &Timeline{
		rate: sampleRate,
		conv: audio.Converter{TargetRate: sampleRate},
	}
}

// SampleRate returns the rate at which the timeline renders.
func (t *Timeline) SampleRate() int { return t.rate }

// Now returns the amount of audio consumed so far.
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samplesToDuration(t.pos)
}

// Schedule places u on the timeline. Buffers at a different sample rate are
// resampled. Units scheduled on a closed timeline are dropped.
func (t *Timeline) Schedule(u *Unit, onEnded func()) {
	buf := t.conv.Convert(u.Buffer)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.units = append(t.units, &timelineUnit{
		unit:    u,
		start:   t.durationToSamples(u.Start),
		samples: buf.Samples,
		onEnded: onEnded,
	})
}

// Stop removes u from the timeline without invoking its end callback.
func (t *Timeline) Stop(u *Unit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.units = slices.DeleteFunc(t.units, func(tu *timelineUnit) bool {
		return tu.unit == u
	})
}

// Pending returns the number of units that have not yet finished.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.units)
}

// Read renders the next len(p)/2 samples into p and advances the clock. It
// returns io.EOF once the timeline is closed. End callbacks of units that
// finished during this read are invoked after the internal lock is released.
func (t *Timeline) Read(p []byte) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.EOF
	}

	n := int64(len(p) / 2)
	if n == 0 {
		t.mu.Unlock()
		return 0, nil
	}

	from, to := t.pos, t.pos+n
	mix := make([]float32, n)
	for _, tu := range t.units {
		lo := max(tu.start, from)
		hi := min(tu.end(), to)
		for i := lo; i < hi; i++ {
			mix[i-from] += tu.samples[i-tu.start]
		}
	}
	for i, s := range mix {
		v := clampPCM16(s)
		p[2*i] = byte(v)
		p[2*i+1] = byte(v >> 8)
	}
	t.pos = to

	var ended []func()
	t.units = slices.DeleteFunc(t.units, func(tu *timelineUnit) bool {
		if tu.end() > to {
			return false
		}
		if tu.onEnded != nil {
			ended = append(ended, tu.onEnded)
		}
		return true
	})
	t.mu.Unlock()

	for _, fn := range ended {
		fn()
	}
	return int(n * 2), nil
}

// Advance consumes d worth of audio and discards it. It is equivalent to a
// Read of the corresponding size and exists for offline rendering.
func (t *Timeline) Advance(d time.Duration) error {
	n := t.durationToSamples(d)
	if n <= 0 {
		return nil
	}
	_, err := t.Read(make([]byte, n*2))
	return err
}

// Close drops all pending units without invoking their callbacks. Subsequent
// reads return io.EOF. Close is idempotent.
func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.units = nil
	return nil
}

func (t *Timeline) samplesToDuration(n int64) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(t.rate)
}

func (t *Timeline) durationToSamples(d time.Duration) int64 {
	return int64(math.Round(d.Seconds() * float64(t.rate)))
}

func clampPCM16(s float32) int16 {
	v := s * 32768
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
