// Package speaker plays scheduled audio through the default system output
// device using oto.
//
// oto permits a single audio context per process, so the context is created
// lazily on first use and shared by every [Speaker]. The first speaker opened
// fixes the device rate; later speakers render at that rate and their
// timelines resample whatever is scheduled on them.
package speaker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/fortuna/pkg/audio"
	"github.com/MrWong99/fortuna/pkg/audio/playback"
)

// Compile-time interface assertion.
var _ playback.Device = (*Speaker)(nil)

var (
	ctxOnce sync.Once
	otoCtx  *oto.Context
	ctxErr  error

	outputRate deviceRate
)

// deviceRate records the sample rate the output device was opened at.
type deviceRate struct {
	mu   sync.Mutex
	rate int
}

// claim returns the device rate, fixing it at requested on first use.
func (d *deviceRate) claim(requested int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rate == 0 {
		d.rate = requested
	}
	return d.rate
}

// sharedContext returns the process-wide oto context and its sample rate,
// creating it at requested on first use.
func sharedContext(requested int) (*oto.Context, int, error) {
	rate := outputRate.claim(requested)
	ctxOnce.Do(func() {
		opts := &oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
		}
		switch runtime.GOOS {
		case "darwin":
			opts.BufferSize = 100 * time.Millisecond
		default:
			opts.BufferSize = 50 * time.Millisecond
		}

		c, ready, err := oto.NewContext(opts)
		if err != nil {
			ctxErr = fmt.Errorf("speaker: create audio context: %w", err)
			return
		}
		select {
		case <-ready:
		case <-time.After(5 * time.Second):
			ctxErr = fmt.Errorf("speaker: audio context not ready after 5s")
			return
		}
		otoCtx = c
		slog.Debug("speaker: audio context ready", "sampleRate", rate, "bufferSize", opts.BufferSize)
	})
	if ctxErr != nil {
		return nil, 0, ctxErr
	}
	if rate != requested {
		slog.Debug("speaker: resampling to device rate", "requested", requested, "device", rate)
	}
	return otoCtx, rate, nil
}

// Speaker is a [playback.Device] that renders a [playback.Timeline] to the
// system output. The timeline clock advances as oto pulls samples.
type Speaker struct {
	*playback.Timeline

	player    *oto.Player
	closeOnce sync.Once
	closeErr  error
}

// Open acquires the output device and starts playback of an initially silent
// timeline. sampleRate is honoured only by the first speaker of the process;
// see [Speaker.SampleRate] for the rate actually used.
func Open(sampleRate int) (*Speaker, error) {
	c, rate, err := sharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	tl := playback.NewTimeline(rate)
	p := c.NewPlayer(tl)
	p.Play()
	return &Speaker{Timeline: tl, player: p}, nil
}

// Close stops playback and releases the player. It is idempotent.
func (s *Speaker) Close() error {
	s.closeOnce.Do(func() {
		_ = s.Timeline.Close()
		s.closeErr = s.player.Close()
	})
	return s.closeErr
}

// PlayPCM plays a complete buffer of 16-bit little-endian mono PCM at
// sampleRate and blocks until it has finished or ctx is cancelled.
func PlayPCM(ctx context.Context, pcm []byte, sampleRate int) error {
	buf := audio.BytesToBuffer(pcm, sampleRate)
	if buf.Len() == 0 {
		return nil
	}

	spk, err := Open(sampleRate)
	if err != nil {
		return err
	}
	defer spk.Close()

	done := make(chan struct{})
	var once sync.Once
	sched := playback.New(spk, playback.WithSpeakingFunc(func(speaking bool) {
		if !speaking {
			once.Do(func() { close(done) })
		}
	}))
	defer sched.Close()

	if _, err := sched.EnqueueBuffer(buf); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		sched.Interrupt()
		return ctx.Err()
	}
}
