// Package capture turns microphone input into encoded chunks for a live
// session.
//
// A [Source] delivers fixed-size frames of mono float samples from its own
// audio thread. A [Pipeline] encodes each frame with [audio.EncodePCM] and
// hands it to a [Sink] without blocking: if the sink cannot take the chunk
// right away (not connected yet, closing, or congested) the chunk is dropped
// and counted.
package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/fortuna/pkg/audio"
)

// ErrDeviceDenied is returned when the input device cannot be acquired,
// either because none is available or because access was refused.
var ErrDeviceDenied = audio.ErrDeviceDenied

// Source is an audio input device producing mono frames.
//
// Open acquires the device and must wrap [ErrDeviceDenied] when access is
// refused. Start registers fn and begins delivering frames; fn is invoked
// sequentially from the device thread and must return quickly. The frame
// passed to fn is only valid for the duration of the call. Stop deregisters
// fn; Close releases the device.
type Source interface {
	Open() error
	Start(fn func(audio.Frame)) error
	Stop() error
	Close() error
}

// Sink accepts encoded chunks for transmission. SendRealtimeInput must not
// block; it returns an error when the chunk was not accepted.
type Sink interface {
	SendRealtimeInput(chunk audio.EncodedChunk) error
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Frames  uint64
	Sent    uint64
	Dropped uint64
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithDropFunc registers fn to be called for every dropped chunk. It runs on
// the device thread.
func WithDropFunc(fn func(err error)) Option {
	return func(p *Pipeline) { p.onDrop = fn }
}

// WithSendFunc registers fn to be called for every chunk accepted by the sink.
// It runs on the device thread.
func WithSendFunc(fn func()) Option {
	return func(p *Pipeline) { p.onSend = fn }
}

// Pipeline pumps frames from a [Source] to a [Sink].
//
// All exported methods are safe for concurrent use.
type Pipeline struct {
	src  Source
	sink Sink

	onDrop func(error)
	onSend func()

	frames  atomic.Uint64
	sent    atomic.Uint64
	dropped atomic.Uint64

	running  atomic.Bool
	mu       sync.Mutex
	started  bool
	warnOnce sync.Once
}

// New creates a Pipeline. The source must already be open.
func New(src Source, sink Sink, opts ...Option) *Pipeline {
	p := &Pipeline{src: src, sink: sink}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start registers the frame handler with the source. Calling Start on a
// running pipeline is a no-op.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	p.running.Store(true)
	if err := p.src.Start(p.handle); err != nil {
		p.running.Store(false)
		return err
	}
	p.started = true
	return nil
}

// Stop deregisters the handler. Frames delivered after Stop returns are
// ignored. It is safe to call more than once.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running.Store(false)
	if !p.started {
		return nil
	}
	p.started = false
	return p.src.Stop()
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Frames:  p.frames.Load(),
		Sent:    p.sent.Load(),
		Dropped: p.dropped.Load(),
	}
}

func (p *Pipeline) handle(frame audio.Frame) {
	if !p.running.Load() || len(frame) == 0 {
		return
	}
	p.frames.Add(1)

	chunk := audio.EncodePCM(frame)
	if err := p.sink.SendRealtimeInput(chunk); err != nil {
		p.dropped.Add(1)
		p.warnOnce.Do(func() {
			slog.Warn("capture: dropping audio chunk", "err", err)
		})
		if p.onDrop != nil {
			p.onDrop(err)
		}
		return
	}
	p.sent.Add(1)
	if p.onSend != nil {
		p.onSend()
	}
}
