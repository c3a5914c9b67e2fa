// Package playback schedules decoded model audio for gapless output.
//
// A [Scheduler] keeps a per-session timeline cursor: every new unit starts at
// max(cursor, now) on the output clock and advances the cursor by its
// duration, so consecutive chunks play back-to-back regardless of network
// jitter. [Scheduler.Interrupt] implements barge-in by stopping every unit that
// has not finished and resetting the cursor.
//
// The output clock is abstracted by [Output]. [Timeline] is the in-process
// implementation used with real speakers and in tests.
package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/fortuna/pkg/audio"
)

// ErrClosed is returned by [Scheduler.Enqueue] after [Scheduler.Close].
var ErrClosed = errors.New("playback: scheduler closed")

// Unit is a decoded audio buffer with a fixed start time on the output clock.
// A Unit is owned by the scheduler from enqueue until it ends or is stopped.
type Unit struct {
	Buffer audio.Buffer
	Start  time.Duration
}

// End returns the time at which the unit finishes playing.
func (u *Unit) End() time.Duration { return u.Start + u.Buffer.Duration() }

// Output is a clocked audio sink that can play units at scheduled times.
//
// Schedule must not block and must invoke onEnded at most once, after the
// unit has played to completion. Stop cancels a unit; onEnded is not invoked
// for stopped units. onEnded must not be invoked from within Schedule or Stop,
// nor while holding a lock that Schedule or Stop acquire.
type Output interface {
	// Now returns the current position of the output clock.
	Now() time.Duration

	// Schedule arranges for u to start playing at u.Start.
	Schedule(u *Unit, onEnded func())

	// Stop cancels u whether or not it has started.
	Stop(u *Unit)
}

// Device is an [Output] backed by a physical or virtual sink that must be
// released when the session ends.
type Device interface {
	Output
	Close() error
}

// Option configures a [Scheduler] during construction.
type Option func(*Scheduler)

// WithSampleRate sets the sample rate used to decode incoming chunks.
// Defaults to [audio.PlaybackSampleRate].
func WithSampleRate(rate int) Option {
	return func(s *Scheduler) {
		if rate > 0 {
			s.rate = rate
		}
	}
}

// WithSpeakingFunc registers fn to be called with true when the first unit
// becomes active and with false when the last active unit ends or is flushed.
// fn is called while the scheduler lock is held and must not call back into
// the scheduler.
func WithSpeakingFunc(fn func(speaking bool)) Option {
	return func(s *Scheduler) {
		s.onSpeaking = fn
	}
}

// WithUnitFunc registers fn to be called for every scheduled unit. It is
// intended for metrics.
func WithUnitFunc(fn func(u *Unit)) Option {
	return func(s *Scheduler) {
		s.onUnit = fn
	}
}

// Scheduler places decoded audio units on an [Output] timeline.
//
// All exported methods are safe for concurrent use. Enqueue and Interrupt are
// serialised by a single mutex so a flush can never interleave with a
// half-finished scheduling step.
type Scheduler struct {
	out  Output
	rate int

	mu         sync.Mutex
	cursor     time.Duration
	active     map[*Unit]struct{}
	closed     bool
	onSpeaking func(bool)
	onUnit     func(*Unit)
}

// New creates a Scheduler writing to out. The cursor starts at zero.
func New(out Output, opts ...Option) *Scheduler {
	s := &Scheduler{
		out:    out,
		rate:   audio.PlaybackSampleRate,
		active: make(map[*Unit]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue decodes chunk and schedules it right after everything already
// queued. An empty chunk, or one that decodes to zero samples, is a no-op and
// returns (nil, nil). A malformed chunk returns an error and schedules
// nothing.
func (s *Scheduler) Enqueue(chunk audio.EncodedChunk) (*Unit, error) {
	if chunk == "" {
		return nil, nil
	}
	buf, err := audio.DecodeChunk(chunk, s.rate)
	if err != nil {
		return nil, err
	}
	return s.EnqueueBuffer(buf)
}

// EnqueueBuffer schedules an already decoded buffer. The unit starts at
// max(cursor, now) and the cursor is advanced by the buffer's duration before
// EnqueueBuffer returns.
func (s *Scheduler) EnqueueBuffer(buf audio.Buffer) (*Unit, error) {
	if buf.Len() == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	start := max(s.cursor, s.out.Now())
	u := &Unit{Buffer: buf, Start: start}
	s.cursor = start + buf.Duration()

	wasIdle := len(s.active) == 0
	s.active[u] = struct{}{}
	s.out.Schedule(u, func() { s.ended(u) })

	if s.onUnit != nil {
		s.onUnit(u)
	}
	if wasIdle && s.onSpeaking != nil {
		s.onSpeaking(true)
	}
	return u, nil
}

// ended is the natural-completion callback for u.
func (s *Scheduler) ended(u *Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[u]; !ok {
		return
	}
	delete(s.active, u)
	if len(s.active) == 0 && s.onSpeaking != nil {
		s.onSpeaking(false)
	}
}

// Interrupt stops every active unit, clears the active set and resets the
// cursor to zero. It returns the number of units that were stopped. Audio
// enqueued after Interrupt returns starts at the current output time.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interruptLocked()
}

func (s *Scheduler) interruptLocked() int {
	n := len(s.active)
	for u := range s.active {
		s.out.Stop(u)
	}
	clear(s.active)
	s.cursor = 0
	if n > 0 && s.onSpeaking != nil {
		s.onSpeaking(false)
	}
	return n
}

// Reset sets the cursor to zero without touching active units. It is called
// when a new session opens on a fresh output.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = 0
}

// Cursor returns the time at which the next enqueued unit would start if the
// output clock has not passed it.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Active returns the number of units scheduled or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Speaking reports whether any unit is scheduled or playing.
func (s *Scheduler) Speaking() bool {
	return s.Active() > 0
}

// Close flushes all active units and rejects further enqueues. It is safe to
// call more than once.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.interruptLocked()
}
