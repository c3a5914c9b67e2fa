// Package session runs a live voice conversation: microphone capture is
// streamed to a duplex model session and the model's audio is scheduled for
// gapless playback, with barge-in flushing whatever is still queued.
//
// A [Controller] drives exactly one session through the states
//
//	idle → opening → active → {interrupted → active | closed | error}
//
// There is no automatic reconnection. When the remote side rejects the
// credential the terminal error wraps [resilience.ErrReconnectRequired] so the
// caller can re-run credential setup and start a new Controller.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/fortuna/internal/observe"
	"github.com/MrWong99/fortuna/internal/resilience"
	"github.com/MrWong99/fortuna/pkg/audio"
	"github.com/MrWong99/fortuna/pkg/audio/capture"
	"github.com/MrWong99/fortuna/pkg/audio/playback"
	"github.com/MrWong99/fortuna/pkg/provider/live"
)

// ErrStopped is returned by [Controller.Start] when [Controller.Stop] is
// called before the session opened.
var ErrStopped = errors.New("session: stopped")

// State is the lifecycle state of a [Controller].
type State int

const (
	StateIdle State = iota
	StateOpening
	StateActive
	StateInterrupted
	StateClosed
	StateError
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateInterrupted:
		return "interrupted"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateClosed || s == StateError }

// Config holds the collaborators of a [Controller].
//
// Provider, Source and OpenOutput are required.
type Config struct {
	// Provider opens the duplex model session.
	Provider live.Provider

	// Source is the microphone. It is opened by Start and closed at the end
	// of the session.
	Source capture.Source

	// OpenOutput acquires the playback device for the session.
	OpenOutput func() (playback.Device, error)

	// Ready is the readiness precondition checked before anything is opened.
	// Nil means always ready.
	Ready func(ctx context.Context) error

	// Session is sent to the provider on connect.
	Session live.SessionConfig

	// PlaybackRate is the sample rate of model audio. Defaults to
	// [audio.PlaybackSampleRate].
	PlaybackRate int

	// Metrics receives live pipeline counters. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// OnStateChange is called after every transition. It runs with no
	// controller lock held.
	OnStateChange func(from, to State)

	// OnSpeaking is called with true when model audio starts and false when
	// the queue drains or is flushed. It must not block.
	OnSpeaking func(speaking bool)

	// OnMessage receives every model message after its audio was scheduled.
	// Useful for printing text and transcripts.
	OnMessage func(ev live.Event)
}

// Stats is a snapshot of session counters.
type Stats struct {
	Capture       capture.Stats
	Units         int
	Interruptions int
}

// Controller runs a single live session. All methods are safe for
// concurrent use.
type Controller struct {
	cfg Config

	mu            sync.Mutex
	state         State
	starting      bool
	err           error
	sess          live.Session
	dev           playback.Device
	sched         *playback.Scheduler
	pipe          *capture.Pipeline
	srcOpen       bool
	units         int
	interruptions int

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// New validates cfg and returns an idle Controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Provider == nil {
		return nil, errors.New("session: Provider must not be nil")
	}
	if cfg.Source == nil {
		return nil, errors.New("session: Source must not be nil")
	}
	if cfg.OpenOutput == nil {
		return nil, errors.New("session: OpenOutput must not be nil")
	}
	if cfg.PlaybackRate <= 0 {
		cfg.PlaybackRate = audio.PlaybackSampleRate
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Controller{
		cfg:     cfg,
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the terminal error, or nil while running or after a clean
// close.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the controller reaches a terminal state.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Stats returns the current counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{Units: c.units, Interruptions: c.interruptions}
	if c.pipe != nil {
		st.Capture = c.pipe.Stats()
	}
	return st
}

// Start opens the session and returns once it is active.
//
// The readiness precondition is checked first; on failure Start returns an
// error wrapping [resilience.ErrNotReady] and the controller stays idle.
// Every later failure leaves the controller in [StateError] with all
// acquired resources released. ctx bounds the opening handshake only.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle || c.starting {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: cannot start in state %s", st)
	}
	c.starting = true
	c.mu.Unlock()

	if c.cfg.Ready != nil {
		if err := c.cfg.Ready(ctx); err != nil {
			c.mu.Lock()
			c.starting = false
			c.mu.Unlock()
			if !errors.Is(err, resilience.ErrNotReady) {
				err = fmt.Errorf("%w: %w", resilience.ErrNotReady, err)
			}
			return fmt.Errorf("session: %w", err)
		}
	}

	ctx, span := observe.StartSpan(ctx, "session.Start")
	err := c.open(ctx)
	observe.EndSpan(span, err)
	if err != nil {
		c.finish(err)
		return err
	}
	return nil
}

func (c *Controller) open(ctx context.Context) error {
	if !c.transition(StateIdle, StateOpening) {
		return ErrStopped
	}
	log := observe.Logger(ctx)

	if err := c.cfg.Source.Open(); err != nil {
		return fmt.Errorf("session: open microphone: %w", err)
	}
	if !c.hold(func() { c.srcOpen = true }) {
		_ = c.cfg.Source.Close()
		return ErrStopped
	}

	dev, err := c.cfg.OpenOutput()
	if err != nil {
		return fmt.Errorf("session: open output: %w", err)
	}
	sched := playback.New(dev,
		playback.WithSampleRate(c.cfg.PlaybackRate),
		playback.WithSpeakingFunc(c.cfg.OnSpeaking),
		playback.WithUnitFunc(func(*playback.Unit) { c.unitScheduled() }),
	)
	if !c.hold(func() { c.dev, c.sched = dev, sched }) {
		_ = dev.Close()
		return ErrStopped
	}

	sess, err := c.cfg.Provider.Connect(ctx, c.cfg.Session)
	if err != nil {
		return remoteError("connect", err)
	}
	m := c.cfg.Metrics
	pipe := capture.New(c.cfg.Source, sess,
		capture.WithSendFunc(func() { m.LiveChunksSent.Add(context.Background(), 1) }),
		capture.WithDropFunc(func(error) { m.LiveChunksDropped.Add(context.Background(), 1) }),
	)
	if !c.hold(func() { c.sess, c.pipe = sess, pipe }) {
		_ = sess.Close()
		return ErrStopped
	}

	if err := c.awaitOpen(ctx, sess); err != nil {
		return err
	}

	sched.Reset()
	if err := pipe.Start(); err != nil {
		return fmt.Errorf("session: start capture: %w", err)
	}
	m.ActiveSessions.Add(ctx, 1)
	if !c.transition(StateOpening, StateActive) {
		m.ActiveSessions.Add(ctx, -1)
		_ = pipe.Stop()
		return ErrStopped
	}
	log.Info("live session active")

	go c.run(sess.Events())
	return nil
}

// awaitOpen blocks until the remote side confirms the session.
func (c *Controller) awaitOpen(ctx context.Context, sess live.Session) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("session: waiting for open: %w", ctx.Err())
		case <-c.stopped:
			return ErrStopped
		case ev, ok := <-sess.Events():
			if !ok {
				return ErrStopped
			}
			switch ev.Type {
			case live.EventOpen:
				return nil
			case live.EventError:
				return remoteError("open", ev.Err)
			case live.EventClose:
				return fmt.Errorf("session: closed before open (%d): %s", ev.CloseCode, ev.CloseReason)
			}
		}
	}
}

// run consumes session events until the session ends.
func (c *Controller) run(events <-chan live.Event) {
	for ev := range events {
		switch ev.Type {
		case live.EventMessage:
			c.handleMessage(ev)
		case live.EventClose:
			c.finish(nil)
			return
		case live.EventError:
			c.finish(remoteError("remote", ev.Err))
			return
		}
	}
	c.finish(nil)
}

func (c *Controller) handleMessage(ev live.Event) {
	c.mu.Lock()
	sched := c.sched
	c.mu.Unlock()

	if ev.Interrupted && c.transition(StateActive, StateInterrupted) {
		n := sched.Interrupt()
		c.mu.Lock()
		c.interruptions++
		c.mu.Unlock()
		c.cfg.Metrics.LiveInterruptions.Add(context.Background(), 1)
		observe.Logger(context.Background()).Debug("barge-in, playback flushed", "units", n)
		c.transition(StateInterrupted, StateActive)
	}

	for _, chunk := range ev.Audio {
		if _, err := sched.Enqueue(chunk); err != nil {
			if errors.Is(err, playback.ErrClosed) {
				return
			}
			observe.Logger(context.Background()).Warn("dropping undecodable audio chunk", "err", err)
		}
	}
	if c.cfg.OnMessage != nil {
		c.cfg.OnMessage(ev)
	}
}

// Stop ends the session and releases the microphone, the transport and the
// output device. It is safe to call in any state and more than once. A Start
// in progress returns [ErrStopped].
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stopped) })
	c.finish(nil)
}

// finish releases every acquired resource and enters the terminal state. Only
// the first call has any effect.
func (c *Controller) finish(err error) {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	from := c.state
	to := StateClosed
	if err != nil && !errors.Is(err, ErrStopped) {
		to = StateError
		c.err = err
	}
	c.state = to
	pipe, sess, sched, dev, srcOpen := c.pipe, c.sess, c.sched, c.dev, c.srcOpen
	c.mu.Unlock()

	if pipe != nil {
		_ = pipe.Stop()
	}
	if srcOpen {
		_ = c.cfg.Source.Close()
	}
	if sess != nil {
		_ = sess.Close()
	}
	if sched != nil {
		sched.Close()
	}
	if dev != nil {
		_ = dev.Close()
	}
	if from.activeLike() {
		c.cfg.Metrics.ActiveSessions.Add(context.Background(), -1)
	}

	log := observe.Logger(context.Background())
	if to == StateError {
		log.Warn("live session failed", "from", from.String(), "err", err)
	} else {
		log.Info("live session closed", "from", from.String())
	}
	c.notify(from, to)
	close(c.done)
}

func (s State) activeLike() bool { return s == StateActive || s == StateInterrupted }

// transition moves from → to if the controller is currently in from.
func (c *Controller) transition(from, to State) bool {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.mu.Unlock()
	c.notify(from, to)
	return true
}

// hold stores a freshly acquired resource. It reports false when the
// controller has already finished, in which case the caller releases it.
func (c *Controller) hold(set func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return false
	}
	set()
	return true
}

func (c *Controller) notify(from, to State) {
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(from, to)
	}
}

// unitScheduled runs under the scheduler lock.
func (c *Controller) unitScheduled() {
	c.mu.Lock()
	c.units++
	c.mu.Unlock()
	c.cfg.Metrics.LiveUnitsScheduled.Add(context.Background(), 1)
}

// remoteError wraps a transport failure. Credential rejections become
// [resilience.ErrReconnectRequired].
func remoteError(op string, err error) error {
	if err == nil {
		err = errors.New("unknown error")
	}
	if resilience.Classify(err) == resilience.KindCredentialInvalid {
		return fmt.Errorf("session: %s: %w: %w", op, resilience.ErrReconnectRequired, err)
	}
	return fmt.Errorf("session: %s: %w", op, err)
}
