package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/fortuna/internal/config"
	"github.com/MrWong99/fortuna/internal/observe"
	"github.com/MrWong99/fortuna/internal/oracle"
	"github.com/MrWong99/fortuna/internal/session"
	"github.com/MrWong99/fortuna/pkg/audio/capture"
	"github.com/MrWong99/fortuna/pkg/audio/playback"
	"github.com/MrWong99/fortuna/pkg/audio/speaker"
	"github.com/MrWong99/fortuna/pkg/provider/live"
)

// ErrSessionActive is returned by [SessionManager.Start] while another
// session is still running.
var ErrSessionActive = errors.New("app: a live session is already active")

// Hooks receive live session events. All are optional.
type Hooks struct {
	OnStateChange func(from, to session.State)
	OnSpeaking    func(speaking bool)
	OnMessage     func(ev live.Event)
}

// SessionManagerConfig holds the dependencies of a [SessionManager].
type SessionManagerConfig struct {
	Provider live.Provider
	Ready    func(ctx context.Context) error
	Live     config.LiveConfig

	// Voice selects the prebuilt voice of the master. Empty uses the
	// provider default.
	Voice   string
	Metrics *observe.Metrics

	// NewSource builds the microphone. Defaults to [capture.NewMicrophone].
	NewSource func(sampleRate, frameSize int) capture.Source

	// OpenOutput acquires the speaker. Defaults to [speaker.Open].
	OpenOutput func(sampleRate int) (playback.Device, error)
}

// SessionManager runs at most one live session at a time.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	cfg SessionManagerConfig

	mu     sync.Mutex
	active *session.Controller
}

// NewSessionManager returns a manager using the real audio devices unless
// cfg overrides them.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.NewSource == nil {
		cfg.NewSource = func(rate, frame int) capture.Source { return capture.NewMicrophone(rate, frame) }
	}
	if cfg.OpenOutput == nil {
		cfg.OpenOutput = func(rate int) (playback.Device, error) { return speaker.Open(rate) }
	}
	return &SessionManager{cfg: cfg}
}

// Start opens a new session and returns it once active. The caller waits on
// its Done channel; the manager forgets it when it terminates.
func (sm *SessionManager) Start(ctx context.Context, hooks Hooks) (*session.Controller, error) {
	sm.mu.Lock()
	if sm.active != nil {
		sm.mu.Unlock()
		return nil, ErrSessionActive
	}

	instructions := sm.cfg.Live.Instructions
	if instructions == "" {
		instructions = oracle.LiveInstructions
	}
	rate := sm.cfg.Live.PlaybackSampleRate
	ctrl, err := session.New(session.Config{
		Provider: sm.cfg.Provider,
		Source:   sm.cfg.NewSource(sm.cfg.Live.CaptureSampleRate, sm.cfg.Live.FrameSize),
		OpenOutput: func() (playback.Device, error) {
			return sm.cfg.OpenOutput(rate)
		},
		Ready: sm.cfg.Ready,
		Session: live.SessionConfig{
			Instructions: instructions,
			Voice:        sm.cfg.Voice,
			Transcribe:   sm.cfg.Live.Transcribe,
		},
		PlaybackRate:  rate,
		Metrics:       sm.cfg.Metrics,
		OnStateChange: hooks.OnStateChange,
		OnSpeaking:    hooks.OnSpeaking,
		OnMessage:     hooks.OnMessage,
	})
	if err != nil {
		sm.mu.Unlock()
		return nil, fmt.Errorf("app: %w", err)
	}
	sm.active = ctrl
	sm.mu.Unlock()

	if err := ctrl.Start(ctx); err != nil {
		sm.release(ctrl)
		return nil, err
	}
	slog.Info("live session started")

	go func() {
		<-ctrl.Done()
		sm.release(ctrl)
		slog.Info("live session ended", "state", ctrl.State(), "err", ctrl.Err())
	}()
	return ctrl, nil
}

// Active returns the running session, or nil.
func (sm *SessionManager) Active() *session.Controller {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Stop ends the running session, if any.
func (sm *SessionManager) Stop() {
	if ctrl := sm.Active(); ctrl != nil {
		ctrl.Stop()
	}
}

func (sm *SessionManager) release(ctrl *session.Controller) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.active == ctrl {
		sm.active = nil
	}
}
