// Package mock provides in-memory mock implementations of [live.Provider] and
// [live.Session] for use in unit tests.
//
// All mocks are safe for concurrent use. A test drives the remote side of a
// session by calling [Session.Emit]; chunks sent by the code under test are
// recorded and can be inspected with [Session.Sent].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/fortuna/pkg/audio"
	"github.com/MrWong99/fortuna/pkg/provider/live"
)

// Compile-time interface assertions.
var (
	_ live.Provider = (*Provider)(nil)
	_ live.Session  = (*Session)(nil)
)

// Provider is a mock implementation of [live.Provider].
type Provider struct {
	mu sync.Mutex

	// Session is returned by [Provider.Connect]. If nil, a new Session is
	// created on every call.
	Session *Session

	// ConnectErr is returned by [Provider.Connect] when non-nil.
	ConnectErr error

	// Configs records every SessionConfig passed to Connect.
	Configs []live.SessionConfig
}

// Connect implements [live.Provider].
func (p *Provider) Connect(_ context.Context, cfg live.SessionConfig) (live.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Configs = append(p.Configs, cfg)
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// ConnectCalls returns the number of Connect invocations so far.
func (p *Provider) ConnectCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Configs)
}

// Session is a mock [live.Session].
type Session struct {
	mu     sync.Mutex
	events chan live.Event
	sent   []audio.EncodedChunk
	texts  []string
	closed bool
	open   bool

	// SendErr, when non-nil, is returned by SendRealtimeInput.
	SendErr error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewSession returns a session whose event channel buffers 64 events.
func NewSession() *Session {
	return &Session{events: make(chan live.Event, 64)}
}

// Emit delivers ev to the consumer as if it came from the remote side.
// EventOpen marks the session open; EventClose and EventError close the event
// channel after delivery. Emit on a closed session is a no-op.
func (s *Session) Emit(ev live.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if ev.Type == live.EventOpen {
		s.open = true
	}
	s.events <- ev
	if ev.Type == live.EventClose || ev.Type == live.EventError {
		s.closed = true
		close(s.events)
	}
}

// SendRealtimeInput implements [live.Session].
func (s *Session) SendRealtimeInput(chunk audio.EncodedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return live.ErrSessionClosed
	}
	if !s.open {
		return live.ErrNotOpen
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	s.sent = append(s.sent, chunk)
	return nil
}

// SendText implements [live.Session].
func (s *Session) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return live.ErrSessionClosed
	}
	s.texts = append(s.texts, text)
	return nil
}

// Events implements [live.Session].
func (s *Session) Events() <-chan live.Event { return s.events }

// Close implements [live.Session]. It closes the event channel.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Sent returns a copy of the chunks accepted by SendRealtimeInput.
func (s *Session) Sent() []audio.EncodedChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.EncodedChunk, len(s.sent))
	copy(out, s.sent)
	return out
}

// Texts returns a copy of the text turns sent with SendText.
func (s *Session) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

// Closed reports whether Close was called or the remote side closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CloseCalls returns the number of Close calls.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose
}
