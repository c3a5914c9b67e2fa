// Package mock provides in-memory mock implementations of the audio device
// interfaces ([capture.Source] and [playback.Device]) for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts, and they expose exported fields that the
// test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{}
//	pipe := capture.New(src, sink)
//	_ = pipe.Start()
//	src.Emit(make(audio.Frame, audio.FrameSize))
package mock

import (
	"sync"

	"github.com/MrWong99/fortuna/pkg/audio"
	"github.com/MrWong99/fortuna/pkg/audio/capture"
	"github.com/MrWong99/fortuna/pkg/audio/playback"
)

// Compile-time interface assertions.
var (
	_ capture.Source  = (*Source)(nil)
	_ playback.Device = (*Device)(nil)
)

// ─── Source ──────────────────────────────────────────────────────────────────

// Source is a mock implementation of [capture.Source]. Frames are injected
// with [Source.Emit].
type Source struct {
	mu sync.Mutex

	// OpenErr is returned by [Source.Open].
	OpenErr error

	// StartErr is returned by [Source.Start].
	StartErr error

	handler func(audio.Frame)

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Open implements [capture.Source]. Returns OpenErr.
func (s *Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountOpen++
	return s.OpenErr
}

// Start implements [capture.Source]. Records fn unless StartErr is set.
func (s *Source) Start(fn func(audio.Frame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartErr != nil {
		return s.StartErr
	}
	s.handler = fn
	return nil
}

// Stop implements [capture.Source]. Deregisters the handler.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	s.handler = nil
	return nil
}

// Close implements [capture.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.handler = nil
	return nil
}

// Emit delivers frame to the registered handler, as the device thread would.
// It reports whether a handler was registered.
func (s *Source) Emit(frame audio.Frame) bool {
	s.mu.Lock()
	fn := s.handler
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(frame)
	return true
}

// Started reports whether a handler is currently registered.
func (s *Source) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler != nil
}

// ─── Device ──────────────────────────────────────────────────────────────────

// Device is a mock [playback.Device] built on a [playback.Timeline]. The
// clock only advances when the test reads from or advances the timeline.
type Device struct {
	*playback.Timeline

	mu sync.Mutex

	// CloseErr is returned by [Device.Close].
	CloseErr error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewDevice returns a Device rendering at sampleRate.
func NewDevice(sampleRate int) *Device {
	return &Device{Timeline: playback.NewTimeline(sampleRate)}
}

// Close implements [playback.Device].
func (d *Device) Close() error {
	d.mu.Lock()
	d.CallCountClose++
	err := d.CloseErr
	d.mu.Unlock()
	_ = d.Timeline.Close()
	return err
}

// Closed reports whether Close was called at least once.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCountClose > 0
}
