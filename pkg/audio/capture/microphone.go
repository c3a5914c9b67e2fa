package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/fortuna/pkg/audio"
)

// Compile-time interface assertion.
var _ Source = (*Microphone)(nil)

// Microphone is a [Source] reading the default input device through
// PortAudio.
type Microphone struct {
	sampleRate int
	frameSize  int

	handler atomic.Pointer[func(audio.Frame)]

	mu      sync.Mutex
	stream  *portaudio.Stream
	inited  bool
	started bool
	closed  bool
}

// NewMicrophone returns a microphone capturing mono frames of frameSize
// samples at sampleRate. Zero values select [audio.CaptureSampleRate] and
// [audio.FrameSize].
func NewMicrophone(sampleRate, frameSize int) *Microphone {
	if sampleRate <= 0 {
		sampleRate = audio.CaptureSampleRate
	}
	if frameSize <= 0 {
		frameSize = audio.FrameSize
	}
	return &Microphone{sampleRate: sampleRate, frameSize: frameSize}
}

// Open initialises PortAudio and opens the default input stream. Any failure
// is reported as [ErrDeviceDenied].
func (m *Microphone) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: initialize: %v", ErrDeviceDenied, err)
	}
	m.inited = true

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		m.terminateLocked()
		return fmt.Errorf("%w: %v", ErrDeviceDenied, err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), m.frameSize, m.process)
	if err != nil {
		m.terminateLocked()
		return fmt.Errorf("%w: open %q: %v", ErrDeviceDenied, dev.Name, err)
	}
	m.stream = stream

	slog.Info("microphone opened",
		"device", dev.Name,
		"sampleRate", m.sampleRate,
		"frameSize", m.frameSize,
	)
	return nil
}

// Start registers fn and starts the input stream.
func (m *Microphone) Start(fn func(audio.Frame)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return fmt.Errorf("capture: microphone not open")
	}
	m.handler.Store(&fn)
	if m.started {
		return nil
	}
	if err := m.stream.Start(); err != nil {
		m.handler.Store(nil)
		return fmt.Errorf("capture: start stream: %w", err)
	}
	m.started = true
	return nil
}

// Stop halts the input stream and deregisters the handler.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handler.Store(nil)
	if !m.started {
		return nil
	}
	m.started = false
	if err := m.stream.Stop(); err != nil {
		return fmt.Errorf("capture: stop stream: %w", err)
	}
	return nil
}

// Close stops capture and releases the device. It is idempotent.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.handler.Store(nil)

	var err error
	if m.stream != nil {
		if m.started {
			_ = m.stream.Stop()
			m.started = false
		}
		err = m.stream.Close()
		m.stream = nil
	}
	m.terminateLocked()
	if err != nil {
		return fmt.Errorf("capture: close stream: %w", err)
	}
	return nil
}

func (m *Microphone) terminateLocked() {
	if m.inited {
		_ = portaudio.Terminate()
		m.inited = false
	}
}

// process is the PortAudio callback. in is reused by PortAudio between calls.
// It must not take m.mu: stream.Stop waits for the callback to return.
func (m *Microphone) process(in []float32) {
	if fn := m.handler.Load(); fn != nil {
		(*fn)(audio.Frame(in))
	}
}
