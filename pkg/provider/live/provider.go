// Package live defines the Provider interface for duplex voice sessions.
//
// A live provider wraps a real-time voice model that accepts a continuous
// stream of microphone audio and answers with a stream of synthesised audio in
// a single stateful session. The session surface is deliberately small: audio
// goes in through [Session.SendRealtimeInput] and everything the remote side
// does comes back as typed [Event] values on [Session.Events].
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/fortuna/pkg/audio"
)

var (
	// ErrSessionClosed is returned by send operations after Close.
	ErrSessionClosed = errors.New("live: session closed")

	// ErrNotOpen is returned by send operations before the remote side has
	// confirmed the session.
	ErrNotOpen = errors.New("live: session not open yet")

	// ErrSendQueueFull is returned by SendRealtimeInput when the outbound
	// queue cannot take another chunk without blocking.
	ErrSendQueueFull = errors.New("live: send queue full")
)

// EventType classifies events emitted by a [Session].
type EventType int

const (
	// EventOpen is emitted once when the remote side confirms the session.
	EventOpen EventType = iota

	// EventMessage carries model output: audio, text, or an interruption.
	EventMessage

	// EventClose is emitted when the remote side closes the session cleanly.
	EventClose

	// EventError is emitted when the session fails. Err is set.
	EventError
)

// String returns the lower-case name of the event type.
func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is a single notification from a live session.
type Event struct {
	Type EventType

	// Audio holds the base64 PCM parts of a message, in arrival order. Each
	// chunk is 24 kHz mono 16-bit little-endian PCM.
	Audio []audio.EncodedChunk

	// Interrupted is set when the remote side detected barge-in and abandoned
	// its current turn. Audio already queued locally must be flushed.
	Interrupted bool

	// TurnComplete is set when the model finished its turn.
	TurnComplete bool

	// Text carries any text parts of the model turn.
	Text string

	// InputTranscript and OutputTranscript carry speech recognition results
	// for the user and the model when transcription is enabled.
	InputTranscript  string
	OutputTranscript string

	// Err is set for EventError.
	Err error

	// CloseCode and CloseReason describe an EventClose or an EventError caused
	// by the remote side closing the connection. Zero when not applicable.
	CloseCode   int
	CloseReason string
}

// SessionConfig is the initial configuration for a new live session.
type SessionConfig struct {
	// Instructions is the system-level prompt that defines the persona.
	Instructions string

	// Voice is the provider-specific prebuilt voice name. Empty selects the
	// provider default.
	Voice string

	// Transcribe enables input and output transcription events when the
	// provider supports them.
	Transcribe bool
}

// Session is an open duplex voice session. Callers must call Close when done.
type Session interface {
	// SendRealtimeInput queues one 16 kHz PCM chunk for transmission. It never
	// blocks: if the chunk cannot be queued immediately an error is returned
	// and the chunk is discarded.
	SendRealtimeInput(chunk audio.EncodedChunk) error

	// SendText sends a complete user text turn.
	SendText(ctx context.Context, text string) error

	// Events returns the event stream. The channel is closed after the final
	// EventClose or EventError, or after Close.
	Events() <-chan Event

	// Close terminates the session and releases all resources. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider opens live sessions.
type Provider interface {
	// Connect dials the remote service and sends the session configuration.
	// It returns as soon as the connection is established; EventOpen follows
	// once the remote side confirms the setup.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
