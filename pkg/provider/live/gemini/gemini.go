// Package gemini implements the live.Provider interface for Google's Gemini
// Live API.
//
// It establishes a bidirectional WebSocket connection to the Gemini Live
// endpoint and exchanges JSON messages according to the BidiGenerateContent
// protocol. Microphone audio is transmitted as base64 PCM media chunks; model
// audio, interruptions and transcripts are surfaced as live.Event values.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/fortuna/pkg/audio"
	"github.com/MrWong99/fortuna/pkg/provider"
	"github.com/MrWong99/fortuna/pkg/provider/live"
)

// Compile-time assertions that Provider and session satisfy the live interfaces.
var _ live.Provider = (*Provider)(nil)
var _ live.Session = (*session)(nil)

const (
	defaultModel   = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultVoice   = "Puck"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	defaultSendQueue = 32
	eventBuffer      = 64

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithSendQueue sets the number of outbound messages that may be queued
// before SendRealtimeInput starts dropping chunks.
func WithSendQueue(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.sendQueue = n
		}
	}
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements live.Provider for Google's Gemini Live API.
type Provider struct {
	apiKey    string
	model     string
	baseURL   string
	sendQueue int
}

// New creates a new Gemini Live Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:    apiKey,
		model:     defaultModel,
		baseURL:   defaultBaseURL,
		sendQueue: defaultSendQueue,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Model returns the model used for new sessions.
func (p *Provider) Model() string { return p.model }

// Connect dials the Gemini Live endpoint and sends the setup message. The
// session is usable for sending audio once EventOpen has been received.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.baseURL, p.apiKey,
	)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("gemini: dial: %w", &provider.StatusError{
				Provider: "gemini-live",
				Code:     resp.StatusCode,
				Status:   http.StatusText(resp.StatusCode),
				Message:  "handshake rejected",
				Err:      err,
			})
		}
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	conn.SetReadLimit(16 << 20)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		events: make(chan live.Event, eventBuffer),
		outbox: make(chan []byte, p.sendQueue),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSetup(ctx, p.model, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	go sess.receiveLoop()
	go sess.writeLoop()
	go sess.keepaliveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string             `json:"model"`
	GenerationConfig         generationConfig   `json:"generationConfig"`
	SystemInstruction        *systemInstruction `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}          `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}          `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []inlineData `json:"mediaChunks"`
}

type clientContentMessage struct {
	ClientContent clientContent `json:"clientContent"`
}

type clientContent struct {
	Turns        []contentTurn `json:"turns"`
	TurnComplete bool          `json:"turnComplete"`
}

type contentTurn struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	GoAway        *json.RawMessage `json:"goAway,omitempty"`
	Error         *APIError        `json:"error,omitempty"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type transcription struct {
	Text string `json:"text"`
}

// APIError is an error reported by the Gemini Live service in-band.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// Error implements error.
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if e.Status != "" {
		return fmt.Sprintf("gemini: %d %s: %s", e.Code, e.Status, msg)
	}
	return fmt.Sprintf("gemini: %d: %s", e.Code, msg)
}

// Unwrap exposes the error as a [provider.StatusError] so that callers can
// classify it by code and status.
func (e *APIError) Unwrap() error {
	return &provider.StatusError{
		Provider: "gemini-live",
		Code:     e.Code,
		Status:   e.Status,
		Message:  e.Message,
	}
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	events chan live.Event
	outbox chan []byte

	open   atomic.Bool
	closed atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSetup sends the initial BidiGenerateContent setup message. It runs
// before any loop goroutine is started, so it writes to the connection
// directly.
func (s *session) sendSetup(ctx context.Context, model string, cfg live.SessionConfig) error {
	voice := cfg.Voice
	if voice == "" {
		voice = defaultVoice
	}
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: &speechConfig{
					VoiceConfig: voiceConfig{
						PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice},
					},
				},
			},
		},
	}
	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}
	if cfg.Transcribe {
		msg.Setup.InputAudioTranscription = &struct{}{}
		msg.Setup.OutputAudioTranscription = &struct{}{}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// emit delivers ev unless the session has been closed locally.
func (s *session) emit(ev live.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// receiveLoop reads messages from the WebSocket and translates them into
// events. It owns the events channel and closes it when it exits.
func (s *session) receiveLoop() {
	defer close(s.events)
	defer s.cancel()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.emit(closeEvent(err))
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("gemini live: skipping malformed frame", "err", err, "bytes", len(data))
			continue
		}

		if msg.Error != nil {
			s.emit(live.Event{Type: live.EventError, Err: msg.Error})
			return
		}
		if msg.SetupComplete != nil && s.open.CompareAndSwap(false, true) {
			if !s.emit(live.Event{Type: live.EventOpen}) {
				return
			}
		}
		if msg.ServerContent != nil {
			if ev, ok := contentEvent(msg.ServerContent); ok {
				if !s.emit(ev) {
					return
				}
			}
		}
		if msg.GoAway != nil {
			slog.Info("gemini live: server announced disconnect")
		}
	}
}

// closeEvent maps a read error to an EventClose for normal closures and to an
// EventError otherwise.
func closeEvent(err error) live.Event {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.StatusNormalClosure || ce.Code == websocket.StatusGoingAway {
			return live.Event{Type: live.EventClose, CloseCode: int(ce.Code), CloseReason: ce.Reason}
		}
		return live.Event{
			Type:        live.EventError,
			Err:         fmt.Errorf("gemini: connection closed (%d): %s", int(ce.Code), ce.Reason),
			CloseCode:   int(ce.Code),
			CloseReason: ce.Reason,
		}
	}
	return live.Event{Type: live.EventError, Err: fmt.Errorf("gemini: read: %w", err)}
}

// contentEvent converts a serverContent payload into a message event. It
// reports false when the payload carries nothing worth emitting.
func contentEvent(sc *serverContent) (live.Event, bool) {
	ev := live.Event{
		Type:         live.EventMessage,
		Interrupted:  sc.Interrupted,
		TurnComplete: sc.TurnComplete,
	}
	if sc.ModelTurn != nil {
		var text strings.Builder
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				ev.Audio = append(ev.Audio, audio.EncodedChunk(p.InlineData.Data))
			}
			text.WriteString(p.Text)
		}
		ev.Text = text.String()
	}
	if sc.InputTranscription != nil {
		ev.InputTranscript = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		ev.OutputTranscript = sc.OutputTranscription.Text
	}

	empty := len(ev.Audio) == 0 && ev.Text == "" && !ev.Interrupted && !ev.TurnComplete &&
		ev.InputTranscript == "" && ev.OutputTranscript == ""
	return ev, !empty
}

// writeLoop is the only writer on the connection after setup.
func (s *session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case data := <-s.outbox:
			if err := s.conn.Write(s.ctx, websocket.MessageText, data); err != nil {
				if s.ctx.Err() == nil {
					slog.Warn("gemini live: write failed", "err", err)
				}
				return
			}
		}
	}
}

// keepaliveLoop sends WebSocket pings to keep the Gemini Live connection alive.
func (s *session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
	}
}

// ── live.Session methods ───────────────────────────────────────────────────────

// SendRealtimeInput queues a 16 kHz PCM chunk without blocking.
func (s *session) SendRealtimeInput(chunk audio.EncodedChunk) error {
	if s.closed.Load() || s.ctx.Err() != nil {
		return live.ErrSessionClosed
	}
	if !s.open.Load() {
		return live.ErrNotOpen
	}
	data, err := json.Marshal(realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []inlineData{{MIMEType: audio.PCMMimeType, Data: string(chunk)}},
		},
	})
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	select {
	case s.outbox <- data:
		return nil
	default:
		return live.ErrSendQueueFull
	}
}

// SendText sends a complete user text turn, waiting for queue space until ctx
// is done.
func (s *session) SendText(ctx context.Context, text string) error {
	if s.closed.Load() || s.ctx.Err() != nil {
		return live.ErrSessionClosed
	}
	if !s.open.Load() {
		return live.ErrNotOpen
	}
	data, err := json.Marshal(clientContentMessage{
		ClientContent: clientContent{
			Turns:        []contentTurn{{Role: "user", Parts: []part{{Text: text}}}},
			TurnComplete: true,
		},
	})
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	select {
	case s.outbox <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return live.ErrSessionClosed
	}
}

// Events returns the session's event stream.
func (s *session) Events() <-chan live.Event { return s.events }

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel() // unblocks receiveLoop, writeLoop and keepaliveLoop
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}
