package web

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrWong99/fortuna/internal/observe"
	"github.com/MrWong99/fortuna/internal/oracle"
	"github.com/MrWong99/fortuna/internal/resilience"
)

// FortuneRequest is the body of POST /api/fortune.
type FortuneRequest struct {
	User oracle.UserInfo `json:"user"`

	// Date is "YYYY-MM-DD". Empty selects today.
	Date string `json:"date,omitempty"`
}

// CompatibilityRequest is the body of POST /api/compatibility.
type CompatibilityRequest struct {
	First  oracle.UserInfo `json:"first"`
	Second oracle.UserInfo `json:"second"`
}

// SpeechRequest is the body of POST /api/speech.
type SpeechRequest struct {
	Text string `json:"text"`
}

// SpeechResponse carries base64 16-bit little-endian mono PCM.
type SpeechResponse struct {
	Audio      string `json:"audio"`
	SampleRate int    `json:"sampleRate"`
	MIMEType   string `json:"mimeType"`
}

// PosterRequest is the body of POST /api/poster.
type PosterRequest struct {
	Prompt string `json:"prompt"`
}

// PosterResponse holds the poster as a data URL.
type PosterResponse struct {
	ImageURL string `json:"imageUrl"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.oracle.Status(r.Context()))
}

func (s *Server) handleFortune(w http.ResponseWriter, r *http.Request) {
	var req FortuneRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.oracle.DailyFortune(r.Context(), req.User, req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCompatibility(w http.ResponseWriter, r *http.Request) {
	var req CompatibilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.oracle.Compatibility(r.Context(), req.First, req.Second)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req SpeechRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sp, err := s.oracle.Speak(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SpeechResponse{
		Audio:      base64.StdEncoding.EncodeToString(sp.PCM),
		SampleRate: sp.SampleRate,
		MIMEType:   sp.MIMEType,
	})
}

func (s *Server) handlePoster(w http.ResponseWriter, r *http.Request) {
	var req PosterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	url, err := s.oracle.WantedPoster(r.Context(), req.Prompt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PosterResponse{ImageURL: url})
}

// decodeBody reads a JSON body into dst, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, fmt.Errorf("web: %w: request body: %w", resilience.ErrInvalidInput, err))
		return false
	}
	return true
}

// writeError maps err onto a status code and a themed message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, oracle.ErrNotConfigured) {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{
			Error:   "not_configured",
			Message: "This art is not available: the matching provider is not configured.",
		})
		return
	}

	kind := resilience.Classify(err)
	status := kind.HTTPStatus()
	log := observe.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "kind", kind.String(), "err", err)
	} else {
		log.Info("request rejected", "path", r.URL.Path, "kind", kind.String(), "err", err)
	}
	writeJSON(w, status, ErrorResponse{
		Error:   kind.String(),
		Message: resilience.UserMessage(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
