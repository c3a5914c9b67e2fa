package resilience

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrWong99/fortuna/pkg/audio"
	"github.com/MrWong99/fortuna/pkg/provider"
)

var (
	// ErrQuotaExceeded is returned by [Retry] when the remote service reports
	// a rate limit. It wraps the original cause.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrNotReady reports that the credential/readiness precondition is unmet.
	ErrNotReady = errors.New("service not ready")

	// ErrReconnectRequired reports that the remote service rejected the
	// credential; the caller must re-run credential setup.
	ErrReconnectRequired = errors.New("reconnect required")

	// ErrMalformedResponse reports a response that did not match the
	// expected shape.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrInvalidInput reports bad caller input.
	ErrInvalidInput = errors.New("invalid input")
)

// Kind is the failure category of an error.
type Kind int

const (
	// KindTransient covers network and unspecified remote failures.
	KindTransient Kind = iota
	// KindNotReady means preconditions (credential/auth) are unmet.
	KindNotReady
	// KindRateLimited means the remote quota is exhausted.
	KindRateLimited
	// KindContentBlocked is a remote safety/policy rejection.
	KindContentBlocked
	// KindCredentialInvalid means the remote reports the credential entity
	// missing or invalid.
	KindCredentialInvalid
	// KindDeviceDenied means the microphone could not be opened.
	KindDeviceDenied
	// KindMalformedResponse means the remote answer had the wrong shape.
	KindMalformedResponse
	// KindInvalidInput means the caller supplied bad input.
	KindInvalidInput
	// KindCanceled means the caller's context ended.
	KindCanceled
)

// String returns the snake_case name used in logs, metrics and API bodies.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindNotReady:
		return "not_ready"
	case KindRateLimited:
		return "rate_limited"
	case KindContentBlocked:
		return "content_blocked"
	case KindCredentialInvalid:
		return "credential_invalid"
	case KindDeviceDenied:
		return "device_denied"
	case KindMalformedResponse:
		return "malformed_response"
	case KindInvalidInput:
		return "invalid_input"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind may succeed on retry.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindMalformedResponse
}

// HTTPStatus maps the kind onto an HTTP status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotReady:
		return http.StatusServiceUnavailable
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindContentBlocked:
		return http.StatusUnprocessableEntity
	case KindCredentialInvalid:
		return http.StatusUnauthorized
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindDeviceDenied:
		return http.StatusFailedDependency
	case KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}

// credentialMarkers are substrings the remote service uses when the API key
// is missing, invalid or not entitled to the model.
var credentialMarkers = []string{
	"requested entity was not found",
	"api key not valid",
	"api_key_invalid",
	"permission_denied",
	"unauthenticated",
}

// Classify maps err onto a [Kind]. Sentinel errors are checked first, then
// status codes reported by providers, then markers embedded in the message.
func Classify(err error) Kind {
	if err == nil {
		return KindTransient
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrQuotaExceeded):
		return KindRateLimited
	case errors.Is(err, ErrNotReady):
		return KindNotReady
	case errors.Is(err, ErrReconnectRequired):
		return KindCredentialInvalid
	case errors.Is(err, audio.ErrDeviceDenied):
		return KindDeviceDenied
	case errors.Is(err, provider.ErrContentBlocked):
		return KindContentBlocked
	case errors.Is(err, ErrMalformedResponse), errors.Is(err, provider.ErrEmptyResponse):
		return KindMalformedResponse
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	}

	var se *provider.StatusError
	if errors.As(err, &se) {
		if k, ok := classifyStatus(se); ok {
			return k
		}
	}
	return classifyMessage(err.Error())
}

func classifyStatus(se *provider.StatusError) (Kind, bool) {
	status := strings.ToUpper(se.Status)
	switch {
	case se.Code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		return KindRateLimited, true
	case se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden,
		status == "PERMISSION_DENIED", status == "UNAUTHENTICATED":
		return KindCredentialInvalid, true
	}
	if k := classifyMessage(se.Message); k != KindTransient {
		return k, true
	}
	switch {
	case se.Code == http.StatusNotFound:
		return KindCredentialInvalid, true
	case se.Code == http.StatusBadRequest:
		return KindInvalidInput, true
	}
	return KindTransient, false
}

func classifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "429"),
		strings.Contains(lower, "resource_exhausted"),
		strings.Contains(lower, "quota"):
		return KindRateLimited
	case containsAny(lower, credentialMarkers):
		return KindCredentialInvalid
	case strings.Contains(lower, "safety"), strings.Contains(lower, "prohibited_content"):
		return KindContentBlocked
	}
	return KindTransient
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// UserMessage returns an actionable message for err: what failed and what to
// do about it. It never returns a bare transport error string.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch Classify(err) {
	case KindNotReady:
		return "The oracle is not connected. Set GEMINI_API_KEY (or API_KEY) to a valid key and try again."
	case KindRateLimited:
		return "Quota exceeded: the oracle has answered too many questions. Wait a minute, or check the quota of your API key."
	case KindContentBlocked:
		return "The request was refused by the content safety filter. Rephrase the input and try again."
	case KindCredentialInvalid:
		return "The API key was rejected or cannot use this model. Reconnect with a valid key and start again."
	case KindDeviceDenied:
		return "Microphone access was denied. Allow microphone access and start the live session again."
	case KindMalformedResponse:
		return "The oracle returned an incomplete reading. Please ask again."
	case KindInvalidInput:
		msg := err.Error()
		if i := strings.LastIndex(msg, ErrInvalidInput.Error()+": "); i >= 0 {
			msg = msg[i+len(ErrInvalidInput.Error())+2:]
		}
		return "Invalid input: " + msg
	case KindCanceled:
		return "The request was cancelled before the oracle answered."
	default:
		return "Could not reach the oracle (network or service error). Check your connection and try again."
	}
}
