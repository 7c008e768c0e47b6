package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// EnvelopeType classifies an envelope for clients.
type EnvelopeType string

const (
	TypeSuccess EnvelopeType = "success"
	TypeError   EnvelopeType = "error"
	TypeInfo    EnvelopeType = "info"
)

// Envelope is the uniform response body: {status, type, responseMessage, data}.
// Status is 1 when the operation completed (including partially successful bulk work) and 0 on failure.
type Envelope struct {
	Status          int          `json:"status"`
	Type            EnvelopeType `json:"type"`
	ResponseMessage string       `json:"responseMessage"`
	Data            any          `json:"data"`
}

// Success wraps data in a success envelope.
func Success(message string, data any) Envelope {
	return Envelope{Status: 1, Type: TypeSuccess, ResponseMessage: message, Data: emptyIfNil(data)}
}

// Info wraps data in an informational envelope, used when the request succeeded with caveats.
func Info(message string, data any) Envelope {
	return Envelope{Status: 1, Type: TypeInfo, ResponseMessage: message, Data: emptyIfNil(data)}
}

// Failure builds an error envelope. A nil data map renders as {}.
func Failure(message string, data map[string]any) Envelope {
	if data == nil {
		data = map[string]any{}
	}
	return Envelope{Status: 0, Type: TypeError, ResponseMessage: clean(message, 512), Data: data}
}

// WriteEnvelope encodes env with the given HTTP status.
func WriteEnvelope(w http.ResponseWriter, status int, env Envelope) {
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// ErrorMapping binds a sentinel error to the HTTP status used when errors.Is matches it.
// Details, when set, extracts extra envelope data from the matched error.
type ErrorMapping struct {
	Target  error
	Status  int
	Details func(err error) map[string]any
}

// EnvelopeFromError maps err through mappings in order. Unmatched errors become a 500
// with a generic message so internal details never leave the process.
func EnvelopeFromError(err error, mappings []ErrorMapping) (int, Envelope) {
	if err == nil {
		return http.StatusOK, Success("", nil)
	}
	for _, m := range mappings {
		if m.Target == nil || !errors.Is(err, m.Target) {
			continue
		}
		var details map[string]any
		if m.Details != nil {
			details = m.Details(err)
		}
		status := m.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return status, Failure(err.Error(), details)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, Failure("request timed out", nil)
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, Failure("request cancelled", nil)
	}
	return http.StatusInternalServerError, Failure(http.StatusText(http.StatusInternalServerError), nil)
}

func emptyIfNil(data any) any {
	if data == nil {
		return map[string]any{}
	}
	return data
}
