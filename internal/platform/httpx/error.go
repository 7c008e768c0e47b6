package httpx

import (
	"context"
	"maps"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stockline/api/internal/platform/requestctx"
)

// Error is a failure raised before a request reaches a service: authentication, routing,
// idempotency, panics. It renders as a failure envelope whose data holds the code.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func NewError(code, message string, status int) *Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return &Error{Status: status, Code: clean(code, 80), Message: clean(message, 512)}
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// With adds a data field next to the code.
func (e *Error) With(key string, value any) *Error {
	out := *e
	out.Details = maps.Clone(e.Details)
	if out.Details == nil {
		out.Details = make(map[string]any, 1)
	}
	out.Details[key] = value
	return &out
}

// WriteError renders err. The request and trace ids are echoed as headers so a client can
// quote them in a support request.
func WriteError(ctx context.Context, w http.ResponseWriter, err *Error) {
	if err == nil {
		err = NewError("internal_server_error", "", http.StatusInternalServerError)
	}
	if id := clean(middleware.GetReqID(ctx), 80); id != "" {
		w.Header().Set(middleware.RequestIDHeader, id)
	}
	if id := requestctx.TraceID(ctx); id != "" {
		w.Header().Set("X-Trace-Id", clean(id, 64))
	}

	data := make(map[string]any, len(err.Details)+1)
	maps.Copy(data, err.Details)
	if err.Code != "" {
		data["code"] = err.Code
	}
	message := err.Message
	if message == "" {
		message = http.StatusText(err.Status)
	}
	WriteEnvelope(w, err.Status, Failure(message, data))
}

// clean turns control characters into spaces, trims, and caps the result at limit runes.
func clean(value string, limit int) string {
	value = strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, value))
	if limit > 0 {
		if runes := []rune(value); len(runes) > limit {
			value = string(runes[:limit])
		}
	}
	return value
}
