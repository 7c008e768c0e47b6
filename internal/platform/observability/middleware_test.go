package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/stockline/api/internal/platform/requestctx"
)

func chain(logger *zap.Logger, h http.Handler) http.Handler {
	return ContextLogger(logger)(RecoveryMiddleware(nil)(AccessLog("proj")(h)))
}

func TestAccessLogRecordsActorAndRoute(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := chi.NewRouter()
	r.Use(ContextLogger(zap.New(core)), AccessLog("proj"))
	r.Get("/api/v1/products/{sharedKey}", func(w http.ResponseWriter, r *http.Request) {
		requestctx.SetActor(r.Context(), requestctx.Actor{UID: "user-1", Role: "staff"})
		w.WriteHeader(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/products/abc", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["role"] != "staff" || fields["user_id"] != "user-1" {
		t.Fatalf("expected actor fields, got %v", fields)
	}
	if fields["route"] != "/api/v1/products/{sharedKey}" {
		t.Fatalf("expected route pattern, got %v", fields["route"])
	}
	if fields["status"] != int64(http.StatusNoContent) {
		t.Fatalf("unexpected status %v", fields["status"])
	}
}

func TestAccessLogLevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := chain(zap.New(core), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusConflict)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warning, got %+v", entries)
	}
}

func TestRecoveryWritesEnvelopeAndLogsPanic(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := chain(zap.New(core), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "internal_server_error") {
		t.Fatalf("expected error envelope, got %s", rr.Body.String())
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatal("expected panic entry")
	}
	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 1 || completed[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected error completion entry, got %+v", completed)
	}
}

func TestRecoveryReraisesAbortHandler(t *testing.T) {
	h := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler, got %v", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestSanitizeStringTruncatesRunes(t *testing.T) {
	if got := sanitizeString("ééééé", 3); got != "ééé" {
		t.Fatalf("expected rune-aware truncation, got %q", got)
	}
	if got := remoteIP("10.0.0.1:5555"); got != "10.0.0.1" {
		t.Fatalf("unexpected remote ip %q", got)
	}
}
