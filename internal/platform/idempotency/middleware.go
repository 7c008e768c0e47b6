package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stockline/api/internal/platform/auth"
	"github.com/stockline/api/internal/platform/httpx"
)

const (
	defaultHeaderName      = "Idempotency-Key"
	replayHeaderName       = "X-Idempotent-Replay"
	anonymousScope         = "anonymous"
	defaultMaxRequestBytes = 1 << 20
	// Firestore documents are capped at 1 MiB.
	defaultMaxReplayBytes = 512 << 10
	maxKeyLength          = 255
)

type middlewareConfig struct {
	header          string
	ttl             time.Duration
	methods         map[string]struct{}
	clock           func() time.Time
	logger          *zap.Logger
	optional        bool
	maxRequestBytes int64
	maxReplayBytes  int
}

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header carrying the key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.header = name
		}
	}
}

// WithTTL sets how long keys stay reserved and replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithMethods limits the guarded methods. Other methods pass straight through.
func WithMethods(methods ...string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		set := make(map[string]struct{}, len(methods))
		for _, m := range methods {
			if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
				set[m] = struct{}{}
			}
		}
		if len(set) > 0 {
			cfg.methods = set
		}
	}
}

func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithOptionalKey lets requests without the header through unguarded.
func WithOptionalKey() MiddlewareOption {
	return func(cfg *middlewareConfig) { cfg.optional = true }
}

func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithMaxRequestBytes caps the body read for fingerprinting. Larger bodies get 413.
func WithMaxRequestBytes(n int64) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if n > 0 {
			cfg.maxRequestBytes = n
		}
	}
}

// WithMaxReplayBytes caps the stored response body. Larger responses are sent once and the
// key is released.
func WithMaxReplayBytes(n int) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if n > 0 {
			cfg.maxReplayBytes = n
		}
	}
}

// Middleware makes guarded requests carrying an idempotency key safe to retry: the first
// request runs, later ones with the same key and body replay its response.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	cfg := middlewareConfig{
		header:          defaultHeaderName,
		ttl:             DefaultTTL,
		methods:         map[string]struct{}{http.MethodPost: {}, http.MethodPut: {}, http.MethodPatch: {}, http.MethodDelete: {}},
		clock:           time.Now,
		logger:          zap.NewNop(),
		maxRequestBytes: defaultMaxRequestBytes,
		maxReplayBytes:  defaultMaxReplayBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, guarded := cfg.methods[r.Method]; !guarded {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			raw := strings.TrimSpace(r.Header.Get(cfg.header))
			switch {
			case raw == "" && cfg.optional:
				next.ServeHTTP(w, r)
				return
			case raw == "":
				respondError(ctx, w, http.StatusBadRequest, "idempotency_key_required", "missing idempotency key header")
				return
			case len(raw) > maxKeyLength:
				respondError(ctx, w, http.StatusBadRequest, "idempotency_key_invalid", "idempotency key is too long")
				return
			}

			body, err := bufferBody(r, cfg.maxRequestBytes)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					respondError(ctx, w, http.StatusRequestEntityTooLarge, "request_too_large", "request body exceeds limit")
					return
				}
				respondError(ctx, w, http.StatusBadRequest, "idempotency_read_body_failed", "unable to read request body")
				return
			}

			claim := Claim{
				Key:         Key{Scope: requesterScope(ctx), Value: raw},
				Fingerprint: fingerprint(r, body),
				Route:       r.Method + " " + r.URL.Path,
				Now:         cfg.clock(),
				TTL:         cfg.ttl,
			}
			log := cfg.logger.With(zap.String("scope", claim.Key.Scope), zap.String("route", claim.Route))

			outcome, entry, err := store.Reserve(ctx, claim)
			switch {
			case errors.Is(err, ErrFingerprintMismatch):
				respondError(ctx, w, http.StatusUnprocessableEntity, "idempotency_key_conflict", "idempotency key already used for a different request")
				return
			case err != nil:
				log.Error("idempotency: reserve failed", zap.Error(err))
				respondError(ctx, w, http.StatusServiceUnavailable, "idempotency_store_error", "unable to process idempotency key")
				return
			}
			switch outcome {
			case OutcomeReplay:
				replay(w, entry.Response)
				return
			case OutcomeInFlight:
				respondError(ctx, w, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
				return
			}

			rec := &recorder{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			// Detach so a client disconnect does not strand the key in flight.
			storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()

			switch {
			case rec.status() >= http.StatusInternalServerError:
				release(storeCtx, store, claim.Key, log)
			case rec.body.Len() > cfg.maxReplayBytes:
				log.Warn("idempotency: response too large to replay", zap.Int("bytes", rec.body.Len()))
				release(storeCtx, store, claim.Key, log)
			default:
				claim.Now = cfg.clock()
				resp := Response{Status: rec.status(), Headers: rec.header, Body: rec.body.Bytes()}
				if err := store.Complete(storeCtx, claim, resp); err != nil {
					log.Error("idempotency: complete failed", zap.Error(err))
					release(storeCtx, store, claim.Key, log)
					respondError(ctx, w, http.StatusServiceUnavailable, "idempotency_store_error", "unable to persist idempotency state")
					return
				}
			}
			rec.flush(w)
		})
	}
}

func release(ctx context.Context, store Store, key Key, log *zap.Logger) {
	if err := store.Release(ctx, key); err != nil {
		log.Warn("idempotency: release failed", zap.Error(err))
	}
}

func bufferBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requesterScope(ctx context.Context) string {
	if user, ok := auth.UserInfoFromContext(ctx); ok {
		if uid := strings.TrimSpace(user.UID); uid != "" {
			return uid
		}
	}
	return anonymousScope
}

func fingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	for _, part := range []string{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Content-Type")} {
		_, _ = io.WriteString(h, part)
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, resp Response) {
	for name, values := range resp.Headers {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(replayHeaderName, "true")
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

// recorder buffers the downstream response until the entry is stored.
type recorder struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(code int) {
	if r.code == 0 {
		r.code = code
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.code == 0 {
		r.code = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *recorder) status() int {
	if r.code == 0 {
		return http.StatusOK
	}
	return r.code
}

func (r *recorder) flush(w http.ResponseWriter) {
	for name, values := range r.header {
		w.Header()[name] = values
	}
	w.WriteHeader(r.status())
	_, _ = w.Write(r.body.Bytes())
}
