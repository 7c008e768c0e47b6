package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/platform/auth"
	"github.com/stockline/api/internal/platform/httpx"
	"github.com/stockline/api/internal/platform/pagination"
	"github.com/stockline/api/internal/platform/requestctx"
	"github.com/stockline/api/internal/services"
)

const maxJSONBody = 512 * 1024

var (
	errBadRequest      = errors.New("invalid request")
	errUnauthenticated = errors.New("authentication required")
	errForbidden       = errors.New("insufficient role")
	errEmptyBody       = errors.New("request body is required")
	errBodyTooLarge    = errors.New("request body too large")
	errRateLimited     = errors.New("too many requests, retry later")
)

// reply is the successful outcome of an enveloped handler.
type reply struct {
	status  int
	message string
	data    any
	info    bool
}

type envelopeFunc func(r *http.Request) (reply, error)

// serviceErrors maps the service error taxonomy onto HTTP statuses. Order matters:
// the first errors.Is match wins.
var serviceErrors = []httpx.ErrorMapping{
	{Target: errBodyTooLarge, Status: http.StatusRequestEntityTooLarge},
	{Target: errBadRequest, Status: http.StatusBadRequest},
	{Target: errEmptyBody, Status: http.StatusBadRequest},
	{Target: errUnauthenticated, Status: http.StatusUnauthorized},
	{Target: errForbidden, Status: http.StatusForbidden},
	{Target: errRateLimited, Status: http.StatusTooManyRequests},
	{Target: pagination.ErrInvalidPage, Status: http.StatusBadRequest},
	{Target: pagination.ErrInvalidLimit, Status: http.StatusBadRequest},
	{Target: pagination.ErrInvalidOrderBy, Status: http.StatusBadRequest},
	{Target: pagination.ErrInvalidFilter, Status: http.StatusBadRequest},
	{Target: pagination.ErrInvalidFields, Status: http.StatusBadRequest},
	{Target: services.ErrProductInvalid, Status: http.StatusBadRequest, Details: validationDetails},
	{Target: services.ErrAssetInvalidInput, Status: http.StatusBadRequest},
	{Target: services.ErrProductNotFound, Status: http.StatusNotFound},
	{Target: services.ErrInvalidTransition, Status: http.StatusConflict, Details: transitionDetails},
	{Target: services.ErrProductConflict, Status: http.StatusConflict},
	{Target: services.ErrInventoryInsufficientStock, Status: http.StatusConflict},
	{Target: services.ErrExternalService, Status: http.StatusBadGateway},
	{Target: services.ErrAssetUnavailable, Status: http.StatusBadGateway},
	{Target: services.ErrProductUnavailable, Status: http.StatusServiceUnavailable},
	{Target: services.ErrTransactionAborted, Status: http.StatusInternalServerError},
}

// envelope adapts fn into a handler writing the uniform response envelope.
func envelope(fn envelopeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := fn(r)
		if err != nil {
			status, env := httpx.EnvelopeFromError(err, serviceErrors)
			if status >= http.StatusInternalServerError {
				requestctx.Logger(r.Context()).Error("request failed",
					zap.Error(err),
					zap.Int("status", status),
					zap.String("path", r.URL.Path),
				)
			}
			httpx.WriteEnvelope(w, status, env)
			return
		}
		env := httpx.Success(res.message, res.data)
		if res.info {
			env = httpx.Info(res.message, res.data)
		}
		httpx.WriteEnvelope(w, res.status, env)
	}
}

func okReply(message string, data any) (reply, error) {
	return reply{status: http.StatusOK, message: message, data: data}, nil
}

func createdReply(message string, data any) (reply, error) {
	return reply{status: http.StatusCreated, message: message, data: data}, nil
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func validationDetails(err error) map[string]any {
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		return nil
	}
	fields := make([]map[string]any, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, map[string]any{"field": f.Field, "reason": f.Reason})
	}
	return map[string]any{"entity": verr.Entity, "key": verr.Key, "fields": fields}
}

func transitionDetails(err error) map[string]any {
	var terr *domain.TransitionError
	if !errors.As(err, &terr) {
		return nil
	}
	return map[string]any{
		"entity":    terr.Entity,
		"key":       terr.Key,
		"current":   string(terr.Current),
		"requested": string(terr.Requested),
	}
}

// bulkReply reports per-element outcomes. Partial failure keeps status 1 and switches to an info envelope.
func bulkReply(action string, results []domain.BulkResult) (reply, error) {
	rows := make([]map[string]any, 0, len(results))
	var failures []string
	for _, res := range results {
		row := map[string]any{"key": res.Key, "success": res.Success}
		if !res.Success {
			row["error"] = res.Error
			failures = append(failures, res.Error)
		}
		rows = append(rows, row)
	}
	data := map[string]any{"results": rows, "failures": failures}
	if failures == nil {
		data["failures"] = []string{}
	}
	if len(failures) == 0 {
		return reply{status: http.StatusOK, message: fmt.Sprintf("%s completed for %d item(s)", action, len(results)), data: data}, nil
	}
	return reply{
		status:  http.StatusOK,
		message: fmt.Sprintf("%s completed with %d failure(s) out of %d", action, len(failures), len(results)),
		data:    data,
		info:    true,
	}, nil
}

// requestUser resolves the acting staff member or service principal.
func requestUser(r *http.Request) (domain.UserInfo, error) {
	user, ok := auth.UserInfoFromContext(r.Context())
	if !ok || strings.TrimSpace(user.UID) == "" {
		return domain.UserInfo{}, errUnauthenticated
	}
	return user, nil
}

// requireRoles rejects Firebase identities lacking every listed role.
func requireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return envelopeGuard(next, func(r *http.Request) error {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				return errUnauthenticated
			}
			if !identity.HasAnyRole(roles...) {
				return fmt.Errorf("%w: requires one of %s", errForbidden, strings.Join(roles, ", "))
			}
			return nil
		})
	}
}

func envelopeGuard(next http.Handler, check func(r *http.Request) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := check(r); err != nil {
			status, env := httpx.EnvelopeFromError(err, serviceErrors)
			httpx.WriteEnvelope(w, status, env)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxJSONBody
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSON reads a bounded body into dst.
func decodeJSON(r *http.Request, limit int64, dst any) error {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return badRequest("request body must be valid JSON: %v", err)
	}
	return nil
}

func parseStatus(raw string) (domain.ItemStatus, error) {
	status, ok := domain.ParseItemStatus(raw)
	if !ok {
		return "", badRequest("unknown status %q", raw)
	}
	return status, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
