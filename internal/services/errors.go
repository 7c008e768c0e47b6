package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/repositories"
)

var (
	// ErrProductInvalid indicates the payload failed validation.
	ErrProductInvalid = errors.New("product: invalid input")
	// ErrProductNotFound indicates a referenced record does not exist.
	ErrProductNotFound = errors.New("product: not found")
	// ErrProductConflict indicates a uniqueness or concurrent-write conflict.
	ErrProductConflict = errors.New("product: conflict")
	// ErrProductUnavailable indicates the store could not be reached.
	ErrProductUnavailable = errors.New("product: store unavailable")
	// ErrInvalidTransition indicates a status change outside the transition table.
	ErrInvalidTransition = errors.New("product: invalid status transition")
	// ErrExternalService indicates a collaborator (warehouse service, asset store) failed.
	ErrExternalService = errors.New("external service failure")
	// ErrTransactionAborted indicates the store transaction failed for an unclassified reason.
	ErrTransactionAborted = errors.New("transaction aborted")
)

var serviceSentinels = []error{
	ErrProductInvalid,
	ErrProductNotFound,
	ErrProductConflict,
	ErrProductUnavailable,
	ErrInvalidTransition,
	ErrExternalService,
	ErrTransactionAborted,
	ErrInventoryInsufficientStock,
}

var tracer = otel.Tracer("github.com/stockline/api/internal/services")

var textPolicy = bluemonday.StrictPolicy()

type eventLogger func(ctx context.Context, event string, fields map[string]any)

func noopLogger(context.Context, string, map[string]any) {}

func ensureLogger(logger func(context.Context, string, map[string]any)) eventLogger {
	if logger == nil {
		return noopLogger
	}
	return logger
}

func utcClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time { return clock().UTC() }
}

// mapRepositoryError translates store and domain failures into the service error taxonomy.
func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range serviceSentinels {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var transitionErr *domain.TransitionError
	if errors.As(err, &transitionErr) {
		return fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	}
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) || errors.Is(err, domain.ErrValidation) {
		return fmt.Errorf("%w: %w", ErrProductInvalid, err)
	}
	if errors.Is(err, ErrCounterInvalidInput) {
		return fmt.Errorf("%w: %w", ErrProductInvalid, err)
	}
	if errors.Is(err, ErrCounterExhausted) {
		return fmt.Errorf("%w: %w", ErrProductConflict, err)
	}
	if errors.Is(err, repositories.ErrCounterInvalid) {
		return fmt.Errorf("%w: %v", ErrProductInvalid, err)
	}
	if errors.Is(err, repositories.ErrCounterExhausted) {
		return fmt.Errorf("%w: %v", ErrProductConflict, err)
	}

	switch {
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrProductNotFound, err)
	case repositories.IsConflict(err):
		return fmt.Errorf("%w: %v", ErrProductConflict, err)
	case repositories.IsUnavailable(err):
		return fmt.Errorf("%w: %v", ErrProductUnavailable, err)
	}
	var productErr *repositories.ProductError
	if errors.As(err, &productErr) && productErr.Code == repositories.ProductErrorInvalid {
		return fmt.Errorf("%w: %s", ErrProductInvalid, productErr.Message)
	}
	return fmt.Errorf("%w: %v", ErrTransactionAborted, err)
}

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func sanitizeText(value string) string {
	return strings.TrimSpace(textPolicy.Sanitize(value))
}

func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
