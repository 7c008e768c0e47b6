package repositories

import (
	"errors"
	"fmt"
)

// ProductErrorCode enumerates repository error causes for products and their satellites.
type ProductErrorCode string

const (
	ProductErrorUnknown     ProductErrorCode = "product_unknown"
	ProductErrorNotFound    ProductErrorCode = "product_not_found"
	ProductErrorConflict    ProductErrorCode = "product_conflict"
	ProductErrorUnavailable ProductErrorCode = "product_unavailable"
	ProductErrorInvalid     ProductErrorCode = "product_invalid"
)

// ProductError wraps persistence failures with machine readable codes.
type ProductError struct {
	Op      string
	Code    ProductErrorCode
	Message string
	Err     error
}

var _ RepositoryError = (*ProductError)(nil)

// Error implements the error interface.
func (e *ProductError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *ProductError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ProductError) IsNotFound() bool    { return e != nil && e.Code == ProductErrorNotFound }
func (e *ProductError) IsConflict() bool    { return e != nil && e.Code == ProductErrorConflict }
func (e *ProductError) IsUnavailable() bool { return e != nil && e.Code == ProductErrorUnavailable }

// NewProductError constructs a typed product error.
func NewProductError(op string, code ProductErrorCode, message string, err error) *ProductError {
	if message == "" {
		message = string(code)
	}
	return &ProductError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NotFound is shorthand for a not-found ProductError.
func NotFound(op, message string) *ProductError {
	return NewProductError(op, ProductErrorNotFound, message, nil)
}

// Conflict is shorthand for a conflict ProductError.
func Conflict(op, message string) *ProductError {
	return NewProductError(op, ProductErrorConflict, message, nil)
}

// IsNotFound reports whether err classifies as a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err classifies as a conflicting write.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err classifies as a backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// MaxCounterValue keeps sequences exactly representable as JSON numbers.
const MaxCounterValue int64 = 1<<53 - 1

var (
	ErrCounterInvalid   = errors.New("counter: invalid input")
	ErrCounterExhausted = errors.New("counter: sequence exhausted")
)
