package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/repositories"
)

const (
	defaultProductIDCounter = "productId"
	defaultProductIDPadding = 6
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted indicates the counter reached its ceiling.
	ErrCounterExhausted = errors.New("counter: exhausted")
)

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	// ProductIDPrefix is prepended to every product id, e.g. "PID".
	ProductIDPrefix  string
	ProductIDPadding int
	ProductIDCounter string
}

type counterService struct {
	repo      repositories.CounterRepository
	prefix    string
	padding   int
	counterID string
}

// NewCounterService constructs a service that manages counter sequences on top of the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	padding := deps.ProductIDPadding
	if padding < 0 {
		return nil, errors.New("counter service: product id padding must not be negative")
	}
	if padding == 0 {
		padding = defaultProductIDPadding
	}
	counterID := strings.TrimSpace(deps.ProductIDCounter)
	if counterID == "" {
		counterID = defaultProductIDCounter
	}
	return &counterService{
		repo:      deps.Repository,
		prefix:    strings.TrimSpace(deps.ProductIDPrefix),
		padding:   padding,
		counterID: counterID,
	}, nil
}

// Next increments counterID by step and returns the new value. When ctx carries a
// transaction the increment joins it.
func (s *counterService) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	counterID = strings.TrimSpace(counterID)
	if counterID == "" {
		return 0, fmt.Errorf("%w: counter id is required", ErrCounterInvalidInput)
	}
	if step < 0 {
		return 0, fmt.Errorf("%w: step must be positive", ErrCounterInvalidInput)
	}

	value, err := s.repo.Next(ctx, counterID, step)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrCounterInvalid):
			return 0, fmt.Errorf("%w: %v", ErrCounterInvalidInput, err)
		case errors.Is(err, repositories.ErrCounterExhausted):
			return 0, fmt.Errorf("%w: %v", ErrCounterExhausted, err)
		}
		return 0, err
	}
	return value, nil
}

func (s *counterService) NextProductID(ctx context.Context) (string, error) {
	seq, err := s.Next(ctx, s.counterID, 1)
	if err != nil {
		return "", err
	}
	return domain.FormatProductID(s.prefix, s.padding, seq), nil
}
