package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/stockline/api/internal/platform/firestore"
	"github.com/stockline/api/internal/repositories"
)

const countersCollection = "counters"

type sequenceDocument struct {
	Value     int64     `firestore:"value"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CounterRepository hands out sequence numbers from one document per counter.
type CounterRepository struct {
	provider  *pfirestore.Provider
	sequences *pfirestore.BaseRepository[sequenceDocument]
	clock     func() time.Time
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider:  provider,
		sequences: pfirestore.NewBaseRepository[sequenceDocument](provider, countersCollection),
		clock:     time.Now,
	}, nil
}

// Next advances counterID by step (zero means one). Inside a caller's transaction the bump
// is only visible once that transaction commits.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	switch {
	case id == "":
		return 0, fmt.Errorf("%w: counter id is required", repositories.ErrCounterInvalid)
	case step < 0:
		return 0, fmt.Errorf("%w: step must be positive, got %d", repositories.ErrCounterInvalid, step)
	case step == 0:
		step = 1
	}

	var next int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		var current int64
		snap, err := r.sequences.Get(ctx, id)
		switch {
		case err == nil:
			current = snap.Data.Value
		case !pfirestore.IsNotFound(err):
			return err
		}
		if current > repositories.MaxCounterValue-step {
			return fmt.Errorf("%w: counter %s exceeded %d", repositories.ErrCounterExhausted, id, repositories.MaxCounterValue)
		}
		next = current + step
		return r.sequences.Set(ctx, id, sequenceDocument{Value: next, UpdatedAt: r.clock().UTC()})
	})
	if errors.Is(err, repositories.ErrCounterExhausted) {
		return 0, err
	}
	if err != nil {
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return next, nil
}
