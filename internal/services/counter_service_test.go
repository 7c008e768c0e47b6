package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stockline/api/internal/repositories"
)

type stubCounterRepository struct {
	mu        sync.Mutex
	nextFn    func(context.Context, string, int64) (int64, error)
	nextCalls []counterCall
}

type counterCall struct {
	ID   string
	Step int64
}

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	s.mu.Lock()
	s.nextCalls = append(s.nextCalls, counterCall{ID: counterID, Step: step})
	s.mu.Unlock()
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 0, nil
}

func TestCounterServiceNextProductIDFormats(t *testing.T) {
	repo := &stubCounterRepository{}
	repo.nextFn = func(context.Context, string, int64) (int64, error) {
		return 42, nil
	}

	svc, err := NewCounterService(CounterServiceDeps{Repository: repo, ProductIDPrefix: " INV "})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	id, err := svc.NextProductID(context.Background())
	if err != nil {
		t.Fatalf("next product id: %v", err)
	}
	if id != "INV000042" {
		t.Fatalf("expected INV000042, got %s", id)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.nextCalls) != 1 {
		t.Fatalf("expected one repository call, got %d", len(repo.nextCalls))
	}
	if call := repo.nextCalls[0]; call.ID != "productId" || call.Step != 1 {
		t.Fatalf("unexpected call %+v", call)
	}
}

func TestCounterServiceCustomCounterAndPadding(t *testing.T) {
	repo := &stubCounterRepository{}
	repo.nextFn = func(context.Context, string, int64) (int64, error) {
		return 7, nil
	}

	svc, err := NewCounterService(CounterServiceDeps{
		Repository:       repo,
		ProductIDPrefix:  "P-",
		ProductIDPadding: 3,
		ProductIDCounter: "skuSeq",
	})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	id, err := svc.NextProductID(context.Background())
	if err != nil {
		t.Fatalf("next product id: %v", err)
	}
	if id != "P-007" {
		t.Fatalf("expected P-007, got %s", id)
	}
	if repo.nextCalls[0].ID != "skuSeq" {
		t.Fatalf("expected counter skuSeq, got %s", repo.nextCalls[0].ID)
	}
}

func TestCounterServiceNextValidatesInput(t *testing.T) {
	repo := &stubCounterRepository{}
	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	if _, err := svc.Next(context.Background(), "   ", 1); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected invalid input for blank id, got %v", err)
	}
	if _, err := svc.Next(context.Background(), "orders", -1); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected invalid input for negative step, got %v", err)
	}
	if len(repo.nextCalls) != 0 {
		t.Fatalf("expected repository untouched, got %d calls", len(repo.nextCalls))
	}
}

func TestCounterServiceMapsRepositoryErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "exhausted",
			err:  fmt.Errorf("%w: counter full", repositories.ErrCounterExhausted),
			want: ErrCounterExhausted,
		},
		{
			name: "invalid",
			err:  fmt.Errorf("%w: bad step", repositories.ErrCounterInvalid),
			want: ErrCounterInvalidInput,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubCounterRepository{nextFn: func(context.Context, string, int64) (int64, error) {
				return 0, tc.err
			}}
			svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
			if err != nil {
				t.Fatalf("new counter service: %v", err)
			}
			if _, err := svc.Next(context.Background(), "productId", 1); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	boom := errors.New("boom")
	repo := &stubCounterRepository{nextFn: func(context.Context, string, int64) (int64, error) {
		return 0, boom
	}}
	svc, _ := NewCounterService(CounterServiceDeps{Repository: repo})
	if _, err := svc.NextProductID(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected passthrough error, got %v", err)
	}
}

func TestNewCounterServiceRejectsNegativePadding(t *testing.T) {
	if _, err := NewCounterService(CounterServiceDeps{Repository: &stubCounterRepository{}, ProductIDPadding: -1}); err == nil {
		t.Fatal("expected error for negative padding")
	}
	if _, err := NewCounterService(CounterServiceDeps{}); err == nil {
		t.Fatal("expected error for missing repository")
	}
}
