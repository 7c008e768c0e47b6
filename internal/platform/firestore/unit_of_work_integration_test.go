//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	pconfig "github.com/stockline/api/internal/platform/config"
	pfirestore "github.com/stockline/api/internal/platform/firestore"
)

type stockDoc struct {
	SKU      string `firestore:"sku"`
	Quantity int    `firestore:"quantity"`
}

// Runs against an already started emulator, e.g.
// FIRESTORE_EMULATOR_HOST=127.0.0.1:8080 go test -tags integration ./internal/platform/firestore
func newEmulatorProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "uow-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

func TestUnitOfWorkRollsBackOnError(t *testing.T) {
	provider := newEmulatorProvider(t)
	repo := pfirestore.NewBaseRepository[stockDoc](provider, "uow_stock")
	uow, err := pfirestore.NewUnitOfWork(provider, pfirestore.WithTxAttempts(2), pfirestore.WithTxTimeout(10*time.Second))
	if err != nil {
		t.Fatalf("new unit of work: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := repo.Set(ctx, "bolt", stockDoc{SKU: "BOLT", Quantity: 5}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	boom := errors.New("warehouse rejected reservation")
	err = uow.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := repo.Get(ctx, "bolt")
		if err != nil {
			return err
		}
		doc.Data.Quantity += 10
		if err := repo.Set(ctx, "bolt", doc.Data); err != nil {
			return err
		}
		if err := repo.Create(ctx, "nut", stockDoc{SKU: "NUT", Quantity: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	doc, err := repo.Get(ctx, "bolt")
	if err != nil {
		t.Fatalf("get bolt: %v", err)
	}
	if doc.Data.Quantity != 5 {
		t.Fatalf("expected quantity unchanged, got %d", doc.Data.Quantity)
	}
	if exists, err := repo.Exists(ctx, "nut"); err != nil || exists {
		t.Fatalf("expected nut absent after rollback, exists=%v err=%v", exists, err)
	}
}

func TestUnitOfWorkNestedCallsJoinOuterTransaction(t *testing.T) {
	provider := newEmulatorProvider(t)
	repo := pfirestore.NewBaseRepository[stockDoc](provider, "uow_nested")
	uow, err := pfirestore.NewUnitOfWork(provider)
	if err != nil {
		t.Fatalf("new unit of work: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = uow.RunInTx(ctx, func(ctx context.Context) error {
		if _, ok := pfirestore.TransactionFromContext(ctx); !ok {
			t.Fatal("expected transaction on context")
		}
		return uow.RunInTx(ctx, func(ctx context.Context) error {
			return repo.Create(ctx, "washer", stockDoc{SKU: "WASHER", Quantity: 3})
		})
	})
	if err != nil {
		t.Fatalf("nested run: %v", err)
	}

	if _, err := repo.Get(ctx, "missing"); !pfirestore.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	if err := uow.RunInTx(cancelled, func(context.Context) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
