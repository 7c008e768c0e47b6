package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/repositories/memory"
)

func newProductListTestService(t *testing.T) ProductListService {
	t.Helper()
	reg := memory.NewRegistry(memory.NewStore(), nil)
	svc, err := NewProductListService(ProductListServiceDeps{
		Lists: reg.ProductLists(),
		Clock: func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewProductListService: %v", err)
	}
	return svc
}

func TestProductListUpsertNormalizesOptions(t *testing.T) {
	svc := newProductListTestService(t)
	ctx := context.Background()

	list, err := svc.UpsertList(ctx, UpsertProductListCommand{
		Key: "unitTypes",
		Options: []domain.ProductListOption{
			{Label: "  Each ", Value: "ea"},
			{Label: "Box of  12"},
		},
	})
	if err != nil {
		t.Fatalf("UpsertList: %v", err)
	}
	if list.Name != "unitTypes" {
		t.Fatalf("expected name to default to key, got %q", list.Name)
	}
	want := []domain.ProductListOption{{Label: "Each", Value: "ea"}, {Label: "Box of 12", Value: "Box of 12"}}
	if len(list.Options) != len(want) {
		t.Fatalf("expected %d options, got %d", len(want), len(list.Options))
	}
	for i := range want {
		if list.Options[i] != want[i] {
			t.Fatalf("option %d: expected %+v, got %+v", i, want[i], list.Options[i])
		}
	}
	if !list.UpdatedAt.Equal(testNow) {
		t.Fatalf("expected updatedAt %s, got %s", testNow, list.UpdatedAt)
	}

	got, err := svc.GetList(ctx, "unitTypes")
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if len(got.Options) != 2 {
		t.Fatalf("expected stored options, got %+v", got.Options)
	}

	replaced, err := svc.UpsertList(ctx, UpsertProductListCommand{Key: "unitTypes", Name: "Unit types", Options: []domain.ProductListOption{{Label: "Pallet"}}})
	if err != nil {
		t.Fatalf("UpsertList replace: %v", err)
	}
	if replaced.Name != "Unit types" || len(replaced.Options) != 1 {
		t.Fatalf("expected options replaced, got %+v", replaced)
	}

	lists, err := svc.ListLists(ctx)
	if err != nil {
		t.Fatalf("ListLists: %v", err)
	}
	if len(lists) != 1 {
		t.Fatalf("expected one list, got %d", len(lists))
	}
}

func TestProductListUpsertValidation(t *testing.T) {
	svc := newProductListTestService(t)

	tooMany := make([]domain.ProductListOption, maxProductListOptions+1)
	for i := range tooMany {
		tooMany[i] = domain.ProductListOption{Label: fmt.Sprintf("opt %d", i)}
	}

	cases := []struct {
		name string
		cmd  UpsertProductListCommand
	}{
		{name: "blank key", cmd: UpsertProductListCommand{Key: " "}},
		{name: "key with slash", cmd: UpsertProductListCommand{Key: "unit/types"}},
		{name: "key starts with digit", cmd: UpsertProductListCommand{Key: "1types"}},
		{name: "missing label", cmd: UpsertProductListCommand{Key: "colors", Options: []domain.ProductListOption{{Value: "red"}}}},
		{name: "duplicate value", cmd: UpsertProductListCommand{Key: "colors", Options: []domain.ProductListOption{{Label: "Red", Value: "r"}, {Label: "Rose", Value: "r"}}}},
		{name: "too many", cmd: UpsertProductListCommand{Key: "colors", Options: tooMany}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.UpsertList(context.Background(), tc.cmd); !errors.Is(err, ErrProductInvalid) {
				t.Fatalf("expected invalid, got %v", err)
			}
		})
	}
}

func TestProductListGetMissing(t *testing.T) {
	svc := newProductListTestService(t)

	if _, err := svc.GetList(context.Background(), "nope"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetList(context.Background(), ""); !errors.Is(err, ErrProductInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}
