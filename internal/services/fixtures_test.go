package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/repositories/memory"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

var testUser = domain.UserInfo{UID: "u-1", Email: "ops@stockline.test", Role: "admin", Token: "tok"}

type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequentialIDs) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%04d", s.n)
}

type stubBarcodes struct {
	err error
}

func (s stubBarcodes) CreateBarcode(value string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "<svg>" + value + "</svg>", nil
}

type recordingAssets struct {
	mu        sync.Mutex
	deleted   [][]string
	copies    int
	copyErr   error
	deleteErr error
}

func (a *recordingAssets) DeleteImages(_ context.Context, urls []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, append([]string(nil), urls...))
	return a.deleteErr
}

func (a *recordingAssets) DuplicateImages(_ context.Context, urls []string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.copyErr != nil {
		return nil, a.copyErr
	}
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		a.copies++
		out = append(out, fmt.Sprintf("%s-copy%d", url, a.copies))
	}
	return out, nil
}

func (a *recordingAssets) deletedURLs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, batch := range a.deleted {
		out = append(out, batch...)
	}
	return out
}

type recordingEvents struct {
	mu     sync.Mutex
	events []ProductEvent
	err    error
}

func (r *recordingEvents) PublishProductEvent(_ context.Context, event ProductEvent) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.events = append(r.events, event)
	return fmt.Sprintf("msg-%d", len(r.events)), nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingMetrics struct {
	mu    sync.Mutex
	ops   []string
	fails int
}

func (m *recordingMetrics) RecordMutation(_ context.Context, op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
	if err != nil {
		m.fails++
	}
}

type stubWarehouses struct {
	mu           sync.Mutex
	warehouses   []domain.Warehouse
	warehouseErr error
	capacities   map[string]domain.LocationCapacity
	locationErr  error
	reserveErr   error
	reservations []domain.LocationReservation
	tokens       []string
	afterReserve func()
}

func (w *stubWarehouses) ActiveWarehouses(_ context.Context, token string) ([]domain.Warehouse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tokens = append(w.tokens, token)
	return w.warehouses, w.warehouseErr
}

func (w *stubWarehouses) LocationsByIDs(_ context.Context, token string, ids []string) ([]domain.LocationCapacity, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tokens = append(w.tokens, token)
	if w.locationErr != nil {
		return nil, w.locationErr
	}
	var out []domain.LocationCapacity
	for _, id := range ids {
		if c, ok := w.capacities[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (w *stubWarehouses) AddQuantityToLocations(_ context.Context, token string, reservations []domain.LocationReservation) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tokens = append(w.tokens, token)
	if w.reserveErr != nil {
		return w.reserveErr
	}
	w.reservations = append(w.reservations, reservations...)
	if w.afterReserve != nil {
		w.afterReserve()
	}
	return nil
}

type testEnv struct {
	store      *memory.Store
	reg        *memory.Registry
	ids        *sequentialIDs
	assets     *recordingAssets
	events     *recordingEvents
	metrics    *recordingMetrics
	warehouses *stubWarehouses
	counters   CounterService
	products   ProductService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	reg := memory.NewRegistry(store, nil)
	env := &testEnv{
		store:   store,
		reg:     reg,
		ids:     &sequentialIDs{},
		assets:  &recordingAssets{},
		events:  &recordingEvents{},
		metrics: &recordingMetrics{},
		warehouses: &stubWarehouses{
			warehouses: []domain.Warehouse{{ID: "wh-1", Name: "Main"}, {ID: "wh-2", Name: "Overflow"}},
			capacities: map[string]domain.LocationCapacity{},
		},
	}

	counters, err := NewCounterService(CounterServiceDeps{Repository: reg.Counters(), ProductIDPrefix: "PID"})
	require.NoError(t, err)
	env.counters = counters

	products, err := NewProductService(ProductServiceDeps{
		SharedItems: reg.SharedItems(),
		Variants:    reg.Variants(),
		UnitOfWork:  reg,
		Counters:    counters,
		Assets:      env.assets,
		Barcodes:    stubBarcodes{},
		Events:      env.events,
		Metrics:     env.metrics,
		Clock:       func() time.Time { return testNow },
		IDGenerator: env.ids.next,
	})
	require.NoError(t, err)
	env.products = products
	return env
}

// failWrites makes every write to table fail until the returned func is called.
func (e *testEnv) failWrites(table string) func() {
	e.store.SetWriteHook(func(tbl, _, _ string) error {
		if tbl == table {
			return errors.New("injected write failure")
		}
		return nil
	})
	return func() { e.store.SetWriteHook(nil) }
}

// readyProduct passes every activation rule for the product item type.
func readyProduct(name string) domain.SharedItem {
	return domain.SharedItem{
		Type:        domain.ItemTypeProduct,
		Name:        name,
		Category:    "hardware",
		Currency:    "USD",
		SupplierKey: "sup-1",
		Images:      []string{"gs://assets/" + name + ".png"},
	}
}

func readyVariant(sku string) domain.Variant {
	return domain.Variant{
		Description: "Variant " + sku,
		SKU:         sku,
		UnitType:    domain.UnitOfMeasure{Label: "Each", Value: "ea"},
		StockUnit:   domain.UnitOfMeasure{Label: "Each", Value: "ea"},
		Dimensions:  domain.Dimensions{Length: 1, Width: 2, Height: 3, Weight: 4, DimensionUnit: "cm", WeightUnit: "kg"},
		UnitCost:    decimal.RequireFromString("2.50"),
	}
}

func (e *testEnv) create(t *testing.T, product domain.SharedItem, variants ...domain.Variant) domain.ProductSummary {
	t.Helper()
	summary, err := e.products.CreateProduct(context.Background(), CreateProductCommand{
		Product:  product,
		Variants: variants,
		User:     testUser,
	})
	require.NoError(t, err)
	return summary
}

func ptr[T any](v T) *T { return &v }
