package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/services"
)

func TestInventoryHandlers_ListInventory(t *testing.T) {
	var got services.InventoryQuery
	queries := &stubQueryService{
		inventoryFn: func(_ context.Context, q services.InventoryQuery) (domain.Page[map[string]any], error) {
			got = q
			return domain.Page[map[string]any]{
				Items: []map[string]any{{"variantId": "PID0000011", "quantity": 4.0}},
				Page:  1,
				Limit: 50,
				Total: 1,
			}, nil
		},
	}
	h := NewInventoryHandlers(queries, &stubInventoryService{})

	rr := serveRoutes(h.Routes, staffRequest(http.MethodGet, "/inventory?sort=quantity:desc&filter=status==active&search=bolt", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.SortField != "quantity" || got.SortOrder != domain.SortDesc {
		t.Fatalf("unexpected sort %q %q", got.SortField, got.SortOrder)
	}
	if len(got.Statuses) != 1 || got.Statuses[0] != domain.StatusActive || got.Search != "bolt" {
		t.Fatalf("unexpected query %+v", got)
	}
	if got.Limit != 50 {
		t.Fatalf("expected default limit 50, got %d", got.Limit)
	}
	var data struct {
		Items []map[string]any `json:"items"`
		Total int              `json:"total"`
	}
	decodeData(t, decodeEnvelope(t, rr), &data)
	if data.Total != 1 || data.Items[0]["variantId"] != "PID0000011" {
		t.Fatalf("unexpected page %+v", data)
	}
}

func TestInventoryHandlers_ListInventoryRejectsUnknownStatus(t *testing.T) {
	h := NewInventoryHandlers(&stubQueryService{}, &stubInventoryService{})

	rr := serveRoutes(h.Routes, staffRequest(http.MethodGet, "/inventory?filter=status==lost", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestInventoryHandlers_WarehouseOutageIsBadGateway(t *testing.T) {
	queries := &stubQueryService{
		inventoryFn: func(context.Context, services.InventoryQuery) (domain.Page[map[string]any], error) {
			return domain.Page[map[string]any]{}, fmt.Errorf("%w: warehouses unavailable", services.ErrExternalService)
		},
	}
	h := NewInventoryHandlers(queries, &stubInventoryService{})

	rr := serveRoutes(h.Routes, staffRequest(http.MethodGet, "/inventory", ""))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
}

func TestInventoryHandlers_ExportIsRateLimited(t *testing.T) {
	calls := 0
	queries := &stubQueryService{
		exportFn: func(context.Context, services.InventoryQuery) ([]map[string]any, error) {
			calls++
			return []map[string]any{{"sku": "A"}, {"sku": "B"}}, nil
		},
	}
	h := NewInventoryHandlers(queries, &stubInventoryService{}, WithExportRateLimit(1, time.Minute))

	first := serveRoutes(h.Routes, staffRequest(http.MethodGet, "/inventory/export", ""))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first export to succeed, got %d", first.Code)
	}
	var data struct {
		Count int `json:"count"`
	}
	decodeData(t, decodeEnvelope(t, first), &data)
	if data.Count != 2 {
		t.Fatalf("expected count 2, got %d", data.Count)
	}

	second := serveRoutes(h.Routes, staffRequest(http.MethodGet, "/inventory/export", ""))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", second.Code)
	}
	if calls != 1 {
		t.Fatalf("expected export to run once, ran %d times", calls)
	}
}

func TestInventoryHandlers_AdjustStock(t *testing.T) {
	var got services.AdjustStockCommand
	inventory := &stubInventoryService{
		adjustFn: func(_ context.Context, cmd services.AdjustStockCommand) (services.AdjustStockResult, error) {
			got = cmd
			return services.AdjustStockResult{
				Variant: domain.Variant{Key: cmd.VariantKey, VariantID: "PID0000011", StockOnHand: 7},
				Movement: domain.InventoryLogEntry{
					ID:          "log-1",
					VariantKey:  cmd.VariantKey,
					Quantity:    cmd.Quantity,
					UnitCost:    decimal.RequireFromString("1.5"),
					TotalValue:  decimal.RequireFromString("4.5"),
					PerformedBy: cmd.User.Email,
				},
			}, nil
		},
	}
	h := NewInventoryHandlers(&stubQueryService{}, inventory)
	body := `{"warehouseId":"wh-1","locationId":"loc-1","quantity":3,"reason":"receipt"}`

	rr := serveRoutes(h.Routes, staffRequest(http.MethodPost, "/variants/v1/adjustments", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.VariantKey != "v1" || got.WarehouseID != "wh-1" || got.Quantity != 3 || got.User.UID != "user-1" {
		t.Fatalf("unexpected command %+v", got)
	}
	env := decodeEnvelope(t, rr)
	if env.ResponseMessage != "Stock adjusted" {
		t.Fatalf("unexpected message %q", env.ResponseMessage)
	}
	var data struct {
		Variant  map[string]any `json:"variant"`
		Movement map[string]any `json:"movement"`
	}
	decodeData(t, env, &data)
	if _, ok := data.Variant["activityLog"]; ok {
		t.Fatal("activity log must not be returned with the adjustment")
	}
	if data.Movement["totalValue"] != "4.50" || data.Movement["unitCost"] != "1.50" {
		t.Fatalf("unexpected movement %+v", data.Movement)
	}
}

func TestInventoryHandlers_AdjustStockInsufficient(t *testing.T) {
	inventory := &stubInventoryService{
		adjustFn: func(context.Context, services.AdjustStockCommand) (services.AdjustStockResult, error) {
			return services.AdjustStockResult{}, fmt.Errorf("%w: location loc-1 is full", services.ErrInventoryInsufficientStock)
		},
	}
	h := NewInventoryHandlers(&stubQueryService{}, inventory)

	rr := serveRoutes(h.Routes, staffRequest(http.MethodPost, "/variants/v1/adjustments", `{"warehouseId":"wh-1","locationId":"loc-1","quantity":500}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestInventoryHandlers_ListMovements(t *testing.T) {
	gotLimit := -1
	inventory := &stubInventoryService{
		movementsFn: func(_ context.Context, key string, limit int) ([]domain.InventoryLogEntry, error) {
			gotLimit = limit
			return []domain.InventoryLogEntry{{ID: "log-1", VariantKey: key, Quantity: 2}}, nil
		},
	}
	h := NewInventoryHandlers(&stubQueryService{}, inventory)

	rr := serveRoutes(h.Routes, staffRequest(http.MethodGet, "/variants/v1/movements?limit=10", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotLimit != 10 {
		t.Fatalf("expected limit 10, got %d", gotLimit)
	}

	bad := serveRoutes(h.Routes, staffRequest(http.MethodGet, "/variants/v1/movements?limit=-2", ""))
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for negative limit, got %d", bad.Code)
	}
}
