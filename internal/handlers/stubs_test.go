package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/platform/auth"
	"github.com/stockline/api/internal/services"
)

type stubProductService struct {
	createFn      func(context.Context, services.CreateProductCommand) (domain.ProductSummary, error)
	getFn         func(context.Context, string) (services.ProductDetail, error)
	updateFn      func(context.Context, services.UpdateProductCommand) (domain.ProductSummary, error)
	duplicateFn   func(context.Context, services.DuplicateProductCommand) (domain.ProductSummary, error)
	statusFn      func(context.Context, services.SharedStatusCommand) (domain.ProductSummary, error)
	bulkSharedFn  func(context.Context, services.BulkSharedStatusCommand) ([]domain.BulkResult, error)
	bulkVariantFn func(context.Context, services.BulkVariantStatusCommand) ([]domain.BulkResult, error)
}

func (s *stubProductService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (domain.ProductSummary, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubProductService) GetProduct(ctx context.Context, key string) (services.ProductDetail, error) {
	return s.getFn(ctx, key)
}

func (s *stubProductService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (domain.ProductSummary, error) {
	return s.updateFn(ctx, cmd)
}

func (s *stubProductService) DuplicateProduct(ctx context.Context, cmd services.DuplicateProductCommand) (domain.ProductSummary, error) {
	return s.duplicateFn(ctx, cmd)
}

func (s *stubProductService) UpdateSharedStatus(ctx context.Context, cmd services.SharedStatusCommand) (domain.ProductSummary, error) {
	return s.statusFn(ctx, cmd)
}

func (s *stubProductService) BulkUpdateSharedStatus(ctx context.Context, cmd services.BulkSharedStatusCommand) ([]domain.BulkResult, error) {
	return s.bulkSharedFn(ctx, cmd)
}

func (s *stubProductService) BulkUpdateVariantStatus(ctx context.Context, cmd services.BulkVariantStatusCommand) ([]domain.BulkResult, error) {
	return s.bulkVariantFn(ctx, cmd)
}

type stubQueryService struct {
	inventoryFn func(context.Context, services.InventoryQuery) (domain.Page[map[string]any], error)
	productsFn  func(context.Context, services.ProductQuery) (domain.Page[map[string]any], error)
	exportFn    func(context.Context, services.InventoryQuery) ([]map[string]any, error)
}

func (s *stubQueryService) InventoryItems(ctx context.Context, q services.InventoryQuery) (domain.Page[map[string]any], error) {
	return s.inventoryFn(ctx, q)
}

func (s *stubQueryService) Products(ctx context.Context, q services.ProductQuery) (domain.Page[map[string]any], error) {
	return s.productsFn(ctx, q)
}

func (s *stubQueryService) ExportInventory(ctx context.Context, q services.InventoryQuery) ([]map[string]any, error) {
	return s.exportFn(ctx, q)
}

type stubInventoryService struct {
	adjustFn    func(context.Context, services.AdjustStockCommand) (services.AdjustStockResult, error)
	movementsFn func(context.Context, string, int) ([]domain.InventoryLogEntry, error)
}

func (s *stubInventoryService) AdjustStock(ctx context.Context, cmd services.AdjustStockCommand) (services.AdjustStockResult, error) {
	return s.adjustFn(ctx, cmd)
}

func (s *stubInventoryService) ListMovements(ctx context.Context, key string, limit int) ([]domain.InventoryLogEntry, error) {
	return s.movementsFn(ctx, key, limit)
}

type testEnvelope struct {
	Status          int             `json:"status"`
	Type            string          `json:"type"`
	ResponseMessage string          `json:"responseMessage"`
	Data            json.RawMessage `json:"data"`
}

func staffRequest(method, target, body string, roles ...string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if len(roles) == 0 {
		roles = []string{auth.RoleStaff}
	}
	identity := &auth.Identity{UID: "user-1", Email: "ops@stockline.test", Roles: roles}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func serveRoutes(registrar RouteRegistrar, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	registrar(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope %q: %v", rr.Body.String(), err)
	}
	return env
}

func decodeData(t *testing.T, env testEnvelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("failed to decode data %s: %v", env.Data, err)
	}
}
