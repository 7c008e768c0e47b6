package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/platform/auth"
	"github.com/stockline/api/internal/platform/pagination"
	"github.com/stockline/api/internal/services"
)

var inventoryListOptions = pagination.Options{
	DefaultLimit: 50,
	MaxLimit:     200,
	AllowedOrderFields: []string{
		"quantity", "variantId", "variantDescription", "sku", "status", "warehouseName",
		"unitType", "stockUnit", "unitCost", "product.name", "createdAt", "updatedAt",
	},
	AllowedFilterFields: map[string][]pagination.Operator{
		"status": {pagination.OperatorEqual},
	},
}

// InventoryHandlers serves the warehouse stock view and stock movements.
type InventoryHandlers struct {
	queries       services.QueryService
	inventory     services.InventoryService
	exportLimiter rateLimiter
}

// InventoryOption customises InventoryHandlers.
type InventoryOption func(*InventoryHandlers)

// WithExportRateLimit caps exports per user within window. Non-positive values disable the cap.
func WithExportRateLimit(limit int, window time.Duration) InventoryOption {
	return func(h *InventoryHandlers) {
		h.exportLimiter = newWindowLimiter(limit, window, nil)
	}
}

// NewInventoryHandlers constructs inventory handlers.
func NewInventoryHandlers(queries services.QueryService, inventory services.InventoryService, opts ...InventoryOption) *InventoryHandlers {
	h := &InventoryHandlers{queries: queries, inventory: inventory}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers inventory endpoints.
func (h *InventoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/inventory", envelope(h.listInventory))
	r.Get("/inventory/export", envelope(h.exportInventory))
	r.Get("/variants/{variantKey}/movements", envelope(h.listMovements))
	r.With(requireRoles(auth.RoleStaff, auth.RoleManager, auth.RoleAdmin)).
		Post("/variants/{variantKey}/adjustments", envelope(h.adjustStock))
}

func (h *InventoryHandlers) inventoryQuery(r *http.Request) (services.InventoryQuery, error) {
	user, err := requestUser(r)
	if err != nil {
		return services.InventoryQuery{}, err
	}
	params, err := pagination.FromRequest(r, inventoryListOptions)
	if err != nil {
		return services.InventoryQuery{}, err
	}
	query := services.InventoryQuery{
		Token:  user.Token,
		Page:   params.Page,
		Limit:  params.Limit,
		Search: params.Search,
		Fields: params.Fields,
	}
	if len(params.Orders) > 0 {
		query.SortField = params.Orders[0].Field
		query.SortOrder = sortOrder(params.Orders[0])
	}
	for _, f := range params.Filters {
		status, err := parseStatus(f.Value)
		if err != nil {
			return services.InventoryQuery{}, err
		}
		query.Statuses = append(query.Statuses, status)
	}
	return query, nil
}

func (h *InventoryHandlers) listInventory(r *http.Request) (reply, error) {
	query, err := h.inventoryQuery(r)
	if err != nil {
		return reply{}, err
	}
	page, err := h.queries.InventoryItems(r.Context(), query)
	if err != nil {
		return reply{}, err
	}
	return okReply("", pageData(page))
}

func (h *InventoryHandlers) exportInventory(r *http.Request) (reply, error) {
	query, err := h.inventoryQuery(r)
	if err != nil {
		return reply{}, err
	}
	if h.exportLimiter != nil {
		user, _ := requestUser(r)
		if !h.exportLimiter.Allow(user.UID) {
			return reply{}, errRateLimited
		}
	}
	rows, err := h.queries.ExportInventory(r.Context(), query)
	if err != nil {
		return reply{}, err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return okReply("", map[string]any{"rows": rows, "count": len(rows)})
}

type adjustStockRequest struct {
	WarehouseID  string  `json:"warehouseId"`
	LocationID   string  `json:"locationId"`
	LocationName string  `json:"locationName"`
	Quantity     float64 `json:"quantity"`
	Reason       string  `json:"reason"`
}

func (h *InventoryHandlers) adjustStock(r *http.Request) (reply, error) {
	user, err := requestUser(r)
	if err != nil {
		return reply{}, err
	}
	var req adjustStockRequest
	if err := decodeJSON(r, 8*1024, &req); err != nil {
		return reply{}, err
	}
	result, err := h.inventory.AdjustStock(r.Context(), services.AdjustStockCommand{
		VariantKey:   chi.URLParam(r, "variantKey"),
		WarehouseID:  req.WarehouseID,
		LocationID:   req.LocationID,
		LocationName: req.LocationName,
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		User:         user,
	})
	if err != nil {
		return reply{}, err
	}
	variant := services.VariantDocument(result.Variant, false)
	delete(variant, "activityLog")
	return okReply("Stock adjusted", map[string]any{
		"variant":  variant,
		"movement": movementDocument(result.Movement),
	})
}

func (h *InventoryHandlers) listMovements(r *http.Request) (reply, error) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return reply{}, badRequest("limit must be a positive integer")
		}
		limit = n
	}
	entries, err := h.inventory.ListMovements(r.Context(), chi.URLParam(r, "variantKey"), limit)
	if err != nil {
		return reply{}, err
	}
	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		out = append(out, movementDocument(entry))
	}
	return okReply("", map[string]any{"items": out})
}

func movementDocument(entry domain.InventoryLogEntry) map[string]any {
	return map[string]any{
		"id":           entry.ID,
		"variantKey":   entry.VariantKey,
		"variantId":    entry.VariantID,
		"sharedKey":    entry.SharedKey,
		"warehouseId":  entry.WarehouseID,
		"locationId":   entry.LocationID,
		"quantity":     entry.Quantity,
		"quantityHeld": entry.QuantityHeld,
		"unitCost":     entry.UnitCost.StringFixed(2),
		"totalValue":   entry.TotalValue.StringFixed(2),
		"reason":       entry.Reason,
		"performedBy":  entry.PerformedBy,
		"createdAt":    formatTime(entry.CreatedAt),
	}
}
