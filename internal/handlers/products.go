package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/platform/auth"
	"github.com/stockline/api/internal/platform/pagination"
	"github.com/stockline/api/internal/services"
)

const maxBulkItems = 500

var productListOptions = pagination.Options{
	DefaultLimit:       20,
	MaxLimit:           100,
	AllowedOrderFields: []string{"name", "productId", "category", "status", "type", "createdAt", "updatedAt", "variantCount"},
	AllowedFilterFields: map[string][]pagination.Operator{
		"status":   {pagination.OperatorEqual},
		"type":     {pagination.OperatorEqual},
		"category": {pagination.OperatorEqual},
		"supplier": {pagination.OperatorEqual},
	},
}

// ProductHandlers exposes product lifecycle endpoints.
type ProductHandlers struct {
	products services.ProductService
	queries  services.QueryService
}

// NewProductHandlers constructs product handlers.
func NewProductHandlers(products services.ProductService, queries services.QueryService) *ProductHandlers {
	return &ProductHandlers{products: products, queries: queries}
}

// Routes registers product endpoints. Callers are expected to have authenticated the request.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	writers := r.With(requireRoles(auth.RoleStaff, auth.RoleManager, auth.RoleAdmin))
	managers := r.With(requireRoles(auth.RoleManager, auth.RoleAdmin))

	r.Get("/products", envelope(h.listProducts))
	r.Get("/products/{sharedKey}", envelope(h.getProduct))
	writers.Post("/products", envelope(h.createProduct))
	writers.Patch("/products/{sharedKey}", envelope(h.updateProduct))
	writers.Post("/products/{sharedKey}/duplicate", envelope(h.duplicateProduct))
	managers.Post("/products/{sharedKey}/status", envelope(h.updateStatus))
	managers.Post("/products/bulk-status", envelope(h.bulkProductStatus))
	managers.Post("/variants/bulk-status", envelope(h.bulkVariantStatus))
}

func (h *ProductHandlers) listProducts(r *http.Request) (reply, error) {
	params, err := pagination.FromRequest(r, productListOptions)
	if err != nil {
		return reply{}, err
	}
	query := services.ProductQuery{
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
		switch f.Field {
		case "status":
			status, err := parseStatus(f.Value)
			if err != nil {
				return reply{}, err
			}
			query.Statuses = append(query.Statuses, status)
		case "type":
			itemType, ok := domain.ParseItemType(f.Value)
			if !ok {
				return reply{}, badRequest("unknown item type %q", f.Value)
			}
			query.Types = append(query.Types, itemType)
		case "category":
			query.Category = f.Value
		case "supplier":
			query.Supplier = f.Value
		}
	}

	page, err := h.queries.Products(r.Context(), query)
	if err != nil {
		return reply{}, err
	}
	return okReply("", pageData(page))
}

func (h *ProductHandlers) getProduct(r *http.Request) (reply, error) {
	detail, err := h.products.GetProduct(r.Context(), chi.URLParam(r, "sharedKey"))
	if err != nil {
		return reply{}, err
	}
	return okReply("", detailDocument(detail))
}

func (h *ProductHandlers) createProduct(r *http.Request) (reply, error) {
	user, err := requestUser(r)
	if err != nil {
		return reply{}, err
	}
	var payload productPayload
	if err := decodeJSON(r, maxJSONBody, &payload); err != nil {
		return reply{}, err
	}
	shared, variants, err := payload.toCreate()
	if err != nil {
		return reply{}, err
	}
	summary, err := h.products.CreateProduct(r.Context(), services.CreateProductCommand{
		Product:  shared,
		Variants: variants,
		User:     user,
	})
	if err != nil {
		return reply{}, err
	}
	return createdReply("Product created", services.SummaryDocument(summary))
}

func (h *ProductHandlers) updateProduct(r *http.Request) (reply, error) {
	user, err := requestUser(r)
	if err != nil {
		return reply{}, err
	}
	sharedKey := strings.TrimSpace(chi.URLParam(r, "sharedKey"))
	var payload productPayload
	if err := decodeJSON(r, maxJSONBody, &payload); err != nil {
		return reply{}, err
	}
	patch, err := payload.toPatch()
	if err != nil {
		return reply{}, err
	}

	itemType := domain.ItemTypeProduct
	switch {
	case payload.Type != nil:
		if itemType, err = payload.itemType(); err != nil {
			return reply{}, err
		}
	case payload.hasVariantDetails():
		// Details decode per item type, which only the stored product knows.
		detail, err := h.products.GetProduct(r.Context(), sharedKey)
		if err != nil {
			return reply{}, err
		}
		itemType = detail.Product.Type
	}
	variants, err := payload.variantPatches(itemType)
	if err != nil {
		return reply{}, err
	}

	summary, err := h.products.UpdateProduct(r.Context(), services.UpdateProductCommand{
		SharedKey: sharedKey,
		Patch:     patch,
		Variants:  variants,
		User:      user,
	})
	if err != nil {
		return reply{}, err
	}
	return okReply("Product updated", services.SummaryDocument(summary))
}

func (h *ProductHandlers) duplicateProduct(r *http.Request) (reply, error) {
	user, err := requestUser(r)
	if err != nil {
		return reply{}, err
	}
	summary, err := h.products.DuplicateProduct(r.Context(), services.DuplicateProductCommand{
		SharedKey: chi.URLParam(r, "sharedKey"),
		User:      user,
	})
	if err != nil {
		return reply{}, err
	}
	return createdReply("Product duplicated", services.SummaryDocument(summary))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *ProductHandlers) updateStatus(r *http.Request) (reply, error) {
	user, err := requestUser(r)
	if err != nil {
		return reply{}, err
	}
	var req statusRequest
	if err := decodeJSON(r, 4*1024, &req); err != nil {
		return reply{}, err
	}
	status, err := parseStatus(req.Status)
	if err != nil {
		return reply{}, err
	}
	summary, err := h.products.UpdateSharedStatus(r.Context(), services.SharedStatusCommand{
		SharedKey: chi.URLParam(r, "sharedKey"),
		Status:    status,
		User:      user,
	})
	if err != nil {
		return reply{}, err
	}
	return okReply("Status updated", services.SummaryDocument(summary))
}

type bulkStatusRequest struct {
	Keys   []string `json:"keys"`
	Status string   `json:"status"`
}

func (h *ProductHandlers) bulkProductStatus(r *http.Request) (reply, error) {
	user, err := requestUser(r)
	if err != nil {
		return reply{}, err
	}
	var req bulkStatusRequest
	if err := decodeJSON(r, maxJSONBody, &req); err != nil {
		return reply{}, err
	}
	if len(req.Keys) == 0 {
		return reply{}, badRequest("keys must not be empty")
	}
	if len(req.Keys) > maxBulkItems {
		return reply{}, badRequest("at most %d keys per request", maxBulkItems)
	}
	status, err := parseStatus(req.Status)
	if err != nil {
		return reply{}, err
	}
	results, err := h.products.BulkUpdateSharedStatus(r.Context(), services.BulkSharedStatusCommand{
		SharedKeys: req.Keys,
		Status:     status,
		User:       user,
	})
	if err != nil {
		return reply{}, err
	}
	return bulkReply("Status update", results)
}

type bulkVariantStatusRequest struct {
	Changes []struct {
		VariantKey string `json:"variantKey"`
		Status     string `json:"status"`
	} `json:"changes"`
}

func (h *ProductHandlers) bulkVariantStatus(r *http.Request) (reply, error) {
	user, err := requestUser(r)
	if err != nil {
		return reply{}, err
	}
	var req bulkVariantStatusRequest
	if err := decodeJSON(r, maxJSONBody, &req); err != nil {
		return reply{}, err
	}
	if len(req.Changes) == 0 {
		return reply{}, badRequest("changes must not be empty")
	}
	if len(req.Changes) > maxBulkItems {
		return reply{}, badRequest("at most %d changes per request", maxBulkItems)
	}
	changes := make([]services.VariantStatusChange, 0, len(req.Changes))
	for i, c := range req.Changes {
		status, err := parseStatus(c.Status)
		if err != nil {
			return reply{}, badRequest("changes[%d]: unknown status %q", i, c.Status)
		}
		changes = append(changes, services.VariantStatusChange{VariantKey: c.VariantKey, Status: status})
	}
	results, err := h.products.BulkUpdateVariantStatus(r.Context(), services.BulkVariantStatusCommand{
		Changes: changes,
		User:    user,
	})
	if err != nil {
		return reply{}, err
	}
	return bulkReply("Variant status update", results)
}

func detailDocument(detail services.ProductDetail) map[string]any {
	doc := services.SharedItemDocument(detail.Product)
	variants := make([]map[string]any, 0, len(detail.Variants))
	for _, v := range detail.Variants {
		variants = append(variants, services.VariantDocument(v, true))
	}
	doc["variants"] = variants
	return doc
}

func pageData(page domain.Page[map[string]any]) map[string]any {
	items := page.Items
	if items == nil {
		items = []map[string]any{}
	}
	return map[string]any{
		"items": items,
		"page":  page.Page,
		"limit": page.Limit,
		"total": page.Total,
	}
}

func sortOrder(order pagination.Order) domain.SortOrder {
	if order.Desc {
		return domain.SortDesc
	}
	return domain.SortAsc
}
