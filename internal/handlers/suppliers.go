package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/platform/auth"
	"github.com/stockline/api/internal/services"
)

// SupplierHandlers exposes supplier CRUD and bulk variant assignment.
type SupplierHandlers struct {
	suppliers services.SupplierService
}

// NewSupplierHandlers constructs supplier handlers.
func NewSupplierHandlers(suppliers services.SupplierService) *SupplierHandlers {
	return &SupplierHandlers{suppliers: suppliers}
}

// Routes registers supplier endpoints.
func (h *SupplierHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	managers := r.With(requireRoles(auth.RoleManager, auth.RoleAdmin))

	r.Get("/suppliers", envelope(h.listSuppliers))
	r.Get("/suppliers/{supplierKey}", envelope(h.getSupplier))
	managers.Post("/suppliers", envelope(h.createSupplier))
	managers.Put("/suppliers/{supplierKey}", envelope(h.updateSupplier))
	managers.Post("/suppliers/{supplierKey}/variants", envelope(h.assignVariants))
}

type supplierPayload struct {
	Name         string `json:"name"`
	ContactName  string `json:"contactName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	Website      string `json:"website"`
	Currency     string `json:"currency"`
	LeadTimeDays int    `json:"leadTimeDays"`
	Notes        string `json:"notes"`
	Active       *bool  `json:"active"`
}

func (p supplierPayload) toDomain(key string) domain.Supplier {
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return domain.Supplier{
		Key:          key,
		Name:         p.Name,
		ContactName:  p.ContactName,
		Email:        p.Email,
		Phone:        p.Phone,
		Address:      p.Address,
		Website:      p.Website,
		Currency:     p.Currency,
		LeadTimeDays: p.LeadTimeDays,
		Notes:        p.Notes,
		Active:       active,
	}
}

func (h *SupplierHandlers) listSuppliers(r *http.Request) (reply, error) {
	activeOnly := false
	if raw := strings.TrimSpace(r.URL.Query().Get("active")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return reply{}, badRequest("active must be a boolean")
		}
		activeOnly = v
	}
	suppliers, err := h.suppliers.ListSuppliers(r.Context(), activeOnly)
	if err != nil {
		return reply{}, err
	}
	out := make([]map[string]any, 0, len(suppliers))
	for _, s := range suppliers {
		out = append(out, supplierDocument(s))
	}
	return okReply("", map[string]any{"items": out})
}

func (h *SupplierHandlers) getSupplier(r *http.Request) (reply, error) {
	supplier, err := h.suppliers.GetSupplier(r.Context(), chi.URLParam(r, "supplierKey"))
	if err != nil {
		return reply{}, err
	}
	return okReply("", supplierDocument(supplier))
}

func (h *SupplierHandlers) createSupplier(r *http.Request) (reply, error) {
	var payload supplierPayload
	if err := decodeJSON(r, 16*1024, &payload); err != nil {
		return reply{}, err
	}
	supplier, err := h.suppliers.CreateSupplier(r.Context(), services.UpsertSupplierCommand{Supplier: payload.toDomain("")})
	if err != nil {
		return reply{}, err
	}
	return createdReply("Supplier created", supplierDocument(supplier))
}

func (h *SupplierHandlers) updateSupplier(r *http.Request) (reply, error) {
	var payload supplierPayload
	if err := decodeJSON(r, 16*1024, &payload); err != nil {
		return reply{}, err
	}
	key := strings.TrimSpace(chi.URLParam(r, "supplierKey"))
	supplier, err := h.suppliers.UpdateSupplier(r.Context(), services.UpsertSupplierCommand{Supplier: payload.toDomain(key)})
	if err != nil {
		return reply{}, err
	}
	return okReply("Supplier updated", supplierDocument(supplier))
}

type assignVariantsRequest struct {
	VariantKeys []string `json:"variantKeys"`
}

func (h *SupplierHandlers) assignVariants(r *http.Request) (reply, error) {
	user, err := requestUser(r)
	if err != nil {
		return reply{}, err
	}
	var req assignVariantsRequest
	if err := decodeJSON(r, maxJSONBody, &req); err != nil {
		return reply{}, err
	}
	if len(req.VariantKeys) == 0 {
		return reply{}, badRequest("variantKeys must not be empty")
	}
	if len(req.VariantKeys) > maxBulkItems {
		return reply{}, badRequest("at most %d variantKeys per request", maxBulkItems)
	}
	results, err := h.suppliers.BulkUpdateSupplier(r.Context(), services.BulkSupplierCommand{
		VariantKeys: req.VariantKeys,
		SupplierKey: chi.URLParam(r, "supplierKey"),
		User:        user,
	})
	if err != nil {
		return reply{}, err
	}
	return bulkReply("Supplier assignment", results)
}

func supplierDocument(s domain.Supplier) map[string]any {
	return map[string]any{
		"key":          s.Key,
		"name":         s.Name,
		"contactName":  s.ContactName,
		"email":        s.Email,
		"phone":        s.Phone,
		"address":      s.Address,
		"website":      s.Website,
		"currency":     s.Currency,
		"leadTimeDays": s.LeadTimeDays,
		"notes":        s.Notes,
		"active":       s.Active,
		"createdAt":    formatTime(s.CreatedAt),
		"updatedAt":    formatTime(s.UpdatedAt),
	}
}
