package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/platform/auth"
	"github.com/stockline/api/internal/services"
)

// ABCHandlers exposes ABC classification settings and recomputation.
type ABCHandlers struct {
	abc services.ABCService
}

// NewABCHandlers constructs ABC classification handlers.
func NewABCHandlers(abc services.ABCService) *ABCHandlers {
	return &ABCHandlers{abc: abc}
}

// Routes registers the staff-facing classification endpoints.
func (h *ABCHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	managers := r.With(requireRoles(auth.RoleManager, auth.RoleAdmin))

	r.Get("/abc-classifications", envelope(h.listClassifications))
	r.Get("/abc-classifications/{classificationKey}", envelope(h.getClassification))
	managers.Post("/abc-classifications", envelope(h.saveClassification))
	managers.Post("/warehouses/{warehouseId}/abc-classify", envelope(h.classify))
}

// InternalRoutes registers the scheduler entry point. The group is expected to enforce OIDC.
func (h *ABCHandlers) InternalRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/abc/{warehouseId}/classify", envelope(h.classify))
}

type classificationPayload struct {
	Key         string           `json:"key"`
	WarehouseID string           `json:"warehouseId"`
	Name        string           `json:"name"`
	ThresholdA  *decimal.Decimal `json:"thresholdA"`
	ThresholdB  *decimal.Decimal `json:"thresholdB"`
}

func (h *ABCHandlers) listClassifications(r *http.Request) (reply, error) {
	items, err := h.abc.ListClassifications(r.Context())
	if err != nil {
		return reply{}, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, classificationDocument(item))
	}
	return okReply("", map[string]any{"items": out})
}

func (h *ABCHandlers) getClassification(r *http.Request) (reply, error) {
	item, err := h.abc.GetClassification(r.Context(), chi.URLParam(r, "classificationKey"))
	if err != nil {
		return reply{}, err
	}
	return okReply("", classificationDocument(item))
}

func (h *ABCHandlers) saveClassification(r *http.Request) (reply, error) {
	var payload classificationPayload
	if err := decodeJSON(r, 8*1024, &payload); err != nil {
		return reply{}, err
	}
	item, err := h.abc.SaveClassification(r.Context(), services.SaveClassificationCommand{
		Key:         payload.Key,
		WarehouseID: payload.WarehouseID,
		Name:        payload.Name,
		ThresholdA:  payload.ThresholdA,
		ThresholdB:  payload.ThresholdB,
	})
	if err != nil {
		return reply{}, err
	}
	return okReply("Classification saved", classificationDocument(item))
}

type classifyRequest struct {
	Since *time.Time `json:"since"`
}

func (h *ABCHandlers) classify(r *http.Request) (reply, error) {
	user, err := requestUser(r)
	if err != nil {
		return reply{}, err
	}
	var req classifyRequest
	body, err := readLimitedBody(r, 1024)
	switch {
	case errors.Is(err, errEmptyBody):
	case err != nil:
		return reply{}, err
	default:
		if err := json.Unmarshal(body, &req); err != nil {
			return reply{}, badRequest("request body must be valid JSON: %v", err)
		}
	}
	cmd := services.ClassifyCommand{WarehouseID: chi.URLParam(r, "warehouseId"), User: user}
	if req.Since != nil {
		cmd.Since = *req.Since
	}
	item, err := h.abc.ClassifyVariants(r.Context(), cmd)
	if err != nil {
		return reply{}, err
	}
	return okReply("Classification computed", classificationDocument(item))
}

func classificationDocument(c domain.ABCClassification) map[string]any {
	assignments := make(map[string]string, len(c.Assignments))
	counts := map[string]int{string(domain.ABCClassA): 0, string(domain.ABCClassB): 0, string(domain.ABCClassC): 0}
	for variantKey, class := range c.Assignments {
		assignments[variantKey] = string(class)
		counts[string(class)]++
	}
	doc := map[string]any{
		"key":         c.Key,
		"warehouseId": c.WarehouseID,
		"name":        c.Name,
		"thresholdA":  c.ThresholdA.String(),
		"thresholdB":  c.ThresholdB.String(),
		"assignments": assignments,
		"counts":      counts,
		"computedAt":  nil,
		"createdAt":   formatTime(c.CreatedAt),
		"updatedAt":   formatTime(c.UpdatedAt),
	}
	if c.ComputedAt != nil {
		doc["computedAt"] = formatTime(*c.ComputedAt)
	}
	return doc
}
