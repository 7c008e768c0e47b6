package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/platform/auth"
	"github.com/stockline/api/internal/services"
)

// ProductListHandlers exposes label/value taxonomies such as categories and units.
type ProductListHandlers struct {
	lists services.ProductListService
}

// NewProductListHandlers constructs taxonomy handlers.
func NewProductListHandlers(lists services.ProductListService) *ProductListHandlers {
	return &ProductListHandlers{lists: lists}
}

// Routes registers taxonomy endpoints.
func (h *ProductListHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/lists", envelope(h.listLists))
	r.Get("/lists/{listKey}", envelope(h.getList))
	r.With(requireRoles(auth.RoleAdmin)).Put("/lists/{listKey}", envelope(h.upsertList))
}

type productListPayload struct {
	Name    string `json:"name"`
	Options []struct {
		Label string `json:"label"`
		Value string `json:"value"`
	} `json:"options"`
}

func (h *ProductListHandlers) listLists(r *http.Request) (reply, error) {
	lists, err := h.lists.ListLists(r.Context())
	if err != nil {
		return reply{}, err
	}
	out := make([]map[string]any, 0, len(lists))
	for _, list := range lists {
		out = append(out, productListDocument(list))
	}
	return okReply("", map[string]any{"items": out})
}

func (h *ProductListHandlers) getList(r *http.Request) (reply, error) {
	list, err := h.lists.GetList(r.Context(), chi.URLParam(r, "listKey"))
	if err != nil {
		return reply{}, err
	}
	return okReply("", productListDocument(list))
}

func (h *ProductListHandlers) upsertList(r *http.Request) (reply, error) {
	var payload productListPayload
	if err := decodeJSON(r, 64*1024, &payload); err != nil {
		return reply{}, err
	}
	options := make([]domain.ProductListOption, 0, len(payload.Options))
	for _, o := range payload.Options {
		options = append(options, domain.ProductListOption{Label: o.Label, Value: o.Value})
	}
	list, err := h.lists.UpsertList(r.Context(), services.UpsertProductListCommand{
		Key:     chi.URLParam(r, "listKey"),
		Name:    payload.Name,
		Options: options,
	})
	if err != nil {
		return reply{}, err
	}
	return okReply("List saved", productListDocument(list))
}

func productListDocument(list domain.ProductList) map[string]any {
	options := make([]map[string]any, 0, len(list.Options))
	for _, o := range list.Options {
		options = append(options, map[string]any{"label": o.Label, "value": o.Value})
	}
	return map[string]any{
		"key":       list.Key,
		"name":      list.Name,
		"options":   options,
		"updatedAt": formatTime(list.UpdatedAt),
	}
}
