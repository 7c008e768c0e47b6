package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockline/api/internal/platform/auth"
	"github.com/stockline/api/internal/services"
)

const maxAssetRequestBody = 4 * 1024

// AssetHandlers exposes endpoints for issuing signed asset upload URLs.
type AssetHandlers struct {
	assets services.AssetService
}

// NewAssetHandlers constructs asset handlers.
func NewAssetHandlers(assets services.AssetService) *AssetHandlers {
	return &AssetHandlers{assets: assets}
}

// Routes registers the asset endpoints on the provided router.
func (h *AssetHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(requireRoles(auth.RoleStaff, auth.RoleManager, auth.RoleAdmin)).
		Post("/products/{sharedKey}/upload-url", envelope(h.issueUploadURL))
}

type uploadURLRequest struct {
	Kind        string `json:"kind"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	MimeType    string `json:"mimeType"`
	Size        int64  `json:"size"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type uploadURLResponse struct {
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	ExpiresAt string            `json:"expiresAt,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	AssetURL  string            `json:"assetUrl"`
}

func (h *AssetHandlers) issueUploadURL(r *http.Request) (reply, error) {
	if _, err := requestUser(r); err != nil {
		return reply{}, err
	}
	var req uploadURLRequest
	if err := decodeJSON(r, maxAssetRequestBody, &req); err != nil {
		return reply{}, err
	}

	size := req.Size
	if size <= 0 {
		size = req.SizeBytes
	}
	issued, err := h.assets.IssueUploadURL(r.Context(), services.UploadURLCommand{
		SharedKey:   chi.URLParam(r, "sharedKey"),
		Kind:        req.Kind,
		FileName:    req.FileName,
		ContentType: firstNonEmptyTrimmed(req.ContentType, req.MimeType),
		Size:        size,
	})
	if err != nil {
		return reply{}, err
	}

	payload := uploadURLResponse{
		UploadURL: issued.URL,
		Method:    issued.Method,
		Headers:   issued.Headers,
		AssetURL:  issued.AssetURL,
	}
	if !issued.ExpiresAt.IsZero() {
		payload.ExpiresAt = issued.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return okReply("Upload URL issued", payload)
}

func firstNonEmptyTrimmed(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
