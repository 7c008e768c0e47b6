package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stockline/api/internal/services"
)

type stubAssetService struct {
	response services.UploadURL
	err      error
	captured services.UploadURLCommand
	calls    int
}

func (s *stubAssetService) IssueUploadURL(_ context.Context, cmd services.UploadURLCommand) (services.UploadURL, error) {
	s.calls++
	s.captured = cmd
	return s.response, s.err
}

func TestAssetHandlers_IssueUploadURL_Success(t *testing.T) {
	expires := time.Date(2026, 5, 1, 10, 15, 0, 0, time.UTC)
	stub := &stubAssetService{
		response: services.UploadURL{
			URL:       "https://storage.example/upload",
			Method:    http.MethodPut,
			ExpiresAt: expires,
			Headers:   map[string]string{"Content-Type": "image/png"},
			AssetURL:  "https://storage.example/products/p1/images/photo.png",
		},
	}
	handler := NewAssetHandlers(stub)
	body := `{"kind":"image","fileName":"photo.png","mimeType":"image/png","sizeBytes":2048}`

	rr := serveRoutes(handler.Routes, staffRequest(http.MethodPost, "/products/p1/upload-url", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if stub.captured.SharedKey != "p1" || stub.captured.ContentType != "image/png" || stub.captured.Size != 2048 {
		t.Fatalf("unexpected command %+v", stub.captured)
	}

	env := decodeEnvelope(t, rr)
	if env.ResponseMessage != "Upload URL issued" {
		t.Fatalf("unexpected message %q", env.ResponseMessage)
	}
	var resp uploadURLResponse
	decodeData(t, env, &resp)
	if resp.UploadURL != stub.response.URL || resp.AssetURL != stub.response.AssetURL {
		t.Fatalf("unexpected urls %+v", resp)
	}
	if resp.ExpiresAt != "2026-05-01T10:15:00Z" {
		t.Fatalf("unexpected expiry %q", resp.ExpiresAt)
	}
	if resp.Headers["Content-Type"] != "image/png" {
		t.Fatalf("expected signed headers echoed, got %v", resp.Headers)
	}
}

func TestAssetHandlers_IssueUploadURL_InvalidInput(t *testing.T) {
	stub := &stubAssetService{err: fmt.Errorf("%w: unsupported content type", services.ErrAssetInvalidInput)}
	handler := NewAssetHandlers(stub)

	rr := serveRoutes(handler.Routes, staffRequest(http.MethodPost, "/products/p1/upload-url", `{"kind":"image","contentType":"text/html","size":10}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAssetHandlers_IssueUploadURL_StorageUnavailable(t *testing.T) {
	stub := &stubAssetService{err: fmt.Errorf("%w: signer offline", services.ErrAssetUnavailable)}
	handler := NewAssetHandlers(stub)

	rr := serveRoutes(handler.Routes, staffRequest(http.MethodPost, "/products/p1/upload-url", `{"kind":"image","contentType":"image/png","size":10}`))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
}

func TestAssetHandlers_IssueUploadURL_EmptyBody(t *testing.T) {
	stub := &stubAssetService{}
	handler := NewAssetHandlers(stub)

	rr := serveRoutes(handler.Routes, staffRequest(http.MethodPost, "/products/p1/upload-url", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if stub.calls != 0 {
		t.Fatal("service must not be called without a body")
	}
}

func TestAssetHandlers_IssueUploadURL_ViewerForbidden(t *testing.T) {
	stub := &stubAssetService{}
	handler := NewAssetHandlers(stub)

	rr := serveRoutes(handler.Routes, staffRequest(http.MethodPost, "/products/p1/upload-url", `{"kind":"image"}`, "viewer"))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}
