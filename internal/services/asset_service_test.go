package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/stockline/api/internal/domain"
	pstorage "github.com/stockline/api/internal/platform/storage"
	"github.com/stockline/api/internal/repositories/memory"
)

type stubUploadSigner struct {
	bucket string
	object string
	opts   pstorage.UploadOptions
	result pstorage.SignedURLResult
	err    error
	calls  int
}

func (s *stubUploadSigner) SignedUploadURL(_ context.Context, bucket, object string, opts pstorage.UploadOptions) (pstorage.SignedURLResult, error) {
	s.calls++
	s.bucket = bucket
	s.object = object
	s.opts = opts
	if s.err != nil {
		return pstorage.SignedURLResult{}, s.err
	}
	return s.result, nil
}

func newAssetTestService(t *testing.T, signer *stubUploadSigner) (AssetService, string) {
	t.Helper()
	store := memory.NewStore()
	reg := memory.NewRegistry(store, nil)
	key := "prod-1"
	if err := reg.SharedItems().Insert(context.Background(), domain.SharedItem{Key: key, Name: "Widget"}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	svc, err := NewAssetService(AssetServiceDeps{
		Signer:      signer,
		SharedItems: reg.SharedItems(),
		Bucket:      "stockline-assets",
		Expiry:      10 * time.Minute,
		Clock:       func() time.Time { return testNow },
		IDGenerator: func() string { return "asset_123" },
	})
	if err != nil {
		t.Fatalf("NewAssetService error: %v", err)
	}
	return svc, key
}

func TestAssetServiceIssueUploadURLSuccess(t *testing.T) {
	signer := &stubUploadSigner{result: pstorage.SignedURLResult{
		URL:       "https://storage.example/upload",
		Method:    "PUT",
		ExpiresAt: testNow.Add(10 * time.Minute),
		Headers:   map[string]string{"Content-Type": "image/png"},
	}}
	svc, key := newAssetTestService(t, signer)

	resp, err := svc.IssueUploadURL(context.Background(), UploadURLCommand{
		SharedKey:   key,
		Kind:        " IMAGE ",
		FileName:    "../photos/Front.png",
		ContentType: "Image/PNG",
		Size:        1024,
	})
	if err != nil {
		t.Fatalf("IssueUploadURL error: %v", err)
	}

	if signer.bucket != "stockline-assets" {
		t.Fatalf("expected bucket stockline-assets, got %q", signer.bucket)
	}
	wantObject := "assets/products/prod-1/images/asset_123/Front.png"
	if signer.object != wantObject {
		t.Fatalf("expected object %q, got %q", wantObject, signer.object)
	}
	if signer.opts.Method != "PUT" || signer.opts.ContentType != "image/png" {
		t.Fatalf("unexpected upload options %+v", signer.opts)
	}
	if signer.opts.MaxSize != defaultMaxImageSize {
		t.Fatalf("expected image size limit, got %d", signer.opts.MaxSize)
	}
	if signer.opts.ExpiresIn != 10*time.Minute {
		t.Fatalf("expected expiry propagated, got %s", signer.opts.ExpiresIn)
	}
	if resp.URL != "https://storage.example/upload" || resp.Method != "PUT" {
		t.Fatalf("unexpected signed response %+v", resp)
	}
	if resp.AssetURL != "https://storage.googleapis.com/stockline-assets/"+wantObject {
		t.Fatalf("unexpected asset url %q", resp.AssetURL)
	}
}

func TestAssetServiceIssueUploadURLDocKind(t *testing.T) {
	signer := &stubUploadSigner{result: pstorage.SignedURLResult{URL: "https://storage.example/doc", Method: "PUT"}}
	svc, key := newAssetTestService(t, signer)

	_, err := svc.IssueUploadURL(context.Background(), UploadURLCommand{
		SharedKey:   key,
		Kind:        AssetKindDoc,
		FileName:    "datasheet.pdf",
		ContentType: "application/pdf",
		Size:        20 * 1024 * 1024,
	})
	if err != nil {
		t.Fatalf("IssueUploadURL error: %v", err)
	}
	if !strings.Contains(signer.object, "/docs/") {
		t.Fatalf("expected docs folder, got %q", signer.object)
	}
}

func TestAssetServiceIssueUploadURLValidation(t *testing.T) {
	cases := []struct {
		name string
		cmd  UploadURLCommand
	}{
		{name: "missing product", cmd: UploadURLCommand{ContentType: "image/png", Size: 1}},
		{name: "unknown kind", cmd: UploadURLCommand{SharedKey: "prod-1", Kind: "video", ContentType: "video/mp4", Size: 1}},
		{name: "missing content type", cmd: UploadURLCommand{SharedKey: "prod-1", Size: 1}},
		{name: "content type not allowed", cmd: UploadURLCommand{SharedKey: "prod-1", ContentType: "application/pdf", Size: 1}},
		{name: "zero size", cmd: UploadURLCommand{SharedKey: "prod-1", ContentType: "image/png"}},
		{name: "too large", cmd: UploadURLCommand{SharedKey: "prod-1", ContentType: "image/png", Size: defaultMaxImageSize + 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			signer := &stubUploadSigner{}
			svc, _ := newAssetTestService(t, signer)
			_, err := svc.IssueUploadURL(context.Background(), tc.cmd)
			if !errors.Is(err, ErrAssetInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			if signer.calls != 0 {
				t.Fatalf("expected signer not called")
			}
		})
	}
}

func TestAssetServiceIssueUploadURLUnknownProduct(t *testing.T) {
	signer := &stubUploadSigner{}
	svc, _ := newAssetTestService(t, signer)

	_, err := svc.IssueUploadURL(context.Background(), UploadURLCommand{
		SharedKey:   "missing",
		ContentType: "image/png",
		Size:        10,
	})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if signer.calls != 0 {
		t.Fatalf("expected signer not called")
	}
}

func TestAssetServiceIssueUploadURLSignerFailure(t *testing.T) {
	signer := &stubUploadSigner{err: errors.New("no credentials")}
	svc, key := newAssetTestService(t, signer)

	_, err := svc.IssueUploadURL(context.Background(), UploadURLCommand{
		SharedKey:   key,
		FileName:    "",
		ContentType: "image/webp",
		Size:        10,
	})
	if !errors.Is(err, ErrAssetUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if !strings.HasPrefix(signer.object, "assets/products/prod-1/images/asset_123/image_") {
		t.Fatalf("expected generated file name, got %q", signer.object)
	}
}

func TestNewAssetServiceRequiresDependencies(t *testing.T) {
	store := memory.NewStore()
	reg := memory.NewRegistry(store, nil)
	if _, err := NewAssetService(AssetServiceDeps{SharedItems: reg.SharedItems(), Bucket: "b"}); err == nil {
		t.Fatal("expected error without signer")
	}
	if _, err := NewAssetService(AssetServiceDeps{Signer: &stubUploadSigner{}, Bucket: "b"}); err == nil {
		t.Fatal("expected error without repository")
	}
	if _, err := NewAssetService(AssetServiceDeps{Signer: &stubUploadSigner{}, SharedItems: reg.SharedItems(), Bucket: " "}); err == nil {
		t.Fatal("expected error without bucket")
	}
}
