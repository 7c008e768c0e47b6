package storage

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"
)

type fakeSigner struct {
	email    string
	payloads [][]byte
	err      error
}

func (f *fakeSigner) Email() string {
	return f.email
}

func (f *fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return []byte("signed"), nil
}

func TestSignedUploadURLSuccess(t *testing.T) {
	signer := &fakeSigner{email: "uploader@example.iam.gserviceaccount.com"}
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	client, err := NewClient(signer, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}

	res, err := client.SignedUploadURL(context.Background(), "bucket", "assets/products/shared1/images/a1/front.png", UploadOptions{
		ContentType:         "image/png",
		ContentMD5:          "xN0dYbCPv0CM0k9d1u8G7g==",
		RequireMD5:          true,
		AllowedContentTypes: []string{"image/*"},
		MaxSize:             1 << 20,
		ExpiresIn:           10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("SignedUploadURL returned error: %v", err)
	}

	if res.Method != http.MethodPut {
		t.Fatalf("expected default method PUT, got %s", res.Method)
	}
	if !res.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", res.ExpiresAt)
	}
	if res.Headers["Content-Type"] != "image/png" || res.Headers["x-goog-content-length-range"] != "0,1048576" {
		t.Fatalf("unexpected headers %v", res.Headers)
	}

	parsed, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("failed to parse signed URL: %v", err)
	}
	if !strings.Contains(parsed.RawQuery, "X-Goog-Signature=") {
		t.Fatalf("expected signature in query: %s", parsed.RawQuery)
	}
	if len(signer.payloads) == 0 {
		t.Fatalf("expected signer to be invoked")
	}
}

func TestSignedUploadURLValidation(t *testing.T) {
	client, err := NewClient(&fakeSigner{email: "uploader@example.iam.gserviceaccount.com"})
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}

	tests := []struct {
		name string
		opts UploadOptions
		want error
	}{
		{"content type denied", UploadOptions{ContentType: "application/zip", AllowedContentTypes: []string{"image/png", "application/pdf"}}, errContentTypeDenied},
		{"md5 required", UploadOptions{ContentType: "image/png", RequireMD5: true}, errMD5Required},
		{"md5 not base64", UploadOptions{ContentType: "image/png", ContentMD5: "%%%"}, errMD5Invalid},
		{"method", UploadOptions{Method: "GET", ContentType: "image/png"}, errMethodNotAllowed},
		{"expiry", UploadOptions{ContentType: "image/png", ExpiresIn: 2 * time.Hour}, errExpiryTooLong},
		{"content type missing", UploadOptions{}, errContentTypeMissing},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.SignedUploadURL(context.Background(), "bucket", "object", tc.opts)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNewClientRequiresSigner(t *testing.T) {
	if _, err := NewClient(nil); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner, got %v", err)
	}
	var unloaded *KeySigner
	if _, err := NewClient(unloaded); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner for nil signer, got %v", err)
	}
}

func TestContentTypeAllowed(t *testing.T) {
	allowed := []string{"image/*", " Application/PDF "}
	for ct, want := range map[string]bool{
		"image/png":            true,
		"IMAGE/JPEG":           true,
		"application/pdf; q=1": true,
		"application/zip":      false,
		"not a media type/":    false,
		"imagery/png":          false,
	} {
		if got := ContentTypeAllowed(ct, allowed); got != want {
			t.Errorf("ContentTypeAllowed(%q) = %v, want %v", ct, got, want)
		}
	}
	if !ContentTypeAllowed("text/csv", []string{"*"}) {
		t.Error("expected * to allow everything")
	}
}
