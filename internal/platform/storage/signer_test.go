package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/api/option"
)

func writeKeyFile(t *testing.T, key *rsa.PrivateKey, email string) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	body, _ := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": email,
		"private_key":  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	})
	path := filepath.Join(t.TempDir(), "signer.json")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path
}

func TestKeySignerSignaturesVerify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := LoadKeySigner(writeKeyFile(t, key, "uploads@stockline.iam.gserviceaccount.com"))
	if err != nil {
		t.Fatalf("load signer: %v", err)
	}
	if signer.Email() != "uploads@stockline.iam.gserviceaccount.com" {
		t.Fatalf("unexpected email %q", signer.Email())
	}

	payload := []byte("GOOG4-RSA-SHA256\n20260301T000000Z")
	sig, err := signer.SignBytes(context.Background(), payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	digest := sha256.Sum256(payload)
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
		t.Fatalf("signature does not verify: %v", err)
	}
}

func TestLoadKeySignerEmptyPathDisablesSigning(t *testing.T) {
	signer, err := LoadKeySigner("  ")
	if err != nil || signer != nil {
		t.Fatalf("expected nil signer, got %v %v", signer, err)
	}
}

func TestNewKeySignerRejectsIncompleteKeys(t *testing.T) {
	for _, raw := range []string{`{`, `{"private_key":"x"}`, `{"client_email":"a@b","private_key":"not pem"}`} {
		if _, err := NewKeySigner([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestIAMSignerCallsSignBlob(t *testing.T) {
	var gotPath, gotPayload string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req struct {
			Payload string `json:"payload"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotPayload = req.Payload
		_ = json.NewEncoder(w).Encode(map[string]string{
			"keyId":      "k1",
			"signedBlob": base64.StdEncoding.EncodeToString([]byte("sig-bytes")),
		})
	}))
	defer server.Close()

	email := "runtime@stockline.iam.gserviceaccount.com"
	signer, err := NewIAMSigner(context.Background(), email,
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
		option.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("new iam signer: %v", err)
	}
	sig, err := signer.SignBytes(context.Background(), []byte("canonical"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if string(sig) != "sig-bytes" {
		t.Fatalf("unexpected signature %q", sig)
	}
	if !strings.HasSuffix(gotPath, "/projects/-/serviceAccounts/"+email+":signBlob") {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotPayload != base64.StdEncoding.EncodeToString([]byte("canonical")) {
		t.Fatalf("unexpected payload %s", gotPayload)
	}
}
