package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID":   "stockline-dev",
		"API_STORAGE_ASSETS_BUCKET": "stockline-assets-dev",
		"WAREHOUSE_SERVICE_URL":     "https://warehouse.internal/",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Firestore.Backend != StoreBackendFirestore {
		t.Errorf("expected firestore backend by default, got %s", cfg.Firestore.Backend)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "stockline-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "stockline-dev" || cfg.Secrets.ProjectID != "stockline-dev" {
		t.Errorf("expected pubsub and secrets projects to default, got %s %s", cfg.PubSub.ProjectID, cfg.Secrets.ProjectID)
	}
	if cfg.PubSub.ProductEventsTopic != defaultProductEventsTopic {
		t.Errorf("unexpected topic %s", cfg.PubSub.ProductEventsTopic)
	}
	if cfg.Warehouse.BaseURL != "https://warehouse.internal" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Warehouse.BaseURL)
	}
	if cfg.Warehouse.Timeout != defaultWarehouseTimeout {
		t.Errorf("unexpected warehouse timeout %s", cfg.Warehouse.Timeout)
	}
	if cfg.Inventory.ProductIDPrefix != "PID" || cfg.Inventory.ProductIDPadding != 6 || cfg.Inventory.ProductIDCounter != "productId" {
		t.Errorf("unexpected inventory defaults %+v", cfg.Inventory)
	}
	if cfg.Inventory.TxAttempts != defaultTxAttempts || cfg.Inventory.TxTimeout != defaultTxTimeout {
		t.Errorf("unexpected tx defaults %+v", cfg.Inventory)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.Issuers[0] != defaultSecurityIssuer {
		t.Errorf("expected default issuer, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                  "9090",
		"API_SERVER_IDLE_TIMEOUT":          "2m",
		"API_FIREBASE_PROJECT_ID":          "stockline-prod",
		"API_FIRESTORE_PROJECT_ID":         "stockline-db",
		"API_STORAGE_ASSETS_BUCKET":        "assets-prod",
		"WAREHOUSE_SERVICE_URL":            "https://warehouse.example.com",
		"WAREHOUSE_SERVICE_API_KEY":        "secret://warehouse/api-key",
		"WAREHOUSE_SERVICE_TIMEOUT":        "3s",
		"API_PUBSUB_PRODUCT_EVENTS_TOPIC":  "products",
		"API_INVENTORY_PRODUCT_ID_PREFIX":  "SKU",
		"API_INVENTORY_PRODUCT_ID_PADDING": "8",
		"API_INVENTORY_TX_ATTEMPTS":        "3",
		"API_SECURITY_ENVIRONMENT":         "PROD",
		"API_SECURITY_OIDC_AUDIENCE":       "https://inventory.example.com",
		"API_SECURITY_OIDC_ISSUERS":        "https://accounts.google.com, https://cloud.google.com/iap",
		"API_IDEMPOTENCY_HEADER":           "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":              "48h",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://warehouse/api-key" {
			return "wh-key", nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Firestore.ProjectID != "stockline-db" || cfg.PubSub.ProjectID != "stockline-db" {
		t.Errorf("expected pubsub to follow firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Warehouse.APIKey != "wh-key" {
		t.Errorf("expected resolved warehouse api key, got %s", cfg.Warehouse.APIKey)
	}
	if cfg.Warehouse.Timeout != 3*time.Second {
		t.Errorf("unexpected warehouse timeout %s", cfg.Warehouse.Timeout)
	}
	if cfg.PubSub.ProductEventsTopic != "products" {
		t.Errorf("unexpected topic %s", cfg.PubSub.ProductEventsTopic)
	}
	if cfg.Inventory.ProductIDPrefix != "SKU" || cfg.Inventory.ProductIDPadding != 8 || cfg.Inventory.TxAttempts != 3 {
		t.Errorf("unexpected inventory config %+v", cfg.Inventory)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Security.Environment)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("expected 2 issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" || cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency config %+v", cfg.Idempotency)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=sl-dot\nAPI_STORAGE_ASSETS_BUCKET=assets-dot\nexport WAREHOUSE_SERVICE_URL=\"http://localhost:9000\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Warehouse.BaseURL != "http://localhost:9000" {
		t.Errorf("expected warehouse url from dotenv, got %s", cfg.Warehouse.BaseURL)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := map[string]bool{}
	for _, f := range validation.Fields() {
		fields[f] = true
	}
	for _, want := range []string{"Firebase.ProjectID", "Storage.AssetsBucket", "Warehouse.BaseURL"} {
		if !fields[want] {
			t.Errorf("expected %s in %v", want, validation.Fields())
		}
	}
}

func TestLoadMemoryBackendSkipsProjectIDs(t *testing.T) {
	env := map[string]string{
		"API_STORE_BACKEND":         " Memory ",
		"API_STORAGE_ASSETS_BUCKET": "stockline-assets-dev",
		"WAREHOUSE_SERVICE_URL":     "http://localhost:9000",
	}
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firestore.Backend != StoreBackendMemory {
		t.Fatalf("expected memory backend, got %q", cfg.Firestore.Backend)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"relative warehouse url": {"WAREHOUSE_SERVICE_URL": "warehouse.local"},
		"empty prefix":           {"API_INVENTORY_PRODUCT_ID_PREFIX": " "},
		"padding too large":      {"API_INVENTORY_PRODUCT_ID_PADDING": "20"},
		"max below default":      {"API_INVENTORY_MAX_PAGE_LIMIT": "5"},
		"unknown store backend":  {"API_STORE_BACKEND": "sqlite"},
	}
	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			env := baseEnv()
			for k, v := range overrides {
				env[k] = v
			}
			_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := baseEnv()
	env["WAREHOUSE_SERVICE_API_KEY"] = "secret://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Warehouse.APIKey"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Warehouse.APIKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if names := missing.Names(); len(names) != 1 || names[0] != "Warehouse.APIKey" {
			t.Fatalf("unexpected missing secrets %v", names)
		}
	}()

	Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Warehouse.APIKey"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := baseEnv()
	env["WAREHOUSE_SERVICE_API_KEY"] = "sm://warehouse/key"

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://warehouse/key" {
			return "legacy-key", nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Warehouse.APIKey != "legacy-key" {
		t.Fatalf("expected legacy secret, got %s", cfg.Warehouse.APIKey)
	}
}

func TestLoadReportsUnparsableValuesByKey(t *testing.T) {
	env := baseEnv()
	env["API_SERVER_READ_TIMEOUT"] = "soon"
	env["API_INVENTORY_TX_ATTEMPTS"] = "three"
	env["API_FIREBASE_CHECK_REVOKED"] = "maybe"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	got := strings.Join(validation.Fields(), ",")
	for _, key := range []string{"API_SERVER_READ_TIMEOUT", "API_INVENTORY_TX_ATTEMPTS", "API_FIREBASE_CHECK_REVOKED"} {
		if !strings.Contains(got, key) {
			t.Errorf("expected %s in %s", key, got)
		}
	}
}

func TestLoadDotEnvComments(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	content := "# local overrides\nAPI_FIREBASE_PROJECT_ID='sl-dot'\nAPI_STORAGE_ASSETS_BUCKET=assets\nWAREHOUSE_SERVICE_URL=http://localhost:9000\nAPI_SECURITY_OIDC_ISSUERS=\"https://a.example, ,https://b.example\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firebase.ProjectID != "sl-dot" {
		t.Errorf("expected quoted value unwrapped, got %q", cfg.Firebase.ProjectID)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("expected blank issuer dropped, got %v", cfg.Security.OIDC.Issuers)
	}
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(filepath.Join(t.TempDir(), "absent.env")),
	)
	if err != nil {
		t.Fatalf("expected missing dotenv to be ignored, got %v", err)
	}
}
