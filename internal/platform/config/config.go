package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultSecurityEnvironment  = "local"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer       = "https://accounts.google.com"
	defaultWarehouseTimeout     = 10 * time.Second
	defaultProductEventsTopic   = "inventory-product-events"
	defaultProductIDPrefix      = "PID"
	defaultProductIDPadding     = 6
	defaultProductIDCounter     = "productId"
	defaultTxAttempts           = 5
	defaultTxTimeout            = 15 * time.Second
	defaultPageLimit            = 25
	defaultMaxPageLimit         = 200
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultUploadURLExpiry      = 15 * time.Minute
	defaultExportRateLimit      = 10
	defaultExportRateWindow     = time.Minute
)

// Store backends accepted by API_STORE_BACKEND.
const (
	StoreBackendFirestore = "firestore"
	StoreBackendMemory    = "memory"
)

type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	Warehouse   WarehouseConfig
	PubSub      PubSubConfig
	Secrets     SecretsConfig
	Inventory   InventoryConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

type ServerConfig struct {
	Port         string `validate:"required,numeric"`
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	// CheckRevoked makes every verification consult Firebase for revoked sessions and
	// disabled accounts.
	CheckRevoked bool
}

// FirestoreConfig selects the product store. Backend "memory" keeps everything in process
// for local runs.
type FirestoreConfig struct {
	Backend      string `validate:"oneof=firestore memory"`
	ProjectID    string
	EmulatorHost string
}

// StorageConfig names the bucket holding product images and documents.
type StorageConfig struct {
	AssetsBucket string `validate:"notblank"`
	// SignerCredentialsFile is a service account key used to sign upload URLs.
	SignerCredentialsFile string
	// SignerServiceAccount signs through IAM signBlob when no key file is set. With neither,
	// uploads are disabled.
	SignerServiceAccount string
	UploadURLExpiry      time.Duration `validate:"gt=0,max=168h"`
}

type WarehouseConfig struct {
	BaseURL string        `validate:"required,http_url"`
	APIKey  string
	Timeout time.Duration `validate:"gt=0"`
}

// PubSubConfig controls product event publishing. An empty topic disables it.
type PubSubConfig struct {
	ProjectID          string
	ProductEventsTopic string
}

type SecretsConfig struct {
	ProjectID string
}

// InventoryConfig holds product identity and transaction tuning.
type InventoryConfig struct {
	ProductIDPrefix  string `validate:"notblank"`
	ProductIDPadding int    `validate:"min=0,max=15"`
	ProductIDCounter string `validate:"notblank"`
	TxAttempts       int    `validate:"gt=0"`
	TxTimeout        time.Duration
	DefaultPageLimit int `validate:"gt=0"`
	MaxPageLimit     int `validate:"gtefield=DefaultPageLimit"`
	// ExportRateLimit caps inventory exports per user within ExportRateWindow. Zero disables the cap.
	ExportRateLimit  int `validate:"min=0"`
	ExportRateWindow time.Duration
}

type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification on internal routes.
type OIDCConfig struct {
	JWKSURL         string `validate:"required,http_url"`
	Audience        string
	Issuers         []string
	ServiceAccounts []string
}

type IdempotencyConfig struct {
	Header           string        `validate:"notblank"`
	TTL              time.Duration `validate:"gt=0"`
	CleanupInterval  time.Duration
	CleanupBatchSize int `validate:"gt=0"`
}

// Option customises Load and EnvironmentValues.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
	panicOnMissing  bool
}

func newLoaderOptions(opts []Option) loaderOptions {
	o := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithEnvFile points at the dotenv file used for local overrides. An empty path skips it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects values that win over both the process environment and the dotenv file.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver resolves secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets names secret-backed fields, e.g. "Warehouse.APIKey", that must resolve
// to a non-empty value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) { o.panicOnMissing = true }
}

// EnvironmentValues flattens every source Load would read, so dependencies such as the secret
// fetcher can be built from the same inputs before Load runs.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	src, err := newSource(newLoaderOptions(opts))
	if err != nil {
		return nil, err
	}
	return src.flatten(), nil
}

// Load builds the configuration. Values come from the env map, then the process environment,
// then the dotenv file; anything unset takes its default.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	o := newLoaderOptions(opts)
	src, err := newSource(o)
	if err != nil {
		return Config{}, err
	}
	r := &reader{src: src}

	cfg := Config{
		Server: ServerConfig{
			Port:         r.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  r.dur("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: r.dur("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  r.dur("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       r.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: r.str("API_FIREBASE_CREDENTIALS_FILE", ""),
			CheckRevoked:    r.flag("API_FIREBASE_CHECK_REVOKED", false),
		},
		Firestore: FirestoreConfig{
			Backend:      strings.ToLower(strings.TrimSpace(r.str("API_STORE_BACKEND", StoreBackendFirestore))),
			ProjectID:    r.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: r.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			AssetsBucket:          r.str("API_STORAGE_ASSETS_BUCKET", ""),
			SignerCredentialsFile: r.str("API_STORAGE_SIGNER_CREDENTIALS_FILE", ""),
			SignerServiceAccount:  r.str("API_STORAGE_SIGNER_SERVICE_ACCOUNT", ""),
			UploadURLExpiry:       r.dur("API_STORAGE_UPLOAD_URL_EXPIRY", defaultUploadURLExpiry),
		},
		Warehouse: WarehouseConfig{
			BaseURL: strings.TrimRight(r.str("WAREHOUSE_SERVICE_URL", ""), "/"),
			APIKey:  r.str("WAREHOUSE_SERVICE_API_KEY", ""),
			Timeout: r.dur("WAREHOUSE_SERVICE_TIMEOUT", defaultWarehouseTimeout),
		},
		PubSub: PubSubConfig{
			ProjectID:          r.str("API_PUBSUB_PROJECT_ID", ""),
			ProductEventsTopic: r.str("API_PUBSUB_PRODUCT_EVENTS_TOPIC", defaultProductEventsTopic),
		},
		Secrets: SecretsConfig{
			ProjectID: r.str("API_SECRETS_PROJECT_ID", ""),
		},
		Inventory: InventoryConfig{
			ProductIDPrefix:  r.str("API_INVENTORY_PRODUCT_ID_PREFIX", defaultProductIDPrefix),
			ProductIDPadding: r.num("API_INVENTORY_PRODUCT_ID_PADDING", defaultProductIDPadding),
			ProductIDCounter: r.str("API_INVENTORY_PRODUCT_ID_COUNTER", defaultProductIDCounter),
			TxAttempts:       r.num("API_INVENTORY_TX_ATTEMPTS", defaultTxAttempts),
			TxTimeout:        r.dur("API_INVENTORY_TX_TIMEOUT", defaultTxTimeout),
			DefaultPageLimit: r.num("API_INVENTORY_PAGE_LIMIT", defaultPageLimit),
			MaxPageLimit:     r.num("API_INVENTORY_MAX_PAGE_LIMIT", defaultMaxPageLimit),
			ExportRateLimit:  r.num("API_INVENTORY_EXPORT_RATE_LIMIT", defaultExportRateLimit),
			ExportRateWindow: r.dur("API_INVENTORY_EXPORT_RATE_WINDOW", defaultExportRateWindow),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(r.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:         r.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:        r.str("API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:         r.list("API_SECURITY_OIDC_ISSUERS", defaultSecurityIssuer),
				ServiceAccounts: r.list("API_SECURITY_OIDC_SERVICE_ACCOUNTS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           r.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              r.dur("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  r.dur("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: r.num("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}

	// Firestore, Pub/Sub and Secret Manager share the Firebase project unless told otherwise.
	cfg.Firestore.ProjectID = firstNonEmpty(cfg.Firestore.ProjectID, cfg.Firebase.ProjectID)
	cfg.PubSub.ProjectID = firstNonEmpty(cfg.PubSub.ProjectID, cfg.Firestore.ProjectID)
	cfg.Secrets.ProjectID = firstNonEmpty(cfg.Secrets.ProjectID, cfg.Firestore.ProjectID)

	resolved := make(map[string]string)
	for name, field := range map[string]*string{
		"Warehouse.APIKey": &cfg.Warehouse.APIKey,
	} {
		value, err := resolveSecret(ctx, *field, o.secret)
		if err != nil {
			return Config{}, err
		}
		*field = value
		resolved[name] = strings.TrimSpace(value)
	}

	if err := validate(cfg, r.invalid); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(o.requiredSecrets, resolved); missing != nil {
		if o.panicOnMissing {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
