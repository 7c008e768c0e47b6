package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stockline/api/internal/platform/config"
	"github.com/stockline/api/internal/platform/idempotency"
)

func TestParsePairs(t *testing.T) {
	got := parsePairs(" Prod = stockline-prod ,broken, =x, staging=stockline-stg,empty=", strings.ToLower)
	assert.Equal(t, map[string]string{"prod": "stockline-prod", "staging": "stockline-stg"}, got)
	assert.Empty(t, parsePairs("", nil))
}

func TestSecretVersionPins(t *testing.T) {
	got := secretVersionPins("warehouse-api-key=3,Prod:warehouse-api-key=7,secret://jwks-token=2,staging:sm://signer=latest,secret://bad/name=1")
	assert.Equal(t, map[string]string{
		"warehouse-api-key":      "3",
		"prod:warehouse-api-key": "7",
		"jwks-token":             "2",
		"staging:signer":         "latest",
	}, got)
}

func TestRequiredSecretNames(t *testing.T) {
	assert.Empty(t, requiredSecretNames(map[string]string{"WAREHOUSE_SERVICE_API_KEY": "plain-key"}))
	assert.Equal(t, []string{"Warehouse.APIKey"}, requiredSecretNames(map[string]string{"WAREHOUSE_SERVICE_API_KEY": "secret://warehouse-api-key"}))
}

func TestBuildInfoDefaults(t *testing.T) {
	started := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	info := buildInfo(nil, config.Config{}, started)
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "unknown", info.CommitSHA)
	assert.Equal(t, "local", info.Environment)
	assert.Equal(t, started, info.StartedAt)

	var cfg config.Config
	cfg.Security.Environment = "prod"
	info = buildInfo(map[string]string{"API_BUILD_VERSION": "1.8.0", "API_BUILD_COMMIT_SHA": "c0ffee"}, cfg, started)
	assert.Equal(t, "1.8.0", info.Version)
	assert.Equal(t, "c0ffee", info.CommitSHA)
	assert.Equal(t, "prod", info.Environment)
}

func TestUploadSignerOptional(t *testing.T) {
	signer, err := newUploadSigner(context.Background(), config.StorageConfig{})
	require.NoError(t, err)
	assert.Nil(t, signer)
}

func TestOIDCMiddlewareNeedsJWKS(t *testing.T) {
	assert.Nil(t, newOIDCMiddleware(zap.NewNop(), config.OIDCConfig{}))
}

func TestMemoryBackend(t *testing.T) {
	var cfg config.Config
	cfg.Firestore.Backend = config.StoreBackendMemory

	be, err := openBackend(context.Background(), cfg, nil, zap.NewNop(), nil)
	require.NoError(t, err)
	defer be.close()
	assert.NotNil(t, be.registry)
	assert.IsType(t, &idempotency.MemoryStore{}, be.idempotency)
}

func TestSweepIdempotencyStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweepIdempotency(ctx, zap.NewNop(), idempotency.NewMemoryStore(), time.Millisecond, 10)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
