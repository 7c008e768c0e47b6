package firestore

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockline/api/internal/platform/config"
)

func TestProviderWithoutProjectRetriesDial(t *testing.T) {
	t.Setenv(envGoogleProjectID, "")
	t.Setenv(envEmulatorHost, "")
	p := NewProvider(config.FirestoreConfig{})

	for range 2 {
		_, err := p.Client(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrProviderClosed)
	}
}

func TestProviderCloseIsFinal(t *testing.T) {
	p := NewProvider(config.FirestoreConfig{ProjectID: "stockline-test"})
	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))

	_, err := p.Client(context.Background())
	assert.ErrorIs(t, err, ErrProviderClosed)
	assert.ErrorIs(t, p.RunTransaction(context.Background(), func(context.Context, *firestore.Transaction) error { return nil }), ErrProviderClosed)

	var nilProvider *Provider
	assert.NoError(t, nilProvider.Close(context.Background()))
}

func TestProviderEmulatorHostPrefersConfig(t *testing.T) {
	t.Setenv(envEmulatorHost, "env-host:8080")
	assert.Equal(t, "cfg-host:9090", NewProvider(config.FirestoreConfig{EmulatorHost: " cfg-host:9090 "}).emulatorHost())
	assert.Equal(t, "env-host:8080", NewProvider(config.FirestoreConfig{}).emulatorHost())
}

func TestProviderOptions(t *testing.T) {
	t.Setenv(envEmulatorHost, "")
	p := NewProvider(config.FirestoreConfig{}, WithDialTimeout(time.Second), WithDialTimeout(0))
	assert.Equal(t, time.Second, p.dialTimeout)
	assert.Empty(t, p.options())

	p = NewProvider(config.FirestoreConfig{EmulatorHost: "localhost:8686"})
	assert.Len(t, p.options(), 3)
}

func TestRunTransactionJoinsContextTransaction(t *testing.T) {
	tx := new(firestore.Transaction)
	ctx := WithTransaction(context.Background(), tx)

	var joined *firestore.Transaction
	err := RunTransaction(ctx, nil, func(_ context.Context, got *firestore.Transaction) error {
		joined = got
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, tx, joined)

	_, ok := TransactionFromContext(context.Background())
	assert.False(t, ok)
	assert.Error(t, RunTransaction(context.Background(), nil, func(context.Context, *firestore.Transaction) error { return nil }))
	assert.Error(t, RunTransaction(ctx, nil, nil))
}
