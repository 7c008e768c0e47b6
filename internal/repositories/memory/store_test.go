package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/repositories"
)

func TestRunInTxCommitsStagedWrites(t *testing.T) {
	reg := NewRegistry(nil, nil)
	ctx := context.Background()

	err := reg.RunInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, reg.SharedItems().Insert(ctx, domain.SharedItem{Key: "s1", Name: "Widget"}))
		// Reads inside the transaction observe staged writes.
		got, err := reg.SharedItems().Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "Widget", got.Name)

		// Outside the transaction nothing is visible yet.
		_, err = reg.SharedItems().Get(context.Background(), "s1")
		assert.True(t, repositories.IsNotFound(err))
		return nil
	})
	require.NoError(t, err)

	got, err := reg.SharedItems().Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Name)
}

func TestRunInTxDiscardsWritesOnError(t *testing.T) {
	reg := NewRegistry(nil, nil)
	ctx := context.Background()
	require.NoError(t, reg.Variants().Insert(ctx, domain.Variant{Key: "v1", VariantID: "P11"}))

	boom := errors.New("boom")
	err := reg.RunInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, reg.Variants().Delete(ctx, "v1"))
		require.NoError(t, reg.Variants().Insert(ctx, domain.Variant{Key: "v2", VariantID: "P12"}))
		_, err := reg.Counters().Next(ctx, "productId", 1)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = reg.Variants().Get(ctx, "v1")
	require.NoError(t, err)
	_, err = reg.Variants().Get(ctx, "v2")
	assert.True(t, repositories.IsNotFound(err))

	next, err := reg.Counters().Next(ctx, "productId", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
}

func TestWriteHookFailsWrite(t *testing.T) {
	failure := errors.New("injected")
	store := NewStore(WithWriteHook(func(table, op, key string) error {
		if table == tableVariants && key == "v2" {
			return failure
		}
		return nil
	}))
	reg := NewRegistry(store, nil)
	ctx := context.Background()

	err := reg.RunInTx(ctx, func(ctx context.Context) error {
		if err := reg.Variants().Insert(ctx, domain.Variant{Key: "v1"}); err != nil {
			return err
		}
		return reg.Variants().Insert(ctx, domain.Variant{Key: "v2"})
	})
	require.ErrorIs(t, err, failure)
	_, err = reg.Variants().Get(ctx, "v1")
	assert.True(t, repositories.IsNotFound(err))
}

func TestClaimNameConflicts(t *testing.T) {
	reg := NewRegistry(nil, nil)
	ctx := context.Background()
	require.NoError(t, reg.SharedItems().ClaimName(ctx, "widget", "s1"))

	err := reg.SharedItems().ClaimName(ctx, "widget", "s2")
	assert.True(t, repositories.IsConflict(err))

	taken, err := reg.SharedItems().NameTaken(ctx, "widget")
	require.NoError(t, err)
	assert.True(t, taken)

	require.NoError(t, reg.SharedItems().ReleaseName(ctx, "widget"))
	keys, err := reg.SharedItems().NameKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestVariantListOrdersBySuffix(t *testing.T) {
	reg := NewRegistry(nil, nil)
	ctx := context.Background()
	for _, id := range []string{"P10", "P2", "P1"} {
		require.NoError(t, reg.Variants().Insert(ctx, domain.Variant{Key: "k" + id, VariantID: id, SharedKey: "s"}))
	}
	variants, err := reg.Variants().ListByShared(ctx, "s")
	require.NoError(t, err)
	require.Len(t, variants, 3)
	assert.Equal(t, []string{"P1", "P2", "P10"}, []string{variants[0].VariantID, variants[1].VariantID, variants[2].VariantID})
}

func TestStoredValuesAreIsolated(t *testing.T) {
	reg := NewRegistry(nil, nil)
	ctx := context.Background()
	item := domain.SharedItem{Key: "s1", Tags: []string{"a"}}
	require.NoError(t, reg.SharedItems().Save(ctx, item))
	item.Tags[0] = "mutated"

	got, err := reg.SharedItems().Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Tags)
}
