package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/stockline/api/internal/domain"
)

func newSupplierService(t *testing.T, env *testEnv) SupplierService {
	t.Helper()
	svc, err := NewSupplierService(SupplierServiceDeps{
		Suppliers:   env.reg.Suppliers(),
		Variants:    env.reg.Variants(),
		UnitOfWork:  env.reg,
		Metrics:     env.metrics,
		Clock:       func() time.Time { return testNow },
		IDGenerator: env.ids.next,
	})
	require.NoError(t, err)
	return svc
}

func TestCreateSupplierNormalizes(t *testing.T) {
	env := newTestEnv(t)
	svc := newSupplierService(t, env)

	supplier, err := svc.CreateSupplier(context.Background(), UpsertSupplierCommand{Supplier: domain.Supplier{
		Name:         "  Acme   Fasteners ",
		Email:        "Orders <orders@acme.test>",
		Currency:     "usd",
		LeadTimeDays: 14,
		Active:       true,
	}})
	require.NoError(t, err)
	assert.NotEmpty(t, supplier.Key)
	assert.Equal(t, "Acme Fasteners", supplier.Name)
	assert.Equal(t, "orders@acme.test", supplier.Email)
	assert.Equal(t, "USD", supplier.Currency)
	assert.Equal(t, testNow, supplier.CreatedAt)

	got, err := svc.GetSupplier(context.Background(), supplier.Key)
	require.NoError(t, err)
	assert.Equal(t, supplier.Name, got.Name)
	assert.Contains(t, env.metrics.ops, opSupplierCreate)
}

func TestCreateSupplierValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := newSupplierService(t, env)

	cases := map[string]domain.Supplier{
		"missing name":  {Email: "a@b.test"},
		"bad currency":  {Name: "Acme", Currency: "dollars"},
		"negative lead": {Name: "Acme", LeadTimeDays: -1},
		"bad email":     {Name: "Acme", Email: "not-an-email"},
	}
	for name, supplier := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateSupplier(context.Background(), UpsertSupplierCommand{Supplier: supplier})
			require.ErrorIs(t, err, ErrProductInvalid)
		})
	}
}

func TestUpdateSupplierKeepsCreatedAt(t *testing.T) {
	env := newTestEnv(t)
	svc := newSupplierService(t, env)
	ctx := context.Background()

	created, err := svc.CreateSupplier(ctx, UpsertSupplierCommand{Supplier: domain.Supplier{Name: "Acme", Active: true}})
	require.NoError(t, err)

	updated, err := svc.UpdateSupplier(ctx, UpsertSupplierCommand{Supplier: domain.Supplier{Key: created.Key, Name: "Acme Ltd"}})
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "Acme Ltd", updated.Name)
	assert.False(t, updated.Active)

	_, err = svc.UpdateSupplier(ctx, UpsertSupplierCommand{Supplier: domain.Supplier{Key: "missing", Name: "X"}})
	require.ErrorIs(t, err, ErrProductNotFound)
	_, err = svc.UpdateSupplier(ctx, UpsertSupplierCommand{Supplier: domain.Supplier{Name: "X"}})
	require.ErrorIs(t, err, ErrProductInvalid)
}

func TestListSuppliersActiveOnly(t *testing.T) {
	env := newTestEnv(t)
	svc := newSupplierService(t, env)
	ctx := context.Background()

	for _, s := range []domain.Supplier{{Name: "Zeta", Active: true}, {Name: "Beta"}, {Name: "Alpha", Active: true}} {
		_, err := svc.CreateSupplier(ctx, UpsertSupplierCommand{Supplier: s})
		require.NoError(t, err)
	}

	all, err := svc.ListSuppliers(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Alpha", all[0].Name)

	active, err := svc.ListSuppliers(ctx, true)
	require.NoError(t, err)
	names := []string{}
	for _, s := range active {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Alpha", "Zeta"}, names)
}

func TestBulkUpdateSupplierReportsPerVariant(t *testing.T) {
	env := newTestEnv(t)
	svc := newSupplierService(t, env)
	ctx := context.Background()

	supplier, err := svc.CreateSupplier(ctx, UpsertSupplierCommand{Supplier: domain.Supplier{Name: "Acme", Active: true}})
	require.NoError(t, err)

	summary := env.create(t, readyProduct("Bolt"), readyVariant("SKU-1"), readyVariant("SKU-2"), readyVariant("SKU-3"))
	first, second, third := summary.Variants[0].Key, summary.Variants[1].Key, summary.Variants[2].Key

	archived, err := env.reg.Variants().Get(ctx, third)
	require.NoError(t, err)
	archived.Status = domain.StatusArchived
	require.NoError(t, env.reg.Variants().Save(ctx, archived))

	results, err := svc.BulkUpdateSupplier(ctx, BulkSupplierCommand{
		VariantKeys: []string{first, second, first, third, "missing"},
		SupplierKey: supplier.Key,
		User:        testUser,
	})
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.False(t, results[2].Success)
	assert.Equal(t, third, results[2].Key)
	assert.False(t, results[3].Success)
	assert.Equal(t, "missing", results[3].Key)

	v, err := env.reg.Variants().Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, supplier.Key, v.SupplierKey)
	latest, ok := domain.LatestActivity(v.ActivityLog)
	require.True(t, ok)
	assert.Equal(t, domain.ActivitySupplierAssigned, latest.Description)

	again, err := svc.BulkUpdateSupplier(ctx, BulkSupplierCommand{VariantKeys: []string{first}, SupplierKey: supplier.Key, User: testUser})
	require.NoError(t, err)
	assert.True(t, again[0].Success)
	unchanged, err := env.reg.Variants().Get(ctx, first)
	require.NoError(t, err)
	assert.Len(t, unchanged.ActivityLog, len(v.ActivityLog))
}

func TestBulkUpdateSupplierRejectsUnusableSupplier(t *testing.T) {
	env := newTestEnv(t)
	svc := newSupplierService(t, env)
	ctx := context.Background()

	inactive, err := svc.CreateSupplier(ctx, UpsertSupplierCommand{Supplier: domain.Supplier{Name: "Dormant"}})
	require.NoError(t, err)

	_, err = svc.BulkUpdateSupplier(ctx, BulkSupplierCommand{VariantKeys: []string{"v"}, SupplierKey: inactive.Key})
	require.ErrorIs(t, err, ErrProductInvalid)
	_, err = svc.BulkUpdateSupplier(ctx, BulkSupplierCommand{VariantKeys: []string{"v"}, SupplierKey: "missing"})
	require.ErrorIs(t, err, ErrProductNotFound)
	_, err = svc.BulkUpdateSupplier(ctx, BulkSupplierCommand{SupplierKey: inactive.Key})
	require.ErrorIs(t, err, ErrProductInvalid)
	_, err = svc.BulkUpdateSupplier(ctx, BulkSupplierCommand{VariantKeys: []string{"v"}})
	require.ErrorIs(t, err, ErrProductInvalid)
}
