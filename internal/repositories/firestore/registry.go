package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/stockline/api/internal/platform/firestore"
	"github.com/stockline/api/internal/repositories"
)

// Registry wires every Firestore repository behind one provider and unit of work.
type Registry struct {
	provider *pfirestore.Provider
	uow      *pfirestore.UnitOfWork

	sharedItems  *SharedItemRepository
	variants     *VariantRepository
	counters     *CounterRepository
	suppliers    *SupplierRepository
	abc          *ABCClassificationRepository
	productLists *ProductListRepository
	logs         *InventoryLogRepository
	health       repositories.HealthRepository
	txOpts       []pfirestore.TxOption
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises the registry.
type RegistryOption func(*Registry)

// WithHealthRepository attaches the dependency health probe.
func WithHealthRepository(repo repositories.HealthRepository) RegistryOption {
	return func(r *Registry) {
		r.health = repo
	}
}

// WithTxOptions tunes the retry budget of the shared unit of work.
func WithTxOptions(opts ...pfirestore.TxOption) RegistryOption {
	return func(r *Registry) {
		r.txOpts = append(r.txOpts, opts...)
	}
}

// NewRegistry constructs the repositories on provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	reg := &Registry{provider: provider}
	for _, opt := range opts {
		if opt != nil {
			opt(reg)
		}
	}
	uow, err := pfirestore.NewUnitOfWork(provider, reg.txOpts...)
	if err != nil {
		return nil, err
	}
	reg.uow = uow

	if reg.sharedItems, err = NewSharedItemRepository(provider); err != nil {
		return nil, fmt.Errorf("shared items: %w", err)
	}
	if reg.variants, err = NewVariantRepository(provider); err != nil {
		return nil, fmt.Errorf("variants: %w", err)
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, fmt.Errorf("counters: %w", err)
	}
	if reg.suppliers, err = NewSupplierRepository(provider); err != nil {
		return nil, fmt.Errorf("suppliers: %w", err)
	}
	if reg.abc, err = NewABCClassificationRepository(provider); err != nil {
		return nil, fmt.Errorf("abc classifications: %w", err)
	}
	if reg.productLists, err = NewProductListRepository(provider); err != nil {
		return nil, fmt.Errorf("product lists: %w", err)
	}
	if reg.logs, err = NewInventoryLogRepository(provider); err != nil {
		return nil, fmt.Errorf("inventory logs: %w", err)
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}

func (r *Registry) SharedItems() repositories.SharedItemRepository { return r.sharedItems }
func (r *Registry) Variants() repositories.VariantRepository       { return r.variants }
func (r *Registry) Counters() repositories.CounterRepository       { return r.counters }
func (r *Registry) Suppliers() repositories.SupplierRepository     { return r.suppliers }
func (r *Registry) ABCClassifications() repositories.ABCClassificationRepository {
	return r.abc
}
func (r *Registry) ProductLists() repositories.ProductListRepository   { return r.productLists }
func (r *Registry) InventoryLogs() repositories.InventoryLogRepository { return r.logs }
func (r *Registry) Health() repositories.HealthRepository              { return r.health }
