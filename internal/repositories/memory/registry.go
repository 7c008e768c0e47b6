package memory

import (
	"context"

	"github.com/stockline/api/internal/repositories"
)

// Registry exposes the in-memory repositories over one Store.
type Registry struct {
	*Store
	health repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wraps store. A nil store gets a fresh one.
func NewRegistry(store *Store, health repositories.HealthRepository) *Registry {
	if store == nil {
		store = NewStore()
	}
	return &Registry{Store: store, health: health}
}

func (r *Registry) Close(context.Context) error { return nil }

func (r *Registry) SharedItems() repositories.SharedItemRepository {
	return sharedItemRepository{store: r.Store}
}

func (r *Registry) Variants() repositories.VariantRepository {
	return variantRepository{store: r.Store}
}

func (r *Registry) Counters() repositories.CounterRepository {
	return counterRepository{store: r.Store}
}

func (r *Registry) Suppliers() repositories.SupplierRepository {
	return supplierRepository{store: r.Store}
}

func (r *Registry) ABCClassifications() repositories.ABCClassificationRepository {
	return abcRepository{store: r.Store}
}

func (r *Registry) ProductLists() repositories.ProductListRepository {
	return productListRepository{store: r.Store}
}

func (r *Registry) InventoryLogs() repositories.InventoryLogRepository {
	return inventoryLogRepository{store: r.Store}
}

func (r *Registry) Health() repositories.HealthRepository { return r.health }
