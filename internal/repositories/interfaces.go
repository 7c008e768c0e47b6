package repositories

import (
	"context"

	domain "github.com/stockline/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	SharedItems() SharedItemRepository
	Variants() VariantRepository
	Counters() CounterRepository
	Suppliers() SupplierRepository
	ABCClassifications() ABCClassificationRepository
	ProductLists() ProductListRepository
	InventoryLogs() InventoryLogRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transaction.
// Repositories called with the context handed to fn join that transaction.
// Implementations commit when fn returns nil and discard every staged write otherwise.
// Reads must precede writes inside fn.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SharedItemRepository persists product documents and the product-name index.
type SharedItemRepository interface {
	Insert(ctx context.Context, item domain.SharedItem) error
	Save(ctx context.Context, item domain.SharedItem) error
	Get(ctx context.Context, key string) (domain.SharedItem, error)
	GetMany(ctx context.Context, keys []string) ([]domain.SharedItem, error)
	List(ctx context.Context, filter SharedItemFilter) ([]domain.SharedItem, error)
	Page(ctx context.Context, query SharedItemPageQuery) ([]domain.SharedItem, int, error)
	// NameKeys returns the NameKey of every product name.
	NameKeys(ctx context.Context) (map[string]struct{}, error)
	NameTaken(ctx context.Context, nameKey string) (bool, error)
	// ClaimName reserves nameKey for sharedKey and fails with a conflict when already held.
	ClaimName(ctx context.Context, nameKey, sharedKey string) error
	ReleaseName(ctx context.Context, nameKey string) error
}

// VariantRepository persists variant documents.
type VariantRepository interface {
	Insert(ctx context.Context, variant domain.Variant) error
	Save(ctx context.Context, variant domain.Variant) error
	Get(ctx context.Context, key string) (domain.Variant, error)
	// GetMany preserves the order of keys and fails with not-found when any key is missing.
	GetMany(ctx context.Context, keys []string) ([]domain.Variant, error)
	Delete(ctx context.Context, key string) error
	ListByShared(ctx context.Context, sharedKey string) ([]domain.Variant, error)
	List(ctx context.Context, filter VariantFilter) ([]domain.Variant, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// SupplierRepository persists supplier records.
type SupplierRepository interface {
	Insert(ctx context.Context, supplier domain.Supplier) error
	Save(ctx context.Context, supplier domain.Supplier) error
	Get(ctx context.Context, key string) (domain.Supplier, error)
	List(ctx context.Context, filter SupplierFilter) ([]domain.Supplier, error)
}

// ABCClassificationRepository persists ABC classifications per warehouse.
type ABCClassificationRepository interface {
	Save(ctx context.Context, classification domain.ABCClassification) error
	Get(ctx context.Context, key string) (domain.ABCClassification, error)
	FindByWarehouse(ctx context.Context, warehouseID string) (domain.ABCClassification, error)
	List(ctx context.Context) ([]domain.ABCClassification, error)
}

// ProductListRepository persists label/value taxonomies.
type ProductListRepository interface {
	Save(ctx context.Context, list domain.ProductList) error
	Get(ctx context.Context, key string) (domain.ProductList, error)
	List(ctx context.Context) ([]domain.ProductList, error)
}

// InventoryLogRepository appends stock movements.
type InventoryLogRepository interface {
	Append(ctx context.Context, entry domain.InventoryLogEntry) error
	ListByVariant(ctx context.Context, variantKey string, limit int) ([]domain.InventoryLogEntry, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

// SharedItemFilter narrows product listings using store-side equality filters.
type SharedItemFilter struct {
	Statuses   []domain.ItemStatus
	Types      []domain.ItemType
	Category   string
	Supplier   string
	ProductIDs []string
}

// SharedItemPageQuery pages products entirely inside the store.
type SharedItemPageQuery struct {
	Filter    SharedItemFilter
	SortField string
	SortOrder domain.SortOrder
	Offset    int
	Limit     int
}

// VariantFilter narrows variant listings.
type VariantFilter struct {
	WarehouseIDs []string
	Statuses     []domain.ItemStatus
	SharedKeys   []string
	Supplier     string
}

// SupplierFilter narrows supplier listings.
type SupplierFilter struct {
	ActiveOnly bool
}

// Matches reports whether item satisfies every populated filter field.
func (f SharedItemFilter) Matches(item domain.SharedItem) bool {
	if len(f.Statuses) > 0 && !containsValue(f.Statuses, item.Status) {
		return false
	}
	if len(f.Types) > 0 && !containsValue(f.Types, item.Type) {
		return false
	}
	if f.Category != "" && f.Category != item.Category {
		return false
	}
	if f.Supplier != "" && f.Supplier != item.SupplierKey {
		return false
	}
	if len(f.ProductIDs) > 0 && !containsValue(f.ProductIDs, item.ProductID) {
		return false
	}
	return true
}

// Matches reports whether variant satisfies every populated filter field.
func (f VariantFilter) Matches(variant domain.Variant) bool {
	if len(f.Statuses) > 0 && !containsValue(f.Statuses, variant.Status) {
		return false
	}
	if len(f.SharedKeys) > 0 && !containsValue(f.SharedKeys, variant.SharedKey) {
		return false
	}
	if f.Supplier != "" && f.Supplier != variant.SupplierKey {
		return false
	}
	if len(f.WarehouseIDs) > 0 {
		found := false
		for _, id := range variant.WarehouseIDs {
			if containsValue(f.WarehouseIDs, id) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsValue[T comparable](values []T, target T) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
