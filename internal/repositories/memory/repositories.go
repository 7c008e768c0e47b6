package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/repositories"
)

const (
	tableSharedItems   = "sharedItems"
	tableProductNames  = "productNames"
	tableVariants      = "items"
	tableCounters      = "counters"
	tableSuppliers     = "suppliers"
	tableABC           = "abcClassifications"
	tableProductLists  = "productLists"
	tableInventoryLogs = "inventoryLogs"
)

func requireKey(op, key string) error {
	if strings.TrimSpace(key) == "" {
		return repositories.NewProductError(op, repositories.ProductErrorInvalid, "key is required", nil)
	}
	return nil
}

// SharedItemRepository ------------------------------------------------------

type sharedItemRepository struct{ store *Store }

var _ repositories.SharedItemRepository = sharedItemRepository{}

func (r sharedItemRepository) Insert(ctx context.Context, item domain.SharedItem) error {
	if err := requireKey("sharedItems.insert", item.Key); err != nil {
		return err
	}
	return r.store.create(ctx, tableSharedItems, item.Key, cloneSharedItem(item))
}

func (r sharedItemRepository) Save(ctx context.Context, item domain.SharedItem) error {
	if err := requireKey("sharedItems.save", item.Key); err != nil {
		return err
	}
	return r.store.put(ctx, tableSharedItems, item.Key, cloneSharedItem(item))
}

func (r sharedItemRepository) Get(ctx context.Context, key string) (domain.SharedItem, error) {
	value, ok := r.store.get(ctx, tableSharedItems, key)
	if !ok {
		return domain.SharedItem{}, repositories.NotFound("sharedItems.get", "product not found: "+key)
	}
	return cloneSharedItem(value.(domain.SharedItem)), nil
}

func (r sharedItemRepository) GetMany(ctx context.Context, keys []string) ([]domain.SharedItem, error) {
	out := make([]domain.SharedItem, 0, len(keys))
	var missing []string
	for _, key := range keys {
		value, ok := r.store.get(ctx, tableSharedItems, key)
		if !ok {
			missing = append(missing, key)
			continue
		}
		out = append(out, cloneSharedItem(value.(domain.SharedItem)))
	}
	if len(missing) > 0 {
		return nil, repositories.NotFound("sharedItems.getMany", "products not found: "+strings.Join(missing, ", "))
	}
	return out, nil
}

func (r sharedItemRepository) List(ctx context.Context, filter repositories.SharedItemFilter) ([]domain.SharedItem, error) {
	var out []domain.SharedItem
	for _, value := range r.store.scan(ctx, tableSharedItems) {
		item := value.(domain.SharedItem)
		if filter.Matches(item) {
			out = append(out, cloneSharedItem(item))
		}
	}
	return out, nil
}

func (r sharedItemRepository) Page(ctx context.Context, query repositories.SharedItemPageQuery) ([]domain.SharedItem, int, error) {
	items, err := r.List(ctx, query.Filter)
	if err != nil {
		return nil, 0, err
	}
	less := sharedLess(query.SortField)
	sort.SliceStable(items, func(i, j int) bool {
		if query.SortOrder == domain.SortAsc {
			return less(items[i], items[j])
		}
		return less(items[j], items[i])
	})
	total := len(items)
	start := query.Offset
	if start > total {
		start = total
	}
	end := total
	if query.Limit > 0 && start+query.Limit < end {
		end = start + query.Limit
	}
	return items[start:end], total, nil
}

func sharedLess(field string) func(a, b domain.SharedItem) bool {
	switch field {
	case "name":
		return func(a, b domain.SharedItem) bool { return a.Name < b.Name }
	case "productId":
		return func(a, b domain.SharedItem) bool { return a.ProductID < b.ProductID }
	case "status":
		return func(a, b domain.SharedItem) bool { return a.Status < b.Status }
	case "category":
		return func(a, b domain.SharedItem) bool { return a.Category < b.Category }
	case "updatedAt":
		return func(a, b domain.SharedItem) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	default:
		return func(a, b domain.SharedItem) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}

func (r sharedItemRepository) NameKeys(ctx context.Context) (map[string]struct{}, error) {
	rows := r.store.scan(ctx, tableProductNames)
	out := make(map[string]struct{}, len(rows))
	for _, value := range rows {
		out[value.(nameClaim).NameKey] = struct{}{}
	}
	return out, nil
}

func (r sharedItemRepository) NameTaken(ctx context.Context, nameKey string) (bool, error) {
	_, ok := r.store.get(ctx, tableProductNames, nameKey)
	return ok, nil
}

type nameClaim struct {
	NameKey   string
	SharedKey string
}

func (r sharedItemRepository) ClaimName(ctx context.Context, nameKey, sharedKey string) error {
	if strings.TrimSpace(nameKey) == "" {
		return repositories.NewProductError("productNames.claim", repositories.ProductErrorInvalid, "name is required", nil)
	}
	return r.store.create(ctx, tableProductNames, nameKey, nameClaim{NameKey: nameKey, SharedKey: sharedKey})
}

func (r sharedItemRepository) ReleaseName(ctx context.Context, nameKey string) error {
	if strings.TrimSpace(nameKey) == "" {
		return nil
	}
	return r.store.remove(ctx, tableProductNames, nameKey)
}

// VariantRepository ---------------------------------------------------------

type variantRepository struct{ store *Store }

var _ repositories.VariantRepository = variantRepository{}

func (r variantRepository) Insert(ctx context.Context, variant domain.Variant) error {
	if err := requireKey("items.insert", variant.Key); err != nil {
		return err
	}
	domain.SyncWarehouseIDs(&variant)
	return r.store.create(ctx, tableVariants, variant.Key, cloneVariant(variant))
}

func (r variantRepository) Save(ctx context.Context, variant domain.Variant) error {
	if err := requireKey("items.save", variant.Key); err != nil {
		return err
	}
	domain.SyncWarehouseIDs(&variant)
	return r.store.put(ctx, tableVariants, variant.Key, cloneVariant(variant))
}

func (r variantRepository) Get(ctx context.Context, key string) (domain.Variant, error) {
	value, ok := r.store.get(ctx, tableVariants, key)
	if !ok {
		return domain.Variant{}, repositories.NotFound("items.get", "variant not found: "+key)
	}
	return cloneVariant(value.(domain.Variant)), nil
}

func (r variantRepository) GetMany(ctx context.Context, keys []string) ([]domain.Variant, error) {
	out := make([]domain.Variant, 0, len(keys))
	var missing []string
	for _, key := range keys {
		value, ok := r.store.get(ctx, tableVariants, key)
		if !ok {
			missing = append(missing, key)
			continue
		}
		out = append(out, cloneVariant(value.(domain.Variant)))
	}
	if len(missing) > 0 {
		return nil, repositories.NotFound("items.getMany", "variants not found: "+strings.Join(missing, ", "))
	}
	return out, nil
}

func (r variantRepository) Delete(ctx context.Context, key string) error {
	return r.store.remove(ctx, tableVariants, key)
}

func (r variantRepository) ListByShared(ctx context.Context, sharedKey string) ([]domain.Variant, error) {
	return r.List(ctx, repositories.VariantFilter{SharedKeys: []string{sharedKey}})
}

func (r variantRepository) List(ctx context.Context, filter repositories.VariantFilter) ([]domain.Variant, error) {
	var out []domain.Variant
	for _, value := range r.store.scan(ctx, tableVariants) {
		variant := value.(domain.Variant)
		if filter.Matches(variant) {
			out = append(out, cloneVariant(variant))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].VariantID, out[j].VariantID
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	return out, nil
}

// CounterRepository ---------------------------------------------------------

type counterRepository struct{ store *Store }

var _ repositories.CounterRepository = counterRepository{}

func (r counterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, fmt.Errorf("%w: counter id is required", repositories.ErrCounterInvalid)
	}
	if step < 0 {
		return 0, fmt.Errorf("%w: step must be positive, got %d", repositories.ErrCounterInvalid, step)
	}
	if step == 0 {
		step = 1
	}
	var next int64
	err := r.store.RunInTx(ctx, func(ctx context.Context) error {
		var current int64
		if value, ok := r.store.get(ctx, tableCounters, id); ok {
			current = value.(int64)
		}
		if current > repositories.MaxCounterValue-step {
			return fmt.Errorf("%w: counter %s exceeded %d", repositories.ErrCounterExhausted, id, repositories.MaxCounterValue)
		}
		next = current + step
		return r.store.put(ctx, tableCounters, id, next)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// SupplierRepository --------------------------------------------------------

type supplierRepository struct{ store *Store }

var _ repositories.SupplierRepository = supplierRepository{}

func (r supplierRepository) Insert(ctx context.Context, supplier domain.Supplier) error {
	if err := requireKey("suppliers.insert", supplier.Key); err != nil {
		return err
	}
	return r.store.create(ctx, tableSuppliers, supplier.Key, supplier)
}

func (r supplierRepository) Save(ctx context.Context, supplier domain.Supplier) error {
	if err := requireKey("suppliers.save", supplier.Key); err != nil {
		return err
	}
	return r.store.put(ctx, tableSuppliers, supplier.Key, supplier)
}

func (r supplierRepository) Get(ctx context.Context, key string) (domain.Supplier, error) {
	value, ok := r.store.get(ctx, tableSuppliers, key)
	if !ok {
		return domain.Supplier{}, repositories.NotFound("suppliers.get", "supplier not found: "+key)
	}
	return value.(domain.Supplier), nil
}

func (r supplierRepository) List(ctx context.Context, filter repositories.SupplierFilter) ([]domain.Supplier, error) {
	var out []domain.Supplier
	for _, value := range r.store.scan(ctx, tableSuppliers) {
		supplier := value.(domain.Supplier)
		if filter.ActiveOnly && !supplier.Active {
			continue
		}
		out = append(out, supplier)
	}
	sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

// ABCClassificationRepository -----------------------------------------------

type abcRepository struct{ store *Store }

var _ repositories.ABCClassificationRepository = abcRepository{}

func (r abcRepository) Save(ctx context.Context, classification domain.ABCClassification) error {
	if err := requireKey("abcClassifications.save", classification.Key); err != nil {
		return err
	}
	return r.store.put(ctx, tableABC, classification.Key, cloneClassification(classification))
}

func (r abcRepository) Get(ctx context.Context, key string) (domain.ABCClassification, error) {
	value, ok := r.store.get(ctx, tableABC, key)
	if !ok {
		return domain.ABCClassification{}, repositories.NotFound("abcClassifications.get", "classification not found: "+key)
	}
	return cloneClassification(value.(domain.ABCClassification)), nil
}

func (r abcRepository) FindByWarehouse(ctx context.Context, warehouseID string) (domain.ABCClassification, error) {
	for _, value := range r.store.scan(ctx, tableABC) {
		classification := value.(domain.ABCClassification)
		if classification.WarehouseID == warehouseID {
			return cloneClassification(classification), nil
		}
	}
	return domain.ABCClassification{}, repositories.NotFound("abcClassifications.findByWarehouse", "no classification for warehouse "+warehouseID)
}

func (r abcRepository) List(ctx context.Context) ([]domain.ABCClassification, error) {
	var out []domain.ABCClassification
	for _, value := range r.store.scan(ctx, tableABC) {
		out = append(out, cloneClassification(value.(domain.ABCClassification)))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].WarehouseID < out[j].WarehouseID })
	return out, nil
}

// ProductListRepository -----------------------------------------------------

type productListRepository struct{ store *Store }

var _ repositories.ProductListRepository = productListRepository{}

func (r productListRepository) Save(ctx context.Context, list domain.ProductList) error {
	if err := requireKey("productLists.save", list.Key); err != nil {
		return err
	}
	return r.store.put(ctx, tableProductLists, list.Key, cloneProductList(list))
}

func (r productListRepository) Get(ctx context.Context, key string) (domain.ProductList, error) {
	value, ok := r.store.get(ctx, tableProductLists, key)
	if !ok {
		return domain.ProductList{}, repositories.NotFound("productLists.get", "product list not found: "+key)
	}
	return cloneProductList(value.(domain.ProductList)), nil
}

func (r productListRepository) List(ctx context.Context) ([]domain.ProductList, error) {
	var out []domain.ProductList
	for _, value := range r.store.scan(ctx, tableProductLists) {
		out = append(out, cloneProductList(value.(domain.ProductList)))
	}
	return out, nil
}

// InventoryLogRepository ----------------------------------------------------

type inventoryLogRepository struct{ store *Store }

var _ repositories.InventoryLogRepository = inventoryLogRepository{}

func (r inventoryLogRepository) Append(ctx context.Context, entry domain.InventoryLogEntry) error {
	if err := requireKey("inventoryLogs.append", entry.ID); err != nil {
		return err
	}
	return r.store.create(ctx, tableInventoryLogs, entry.ID, entry)
}

func (r inventoryLogRepository) ListByVariant(ctx context.Context, variantKey string, limit int) ([]domain.InventoryLogEntry, error) {
	var out []domain.InventoryLogEntry
	for _, value := range r.store.scan(ctx, tableInventoryLogs) {
		entry := value.(domain.InventoryLogEntry)
		if entry.VariantKey == variantKey {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
