package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/stockline/api/internal/domain"
)

// ProductService owns the transactional product engine: create, update, duplicate and the
// status cascade, plus their bulk variants.
type ProductService interface {
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (domain.ProductSummary, error)
	GetProduct(ctx context.Context, sharedKey string) (ProductDetail, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (domain.ProductSummary, error)
	DuplicateProduct(ctx context.Context, cmd DuplicateProductCommand) (domain.ProductSummary, error)
	UpdateSharedStatus(ctx context.Context, cmd SharedStatusCommand) (domain.ProductSummary, error)
	BulkUpdateSharedStatus(ctx context.Context, cmd BulkSharedStatusCommand) ([]domain.BulkResult, error)
	BulkUpdateVariantStatus(ctx context.Context, cmd BulkVariantStatusCommand) ([]domain.BulkResult, error)
}

// QueryService serves the read-side views.
type QueryService interface {
	InventoryItems(ctx context.Context, query InventoryQuery) (domain.Page[map[string]any], error)
	Products(ctx context.Context, query ProductQuery) (domain.Page[map[string]any], error)
	ExportInventory(ctx context.Context, query InventoryQuery) ([]map[string]any, error)
}

// CounterService hands out sequence numbers and formatted product identifiers.
type CounterService interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	NextProductID(ctx context.Context) (string, error)
}

// SupplierService manages suppliers and their linkage to variants.
type SupplierService interface {
	CreateSupplier(ctx context.Context, cmd UpsertSupplierCommand) (domain.Supplier, error)
	GetSupplier(ctx context.Context, key string) (domain.Supplier, error)
	ListSuppliers(ctx context.Context, activeOnly bool) ([]domain.Supplier, error)
	UpdateSupplier(ctx context.Context, cmd UpsertSupplierCommand) (domain.Supplier, error)
	BulkUpdateSupplier(ctx context.Context, cmd BulkSupplierCommand) ([]domain.BulkResult, error)
}

// ABCService manages per-warehouse ABC classifications.
type ABCService interface {
	SaveClassification(ctx context.Context, cmd SaveClassificationCommand) (domain.ABCClassification, error)
	GetClassification(ctx context.Context, key string) (domain.ABCClassification, error)
	ListClassifications(ctx context.Context) ([]domain.ABCClassification, error)
	ClassifyVariants(ctx context.Context, cmd ClassifyCommand) (domain.ABCClassification, error)
}

// ProductListService manages label/value taxonomies.
type ProductListService interface {
	GetList(ctx context.Context, key string) (domain.ProductList, error)
	ListLists(ctx context.Context) ([]domain.ProductList, error)
	UpsertList(ctx context.Context, cmd UpsertProductListCommand) (domain.ProductList, error)
}

// InventoryService books stock into warehouse locations.
type InventoryService interface {
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (AdjustStockResult, error)
	ListMovements(ctx context.Context, variantKey string, limit int) ([]domain.InventoryLogEntry, error)
}

// AssetService issues signed upload URLs for product assets.
type AssetService interface {
	IssueUploadURL(ctx context.Context, cmd UploadURLCommand) (UploadURL, error)
}

// SystemService reports dependency health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Commands ------------------------------------------------------------------

// CreateProductCommand carries a new product and its initial variants.
type CreateProductCommand struct {
	Product  domain.SharedItem
	Variants []domain.Variant
	User     domain.UserInfo
}

// UpdateProductCommand merges Patch onto the product. A nil Variants slice leaves variants untouched.
type UpdateProductCommand struct {
	SharedKey string
	Patch     domain.SharedItemPatch
	Variants  []domain.VariantPatch
	User      domain.UserInfo
}

// DuplicateProductCommand clones a product as a new draft.
type DuplicateProductCommand struct {
	SharedKey string
	User      domain.UserInfo
}

// SharedStatusCommand moves a product, and its variants, to Status.
type SharedStatusCommand struct {
	SharedKey string
	Status    domain.ItemStatus
	User      domain.UserInfo
}

// BulkSharedStatusCommand applies the same status to many products.
type BulkSharedStatusCommand struct {
	SharedKeys []string
	Status     domain.ItemStatus
	User       domain.UserInfo
}

// VariantStatusChange is one element of a bulk variant status update.
type VariantStatusChange struct {
	VariantKey string
	Status     domain.ItemStatus
}

// BulkVariantStatusCommand applies per-variant status changes.
type BulkVariantStatusCommand struct {
	Changes []VariantStatusChange
	User    domain.UserInfo
}

// UpsertSupplierCommand creates or replaces a supplier. Key is ignored on create.
type UpsertSupplierCommand struct {
	Supplier domain.Supplier
}

// BulkSupplierCommand links every listed variant to SupplierKey.
type BulkSupplierCommand struct {
	VariantKeys []string
	SupplierKey string
	User        domain.UserInfo
}

// SaveClassificationCommand creates or updates the classification for a warehouse.
type SaveClassificationCommand struct {
	Key         string
	WarehouseID string
	Name        string
	ThresholdA  *decimal.Decimal
	ThresholdB  *decimal.Decimal
}

// ClassifyCommand recomputes A/B/C classes for the variants stocked in a warehouse.
type ClassifyCommand struct {
	WarehouseID string
	// Since bounds the consumption window. Zero means one year back from now.
	Since time.Time
	User  domain.UserInfo
}

// UpsertProductListCommand replaces the options of a list.
type UpsertProductListCommand struct {
	Key     string
	Name    string
	Options []domain.ProductListOption
}

// AdjustStockCommand books Quantity of a variant into one warehouse location.
// Negative quantities remove stock and skip the capacity check.
type AdjustStockCommand struct {
	VariantKey   string
	WarehouseID  string
	LocationID   string
	LocationName string
	Quantity     float64
	Reason       string
	User         domain.UserInfo
}

// AdjustStockResult returns the updated variant with the movement that was logged.
type AdjustStockResult struct {
	Variant  domain.Variant
	Movement domain.InventoryLogEntry
}

// UploadURLCommand requests a signed PUT URL for a product asset.
type UploadURLCommand struct {
	SharedKey   string
	Kind        string
	FileName    string
	ContentType string
	Size        int64
}

// UploadURL is the signed upload target plus the asset URL to store on the product.
type UploadURL struct {
	URL       string
	Method    string
	Headers   map[string]string
	ExpiresAt time.Time
	AssetURL  string
}

// InventoryQuery drives the warehouse-scoped inventory view.
type InventoryQuery struct {
	Token     string
	Page      int
	Limit     int
	Search    string
	SortField string
	SortOrder domain.SortOrder
	Fields    []string
	Statuses  []domain.ItemStatus
}

// ProductQuery drives the product list/search view.
type ProductQuery struct {
	Page      int
	Limit     int
	Search    string
	SortField string
	SortOrder domain.SortOrder
	Fields    []string
	Statuses  []domain.ItemStatus
	Types     []domain.ItemType
	Category  string
	Supplier  string
}

// ProductDetail is a product with its full variant documents.
type ProductDetail struct {
	Product  domain.SharedItem
	Variants []domain.Variant
}

// Collaborators ---------------------------------------------------------------

// AssetStore deletes and copies product images.
type AssetStore interface {
	DeleteImages(ctx context.Context, urls []string) error
	DuplicateImages(ctx context.Context, urls []string) ([]string, error)
}

// BarcodeGenerator renders a scannable code for a value. Output depends only on value.
type BarcodeGenerator interface {
	CreateBarcode(value string) (string, error)
}

// WarehouseGateway is the warehouse/location service.
type WarehouseGateway interface {
	ActiveWarehouses(ctx context.Context, token string) ([]domain.Warehouse, error)
	LocationsByIDs(ctx context.Context, token string, ids []string) ([]domain.LocationCapacity, error)
	AddQuantityToLocations(ctx context.Context, token string, reservations []domain.LocationReservation) error
}

// MutationRecorder counts mutation outcomes.
type MutationRecorder interface {
	RecordMutation(ctx context.Context, op string, err error)
}

// Product events ------------------------------------------------------------

const (
	ProductEventCreated       = "product.created"
	ProductEventUpdated       = "product.updated"
	ProductEventDuplicated    = "product.duplicated"
	ProductEventStatusChanged = "product.status_changed"
	ProductEventStockAdjusted = "product.stock_adjusted"
)

// ProductEvent is published after a product mutation commits.
type ProductEvent struct {
	Type       string    `json:"type"`
	SharedKey  string    `json:"sharedKey"`
	ProductID  string    `json:"productId,omitempty"`
	SourceKey  string    `json:"sourceKey,omitempty"`
	VariantIDs []string  `json:"variantIds,omitempty"`
	Status     string    `json:"status,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ProductEventPublisher delivers product events.
type ProductEventPublisher interface {
	PublishProductEvent(ctx context.Context, event ProductEvent) (string, error)
}
