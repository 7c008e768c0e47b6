package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Page is an offset-paginated result with the total count of matching rows.
type Page[T any] struct {
	Items []T
	Page  int
	Limit int
	Total int
}

// Supplier is a vendor referenced by products and variants.
type Supplier struct {
	Key          string
	Name         string
	ContactName  string
	Email        string
	Phone        string
	Address      string
	Website      string
	Currency     string
	LeadTimeDays int
	Notes        string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ABCClass is one priority bucket.
type ABCClass string

const (
	ABCClassA ABCClass = "A"
	ABCClassB ABCClass = "B"
	ABCClassC ABCClass = "C"
)

// ABCClassification stores the thresholds and last assignment for a warehouse.
// Thresholds are cumulative shares of annual consumption value, e.g. 0.80 and 0.95.
type ABCClassification struct {
	Key         string
	WarehouseID string
	Name        string
	ThresholdA  decimal.Decimal
	ThresholdB  decimal.Decimal
	Assignments map[string]ABCClass
	ComputedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductListOption is one label/value entry of a taxonomy.
type ProductListOption struct {
	Label string
	Value string
}

// ProductList is a named taxonomy such as categories or units of measure.
type ProductList struct {
	Key       string
	Name      string
	Options   []ProductListOption
	UpdatedAt time.Time
}

// InventoryLogEntry is an append-only stock movement used for valuation.
type InventoryLogEntry struct {
	ID           string
	VariantKey   string
	VariantID    string
	SharedKey    string
	WarehouseID  string
	LocationID   string
	Quantity     float64
	UnitCost     decimal.Decimal
	TotalValue   decimal.Decimal
	Reason       string
	PerformedBy  string
	QuantityHeld float64
	CreatedAt    time.Time
}

// Warehouse is an active site reported by the warehouse service.
type Warehouse struct {
	ID   string
	Name string
}

// LocationCapacity reports a bin's limit and reserved quantity.
type LocationCapacity struct {
	ID          string
	MaxQty      float64
	QtyReserved float64
}

// Available returns the remaining capacity, never negative.
func (c LocationCapacity) Available() float64 {
	if remaining := c.MaxQty - c.QtyReserved; remaining > 0 {
		return remaining
	}
	return 0
}

// LocationReservation asks the warehouse service to book quantity into a bin.
type LocationReservation struct {
	LocationID string
	Quantity   float64
}

// BulkResult reports one element of a bulk operation.
type BulkResult struct {
	Key     string
	Success bool
	Error   string
}

// ProductSummary is returned by create, update, duplicate and status operations.
type ProductSummary struct {
	Product  SharedItem
	Variants []VariantSummary
}

// VariantSummary is the flattened view of a variant in a product response.
type VariantSummary struct {
	Key            string
	VariantID      string
	Description    string
	Barcode        string
	Status         ItemStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LatestActivity *ActivityLogEntry
}

// SummarizeVariant projects v for product responses.
func SummarizeVariant(v Variant) VariantSummary {
	summary := VariantSummary{
		Key:         v.Key,
		VariantID:   v.VariantID,
		Description: v.Description,
		Barcode:     v.Barcode,
		Status:      v.Status,
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}
	if latest, ok := LatestActivity(v.ActivityLog); ok {
		summary.LatestActivity = &latest
	}
	return summary
}

// Summarize builds the response summary for a product and its variants.
func Summarize(shared SharedItem, variants []Variant) ProductSummary {
	out := ProductSummary{Product: shared, Variants: make([]VariantSummary, 0, len(variants))}
	for _, v := range variants {
		out.Variants = append(out.Variants, SummarizeVariant(v))
	}
	return out
}

// HealthStatus summarises a dependency probe.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// HealthCheck is the outcome of one dependency probe.
type HealthCheck struct {
	Status    HealthStatus
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency probes.
type HealthReport struct {
	Status      HealthStatus
	Checks      map[string]HealthCheck
	GeneratedAt time.Time
}

// Worst folds check statuses into one: any error wins, then any degraded. Blank statuses
// count as ok.
func Worst(checks map[string]HealthCheck) HealthStatus {
	out := HealthStatusOK
	for _, c := range checks {
		switch c.Status {
		case HealthStatusError:
			return HealthStatusError
		case HealthStatusOK, "":
		default:
			out = HealthStatusDegraded
		}
	}
	return out
}
