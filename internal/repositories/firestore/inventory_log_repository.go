package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/stockline/api/internal/domain"
	pfirestore "github.com/stockline/api/internal/platform/firestore"
	"github.com/stockline/api/internal/repositories"
)

const inventoryLogsCollection = "inventoryLogs"

type inventoryLogDocument struct {
	VariantKey   string    `firestore:"variantKey"`
	VariantID    string    `firestore:"variantId"`
	SharedKey    string    `firestore:"sharedAttributes"`
	WarehouseID  string    `firestore:"warehouseId"`
	LocationID   string    `firestore:"locationId"`
	Quantity     float64   `firestore:"quantity"`
	UnitCost     string    `firestore:"unitCost"`
	TotalValue   string    `firestore:"totalValue"`
	Reason       string    `firestore:"reason"`
	PerformedBy  string    `firestore:"performedBy"`
	QuantityHeld float64   `firestore:"quantityHeld"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

// InventoryLogRepository implements repositories.InventoryLogRepository.
type InventoryLogRepository struct {
	base *pfirestore.BaseRepository[inventoryLogDocument]
}

var _ repositories.InventoryLogRepository = (*InventoryLogRepository)(nil)

func NewInventoryLogRepository(provider *pfirestore.Provider) (*InventoryLogRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory log repository requires firestore provider")
	}
	return &InventoryLogRepository{
		base: pfirestore.NewBaseRepository[inventoryLogDocument](provider, inventoryLogsCollection),
	}, nil
}

// Append writes a new entry. Entries are immutable so an existing ID is a conflict.
func (r *InventoryLogRepository) Append(ctx context.Context, entry domain.InventoryLogEntry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return repositories.NewProductError("inventoryLogs.append", repositories.ProductErrorInvalid, "id is required", nil)
	}
	doc := inventoryLogDocument{
		VariantKey:   entry.VariantKey,
		VariantID:    entry.VariantID,
		SharedKey:    entry.SharedKey,
		WarehouseID:  entry.WarehouseID,
		LocationID:   entry.LocationID,
		Quantity:     entry.Quantity,
		UnitCost:     entry.UnitCost.String(),
		TotalValue:   entry.TotalValue.String(),
		Reason:       entry.Reason,
		PerformedBy:  entry.PerformedBy,
		QuantityHeld: entry.QuantityHeld,
		CreatedAt:    entry.CreatedAt.UTC(),
	}
	return wrapProductError("inventoryLogs.append", r.base.Create(ctx, entry.ID, doc))
}

// ListByVariant returns the newest entries first.
func (r *InventoryLogRepository) ListByVariant(ctx context.Context, variantKey string, limit int) ([]domain.InventoryLogEntry, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("variantKey", "==", variantKey).OrderBy("createdAt", firestore.Desc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, wrapProductError("inventoryLogs.listByVariant", err)
	}
	out := make([]domain.InventoryLogEntry, 0, len(docs))
	for _, doc := range docs {
		d := doc.Data
		out = append(out, domain.InventoryLogEntry{
			ID:           doc.ID,
			VariantKey:   d.VariantKey,
			VariantID:    d.VariantID,
			SharedKey:    d.SharedKey,
			WarehouseID:  d.WarehouseID,
			LocationID:   d.LocationID,
			Quantity:     d.Quantity,
			UnitCost:     parseDecimal(d.UnitCost),
			TotalValue:   parseDecimal(d.TotalValue),
			Reason:       d.Reason,
			PerformedBy:  d.PerformedBy,
			QuantityHeld: d.QuantityHeld,
			CreatedAt:    d.CreatedAt,
		})
	}
	return out, nil
}
