package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/stockline/api/internal/domain"
	pfirestore "github.com/stockline/api/internal/platform/firestore"
	"github.com/stockline/api/internal/repositories"
)

const abcClassificationsCollection = "abcClassifications"

type abcClassificationDocument struct {
	WarehouseID string            `firestore:"warehouseId"`
	Name        string            `firestore:"name"`
	ThresholdA  string            `firestore:"thresholdA"`
	ThresholdB  string            `firestore:"thresholdB"`
	Assignments map[string]string `firestore:"assignments"`
	ComputedAt  *time.Time        `firestore:"computedAt"`
	CreatedAt   time.Time         `firestore:"createdAt"`
	UpdatedAt   time.Time         `firestore:"updatedAt"`
}

func newABCClassificationDocument(c domain.ABCClassification) abcClassificationDocument {
	assignments := make(map[string]string, len(c.Assignments))
	for key, class := range c.Assignments {
		assignments[key] = string(class)
	}
	return abcClassificationDocument{
		WarehouseID: c.WarehouseID,
		Name:        c.Name,
		ThresholdA:  c.ThresholdA.String(),
		ThresholdB:  c.ThresholdB.String(),
		Assignments: assignments,
		ComputedAt:  c.ComputedAt,
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
	}
}

func (d abcClassificationDocument) toDomain(key string) domain.ABCClassification {
	assignments := make(map[string]domain.ABCClass, len(d.Assignments))
	for variantKey, class := range d.Assignments {
		assignments[variantKey] = domain.ABCClass(class)
	}
	return domain.ABCClassification{
		Key:         key,
		WarehouseID: d.WarehouseID,
		Name:        d.Name,
		ThresholdA:  parseDecimal(d.ThresholdA),
		ThresholdB:  parseDecimal(d.ThresholdB),
		Assignments: assignments,
		ComputedAt:  d.ComputedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// ABCClassificationRepository implements repositories.ABCClassificationRepository.
type ABCClassificationRepository struct {
	base *pfirestore.BaseRepository[abcClassificationDocument]
}

var _ repositories.ABCClassificationRepository = (*ABCClassificationRepository)(nil)

func NewABCClassificationRepository(provider *pfirestore.Provider) (*ABCClassificationRepository, error) {
	if provider == nil {
		return nil, errors.New("abc classification repository requires firestore provider")
	}
	return &ABCClassificationRepository{
		base: pfirestore.NewBaseRepository[abcClassificationDocument](provider, abcClassificationsCollection),
	}, nil
}

func (r *ABCClassificationRepository) Save(ctx context.Context, classification domain.ABCClassification) error {
	if strings.TrimSpace(classification.Key) == "" {
		return repositories.NewProductError("abcClassifications.save", repositories.ProductErrorInvalid, "key is required", nil)
	}
	return wrapProductError("abcClassifications.save", r.base.Set(ctx, classification.Key, newABCClassificationDocument(classification)))
}

func (r *ABCClassificationRepository) Get(ctx context.Context, key string) (domain.ABCClassification, error) {
	doc, err := r.base.Get(ctx, key)
	if err != nil {
		return domain.ABCClassification{}, wrapProductError("abcClassifications.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ABCClassificationRepository) FindByWarehouse(ctx context.Context, warehouseID string) (domain.ABCClassification, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("warehouseId", "==", warehouseID).Limit(1)
	})
	if err != nil {
		return domain.ABCClassification{}, wrapProductError("abcClassifications.findByWarehouse", err)
	}
	if len(docs) == 0 {
		return domain.ABCClassification{}, repositories.NotFound("abcClassifications.findByWarehouse", "no classification for warehouse "+warehouseID)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *ABCClassificationRepository) List(ctx context.Context) ([]domain.ABCClassification, error) {
	docs, err := r.base.Query(ctx, nil)
	if err != nil {
		return nil, wrapProductError("abcClassifications.list", err)
	}
	out := make([]domain.ABCClassification, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].WarehouseID < out[j].WarehouseID })
	return out, nil
}
