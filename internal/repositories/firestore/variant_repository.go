package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/stockline/api/internal/domain"
	pfirestore "github.com/stockline/api/internal/platform/firestore"
	"github.com/stockline/api/internal/repositories"
)

const variantsCollection = "items"

// VariantRepository implements repositories.VariantRepository on Firestore.
type VariantRepository struct {
	variants *pfirestore.BaseRepository[variantDocument]
}

var _ repositories.VariantRepository = (*VariantRepository)(nil)

// NewVariantRepository constructs the variant repository.
func NewVariantRepository(provider *pfirestore.Provider) (*VariantRepository, error) {
	if provider == nil {
		return nil, errors.New("variant repository requires firestore provider")
	}
	return &VariantRepository{
		variants: pfirestore.NewBaseRepository[variantDocument](provider, variantsCollection),
	}, nil
}

func (r *VariantRepository) Insert(ctx context.Context, variant domain.Variant) error {
	if strings.TrimSpace(variant.Key) == "" {
		return repositories.NewProductError("items.insert", repositories.ProductErrorInvalid, "key is required", nil)
	}
	return wrapProductError("items.insert", r.variants.Create(ctx, variant.Key, newVariantDocument(variant)))
}

func (r *VariantRepository) Save(ctx context.Context, variant domain.Variant) error {
	if strings.TrimSpace(variant.Key) == "" {
		return repositories.NewProductError("items.save", repositories.ProductErrorInvalid, "key is required", nil)
	}
	return wrapProductError("items.save", r.variants.Set(ctx, variant.Key, newVariantDocument(variant)))
}

func (r *VariantRepository) Get(ctx context.Context, key string) (domain.Variant, error) {
	doc, err := r.variants.Get(ctx, key)
	if err != nil {
		return domain.Variant{}, wrapProductError("items.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *VariantRepository) GetMany(ctx context.Context, keys []string) ([]domain.Variant, error) {
	docs, missing, err := r.variants.GetAll(ctx, keys)
	if err != nil {
		return nil, wrapProductError("items.getMany", err)
	}
	if len(missing) > 0 {
		return nil, repositories.NotFound("items.getMany", fmt.Sprintf("variants not found: %s", strings.Join(missing, ", ")))
	}
	out := make([]domain.Variant, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func (r *VariantRepository) Delete(ctx context.Context, key string) error {
	return wrapProductError("items.delete", r.variants.Delete(ctx, key))
}

func (r *VariantRepository) ListByShared(ctx context.Context, sharedKey string) ([]domain.Variant, error) {
	docs, err := r.variants.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("sharedAttributes", "==", sharedKey)
	})
	if err != nil {
		return nil, wrapProductError("items.listByShared", err)
	}
	out := make([]domain.Variant, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	sort.SliceStable(out, func(i, j int) bool { return variantLess(out[i], out[j]) })
	return out, nil
}

// List pushes one array/in predicate down to Firestore, chunked to its 30 value limit,
// and applies the remaining predicates in process.
func (r *VariantRepository) List(ctx context.Context, filter repositories.VariantFilter) ([]domain.Variant, error) {
	field, op, values := variantPushdown(filter)

	var builders []pfirestore.QueryBuilder
	if field == "" {
		builders = append(builders, func(q firestore.Query) firestore.Query { return q })
	}
	for start := 0; start < len(values); start += maxInFilterValues {
		end := start + maxInFilterValues
		if end > len(values) {
			end = len(values)
		}
		chunk := values[start:end]
		builders = append(builders, func(q firestore.Query) firestore.Query {
			return q.Where(field, op, chunk)
		})
	}

	seen := make(map[string]struct{})
	var out []domain.Variant
	for _, build := range builders {
		docs, err := r.variants.Query(ctx, build)
		if err != nil {
			return nil, wrapProductError("items.list", err)
		}
		for _, doc := range docs {
			if _, dup := seen[doc.ID]; dup {
				continue
			}
			seen[doc.ID] = struct{}{}
			variant := doc.Data.toDomain(doc.ID)
			if filter.Matches(variant) {
				out = append(out, variant)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return variantLess(out[i], out[j]) })
	return out, nil
}

func variantPushdown(filter repositories.VariantFilter) (string, string, []any) {
	switch {
	case len(filter.SharedKeys) > 0:
		return "sharedAttributes", "in", toAnySlice(filter.SharedKeys)
	case len(filter.WarehouseIDs) > 0:
		return "warehouseIds", "array-contains-any", toAnySlice(filter.WarehouseIDs)
	case len(filter.Statuses) > 0:
		return "status", "in", toAnySlice(statusStrings(filter.Statuses))
	default:
		return "", "", nil
	}
}

func toAnySlice(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

// variantLess orders by variantId with shorter ids first so suffix 10 follows suffix 9.
func variantLess(a, b domain.Variant) bool {
	if len(a.VariantID) != len(b.VariantID) {
		return len(a.VariantID) < len(b.VariantID)
	}
	return a.VariantID < b.VariantID
}
