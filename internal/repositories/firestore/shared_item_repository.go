package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/stockline/api/internal/domain"
	pfirestore "github.com/stockline/api/internal/platform/firestore"
	"github.com/stockline/api/internal/repositories"
)

const (
	sharedItemsCollection  = "sharedItems"
	productNamesCollection = "productNames"
	maxInFilterValues      = 30
)

var sharedSortFields = map[string]string{
	"name":      "name",
	"productId": "productId",
	"status":    "status",
	"category":  "category",
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
}

type productNameDocument struct {
	NameKey   string    `firestore:"nameKey"`
	SharedKey string    `firestore:"sharedKey"`
	ClaimedAt time.Time `firestore:"claimedAt"`
}

// SharedItemRepository implements repositories.SharedItemRepository on Firestore.
type SharedItemRepository struct {
	items *pfirestore.BaseRepository[sharedItemDocument]
	names *pfirestore.BaseRepository[productNameDocument]
	clock func() time.Time
}

var _ repositories.SharedItemRepository = (*SharedItemRepository)(nil)

// NewSharedItemRepository constructs the product repository.
func NewSharedItemRepository(provider *pfirestore.Provider) (*SharedItemRepository, error) {
	if provider == nil {
		return nil, errors.New("shared item repository requires firestore provider")
	}
	return &SharedItemRepository{
		items: pfirestore.NewBaseRepository[sharedItemDocument](provider, sharedItemsCollection),
		names: pfirestore.NewBaseRepository[productNameDocument](provider, productNamesCollection),
		clock: time.Now,
	}, nil
}

func (r *SharedItemRepository) Insert(ctx context.Context, item domain.SharedItem) error {
	if strings.TrimSpace(item.Key) == "" {
		return repositories.NewProductError("sharedItems.insert", repositories.ProductErrorInvalid, "key is required", nil)
	}
	return wrapProductError("sharedItems.insert", r.items.Create(ctx, item.Key, newSharedItemDocument(item)))
}

func (r *SharedItemRepository) Save(ctx context.Context, item domain.SharedItem) error {
	if strings.TrimSpace(item.Key) == "" {
		return repositories.NewProductError("sharedItems.save", repositories.ProductErrorInvalid, "key is required", nil)
	}
	return wrapProductError("sharedItems.save", r.items.Set(ctx, item.Key, newSharedItemDocument(item)))
}

func (r *SharedItemRepository) Get(ctx context.Context, key string) (domain.SharedItem, error) {
	doc, err := r.items.Get(ctx, key)
	if err != nil {
		return domain.SharedItem{}, wrapProductError("sharedItems.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *SharedItemRepository) GetMany(ctx context.Context, keys []string) ([]domain.SharedItem, error) {
	docs, missing, err := r.items.GetAll(ctx, keys)
	if err != nil {
		return nil, wrapProductError("sharedItems.getMany", err)
	}
	if len(missing) > 0 {
		return nil, repositories.NotFound("sharedItems.getMany", fmt.Sprintf("products not found: %s", strings.Join(missing, ", ")))
	}
	out := make([]domain.SharedItem, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func (r *SharedItemRepository) List(ctx context.Context, filter repositories.SharedItemFilter) ([]domain.SharedItem, error) {
	docs, err := r.items.Query(ctx, func(q firestore.Query) firestore.Query {
		return applySharedFilter(q, filter)
	})
	if err != nil {
		return nil, wrapProductError("sharedItems.list", err)
	}
	out := make([]domain.SharedItem, 0, len(docs))
	for _, doc := range docs {
		item := doc.Data.toDomain(doc.ID)
		if filter.Matches(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

// Page runs filter, order, offset and limit inside Firestore and counts with an aggregation query.
func (r *SharedItemRepository) Page(ctx context.Context, query repositories.SharedItemPageQuery) ([]domain.SharedItem, int, error) {
	field, ok := sharedSortFields[query.SortField]
	if !ok {
		field = "createdAt"
	}
	direction := firestore.Desc
	if query.SortOrder == domain.SortAsc {
		direction = firestore.Asc
	}

	total, err := r.items.Count(ctx, func(q firestore.Query) firestore.Query {
		return applySharedFilter(q, query.Filter)
	})
	if err != nil {
		return nil, 0, wrapProductError("sharedItems.page", err)
	}

	docs, err := r.items.Query(ctx, func(q firestore.Query) firestore.Query {
		q = applySharedFilter(q, query.Filter).OrderBy(field, direction)
		if query.Offset > 0 {
			q = q.Offset(query.Offset)
		}
		if query.Limit > 0 {
			q = q.Limit(query.Limit)
		}
		return q
	})
	if err != nil {
		return nil, 0, wrapProductError("sharedItems.page", err)
	}
	out := make([]domain.SharedItem, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, total, nil
}

func (r *SharedItemRepository) NameKeys(ctx context.Context) (map[string]struct{}, error) {
	docs, err := r.names.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Select("nameKey")
	})
	if err != nil {
		return nil, wrapProductError("productNames.list", err)
	}
	out := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		out[doc.Data.NameKey] = struct{}{}
	}
	return out, nil
}

func (r *SharedItemRepository) NameTaken(ctx context.Context, nameKey string) (bool, error) {
	exists, err := r.names.Exists(ctx, nameDocumentID(nameKey))
	if err != nil {
		return false, wrapProductError("productNames.get", err)
	}
	return exists, nil
}

// ClaimName creates the name index entry. Inside a transaction the conflict surfaces at commit.
func (r *SharedItemRepository) ClaimName(ctx context.Context, nameKey, sharedKey string) error {
	if strings.TrimSpace(nameKey) == "" {
		return repositories.NewProductError("productNames.claim", repositories.ProductErrorInvalid, "name is required", nil)
	}
	doc := productNameDocument{NameKey: nameKey, SharedKey: sharedKey, ClaimedAt: r.clock().UTC()}
	return wrapProductError("productNames.claim", r.names.Create(ctx, nameDocumentID(nameKey), doc))
}

func (r *SharedItemRepository) ReleaseName(ctx context.Context, nameKey string) error {
	if strings.TrimSpace(nameKey) == "" {
		return nil
	}
	return wrapProductError("productNames.release", r.names.Delete(ctx, nameDocumentID(nameKey)))
}

func applySharedFilter(q firestore.Query, filter repositories.SharedItemFilter) firestore.Query {
	if values := statusStrings(filter.Statuses); len(values) > 0 && len(values) <= maxInFilterValues {
		q = q.Where("status", "in", values)
	}
	if len(filter.Types) > 0 && len(filter.Types) <= maxInFilterValues {
		types := make([]string, 0, len(filter.Types))
		for _, t := range filter.Types {
			types = append(types, string(t))
		}
		q = q.Where("itemType", "in", types)
	}
	if filter.Category != "" {
		q = q.Where("category", "==", filter.Category)
	}
	if filter.Supplier != "" {
		q = q.Where("supplier", "==", filter.Supplier)
	}
	return q
}

func statusStrings(statuses []domain.ItemStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

func nameDocumentID(nameKey string) string {
	sum := sha256.Sum256([]byte(nameKey))
	return hex.EncodeToString(sum[:])
}

func wrapProductError(op string, err error) error {
	if err == nil {
		return nil
	}
	var productErr *repositories.ProductError
	if errors.As(err, &productErr) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		code := repositories.ProductErrorUnknown
		switch {
		case repoErr.IsNotFound():
			code = repositories.ProductErrorNotFound
		case repoErr.IsConflict():
			code = repositories.ProductErrorConflict
		case repoErr.IsUnavailable():
			code = repositories.ProductErrorUnavailable
		}
		return repositories.NewProductError(op, code, repoErr.Error(), err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return repositories.NewProductError(op, repositories.ProductErrorUnknown, err.Error(), err)
}
