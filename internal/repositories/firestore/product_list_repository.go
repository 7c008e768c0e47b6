package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	domain "github.com/stockline/api/internal/domain"
	pfirestore "github.com/stockline/api/internal/platform/firestore"
	"github.com/stockline/api/internal/repositories"
)

const productListsCollection = "productLists"

type productListDocument struct {
	Name      string         `firestore:"name"`
	Options   []unitDocument `firestore:"options"`
	UpdatedAt time.Time      `firestore:"updatedAt"`
}

// ProductListRepository implements repositories.ProductListRepository.
type ProductListRepository struct {
	base *pfirestore.BaseRepository[productListDocument]
}

var _ repositories.ProductListRepository = (*ProductListRepository)(nil)

func NewProductListRepository(provider *pfirestore.Provider) (*ProductListRepository, error) {
	if provider == nil {
		return nil, errors.New("product list repository requires firestore provider")
	}
	return &ProductListRepository{
		base: pfirestore.NewBaseRepository[productListDocument](provider, productListsCollection),
	}, nil
}

func (r *ProductListRepository) Save(ctx context.Context, list domain.ProductList) error {
	if strings.TrimSpace(list.Key) == "" {
		return repositories.NewProductError("productLists.save", repositories.ProductErrorInvalid, "key is required", nil)
	}
	doc := productListDocument{Name: list.Name, UpdatedAt: list.UpdatedAt.UTC()}
	for _, option := range list.Options {
		doc.Options = append(doc.Options, unitDocument(option))
	}
	return wrapProductError("productLists.save", r.base.Set(ctx, list.Key, doc))
}

func (r *ProductListRepository) Get(ctx context.Context, key string) (domain.ProductList, error) {
	doc, err := r.base.Get(ctx, key)
	if err != nil {
		return domain.ProductList{}, wrapProductError("productLists.get", err)
	}
	return productListToDomain(doc.ID, doc.Data), nil
}

func (r *ProductListRepository) List(ctx context.Context) ([]domain.ProductList, error) {
	docs, err := r.base.Query(ctx, nil)
	if err != nil {
		return nil, wrapProductError("productLists.list", err)
	}
	out := make([]domain.ProductList, 0, len(docs))
	for _, doc := range docs {
		out = append(out, productListToDomain(doc.ID, doc.Data))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func productListToDomain(key string, doc productListDocument) domain.ProductList {
	list := domain.ProductList{Key: key, Name: doc.Name, UpdatedAt: doc.UpdatedAt}
	for _, option := range doc.Options {
		list.Options = append(list.Options, domain.ProductListOption(option))
	}
	return list
}
