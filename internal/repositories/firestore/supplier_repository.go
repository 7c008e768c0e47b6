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

const suppliersCollection = "suppliers"

type supplierDocument struct {
	Name         string    `firestore:"name"`
	ContactName  string    `firestore:"contactName"`
	Email        string    `firestore:"email"`
	Phone        string    `firestore:"phone"`
	Address      string    `firestore:"address"`
	Website      string    `firestore:"website"`
	Currency     string    `firestore:"currency"`
	LeadTimeDays int       `firestore:"leadTimeDays"`
	Notes        string    `firestore:"notes"`
	Active       bool      `firestore:"active"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func newSupplierDocument(s domain.Supplier) supplierDocument {
	return supplierDocument{
		Name:         s.Name,
		ContactName:  s.ContactName,
		Email:        s.Email,
		Phone:        s.Phone,
		Address:      s.Address,
		Website:      s.Website,
		Currency:     s.Currency,
		LeadTimeDays: s.LeadTimeDays,
		Notes:        s.Notes,
		Active:       s.Active,
		CreatedAt:    s.CreatedAt.UTC(),
		UpdatedAt:    s.UpdatedAt.UTC(),
	}
}

func (d supplierDocument) toDomain(key string) domain.Supplier {
	return domain.Supplier{
		Key:          key,
		Name:         d.Name,
		ContactName:  d.ContactName,
		Email:        d.Email,
		Phone:        d.Phone,
		Address:      d.Address,
		Website:      d.Website,
		Currency:     d.Currency,
		LeadTimeDays: d.LeadTimeDays,
		Notes:        d.Notes,
		Active:       d.Active,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// SupplierRepository implements repositories.SupplierRepository on Firestore.
type SupplierRepository struct {
	base *pfirestore.BaseRepository[supplierDocument]
}

var _ repositories.SupplierRepository = (*SupplierRepository)(nil)

// NewSupplierRepository constructs the supplier repository.
func NewSupplierRepository(provider *pfirestore.Provider) (*SupplierRepository, error) {
	if provider == nil {
		return nil, errors.New("supplier repository requires firestore provider")
	}
	return &SupplierRepository{
		base: pfirestore.NewBaseRepository[supplierDocument](provider, suppliersCollection),
	}, nil
}

func (r *SupplierRepository) Insert(ctx context.Context, supplier domain.Supplier) error {
	if strings.TrimSpace(supplier.Key) == "" {
		return repositories.NewProductError("suppliers.insert", repositories.ProductErrorInvalid, "key is required", nil)
	}
	return wrapProductError("suppliers.insert", r.base.Create(ctx, supplier.Key, newSupplierDocument(supplier)))
}

func (r *SupplierRepository) Save(ctx context.Context, supplier domain.Supplier) error {
	if strings.TrimSpace(supplier.Key) == "" {
		return repositories.NewProductError("suppliers.save", repositories.ProductErrorInvalid, "key is required", nil)
	}
	return wrapProductError("suppliers.save", r.base.Set(ctx, supplier.Key, newSupplierDocument(supplier)))
}

func (r *SupplierRepository) Get(ctx context.Context, key string) (domain.Supplier, error) {
	doc, err := r.base.Get(ctx, key)
	if err != nil {
		return domain.Supplier{}, wrapProductError("suppliers.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *SupplierRepository) List(ctx context.Context, filter repositories.SupplierFilter) ([]domain.Supplier, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		return q
	})
	if err != nil {
		return nil, wrapProductError("suppliers.list", err)
	}
	out := make([]domain.Supplier, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}
