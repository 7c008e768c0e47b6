package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/repositories"
)

const (
	opSupplierCreate     = "supplier.create"
	opSupplierUpdate     = "supplier.update"
	opSupplierBulkAssign = "supplier.bulk_assign"
)

// SupplierServiceDeps bundles the supplier collaborators.
type SupplierServiceDeps struct {
	Suppliers   repositories.SupplierRepository
	Variants    repositories.VariantRepository
	UnitOfWork  repositories.UnitOfWork
	Metrics     MutationRecorder
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type supplierService struct {
	suppliers repositories.SupplierRepository
	variants  repositories.VariantRepository
	uow       repositories.UnitOfWork
	metrics   MutationRecorder
	clock     func() time.Time
	newID     func() string
	logger    eventLogger
}

// NewSupplierService wires the supplier service.
func NewSupplierService(deps SupplierServiceDeps) (SupplierService, error) {
	switch {
	case deps.Suppliers == nil:
		return nil, errors.New("supplier service: supplier repository is required")
	case deps.Variants == nil:
		return nil, errors.New("supplier service: variant repository is required")
	case deps.UnitOfWork == nil:
		return nil, errors.New("supplier service: unit of work is required")
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &supplierService{
		suppliers: deps.Suppliers,
		variants:  deps.Variants,
		uow:       deps.UnitOfWork,
		metrics:   deps.Metrics,
		clock:     utcClock(deps.Clock),
		newID:     idGen,
		logger:    ensureLogger(deps.Logger),
	}, nil
}

func (s *supplierService) CreateSupplier(ctx context.Context, cmd UpsertSupplierCommand) (supplier domain.Supplier, err error) {
	defer func() { s.record(ctx, opSupplierCreate, err) }()

	supplier, err = normalizeSupplier(cmd.Supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	now := s.clock()
	supplier.Key = s.newID()
	supplier.CreatedAt = now
	supplier.UpdatedAt = now
	if err := s.suppliers.Insert(ctx, supplier); err != nil {
		return domain.Supplier{}, mapRepositoryError(err)
	}
	return supplier, nil
}

func (s *supplierService) GetSupplier(ctx context.Context, key string) (domain.Supplier, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.Supplier{}, fmt.Errorf("%w: supplier key is required", ErrProductInvalid)
	}
	supplier, err := s.suppliers.Get(ctx, key)
	if err != nil {
		return domain.Supplier{}, mapRepositoryError(err)
	}
	return supplier, nil
}

func (s *supplierService) ListSuppliers(ctx context.Context, activeOnly bool) ([]domain.Supplier, error) {
	suppliers, err := s.suppliers.List(ctx, repositories.SupplierFilter{ActiveOnly: activeOnly})
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return suppliers, nil
}

func (s *supplierService) UpdateSupplier(ctx context.Context, cmd UpsertSupplierCommand) (supplier domain.Supplier, err error) {
	defer func() { s.record(ctx, opSupplierUpdate, err) }()

	key := strings.TrimSpace(cmd.Supplier.Key)
	if key == "" {
		return domain.Supplier{}, fmt.Errorf("%w: supplier key is required", ErrProductInvalid)
	}
	supplier, err = normalizeSupplier(cmd.Supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.suppliers.Get(ctx, key)
		if err != nil {
			return err
		}
		supplier.Key = key
		supplier.CreatedAt = current.CreatedAt
		supplier.UpdatedAt = s.clock()
		return s.suppliers.Save(ctx, supplier)
	})
	if err != nil {
		return domain.Supplier{}, mapRepositoryError(err)
	}
	return supplier, nil
}

// BulkUpdateSupplier links each variant to the supplier in its own transaction, so one bad
// key does not block the rest.
func (s *supplierService) BulkUpdateSupplier(ctx context.Context, cmd BulkSupplierCommand) (results []domain.BulkResult, err error) {
	ctx, span := startSpan(ctx, opSupplierBulkAssign)
	defer func() {
		s.record(ctx, opSupplierBulkAssign, err)
		endSpan(span, err)
	}()

	supplierKey := strings.TrimSpace(cmd.SupplierKey)
	if supplierKey == "" {
		return nil, fmt.Errorf("%w: supplier key is required", ErrProductInvalid)
	}
	keys := normalizeKeys(cmd.VariantKeys)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: at least one variant key is required", ErrProductInvalid)
	}
	if len(keys) > maxBulkElements {
		return nil, fmt.Errorf("%w: at most %d variants per request", ErrProductInvalid, maxBulkElements)
	}
	supplier, err := s.suppliers.Get(ctx, supplierKey)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if !supplier.Active {
		return nil, fmt.Errorf("%w: supplier %s is inactive", ErrProductInvalid, supplierKey)
	}

	results = make([]domain.BulkResult, 0, len(keys))
	for _, key := range keys {
		if err := s.assign(ctx, key, supplierKey, cmd.User); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			results = append(results, domain.BulkResult{Key: key, Error: err.Error()})
			continue
		}
		results = append(results, domain.BulkResult{Key: key, Success: true})
	}
	s.logger(ctx, "supplier.bulk_assign", map[string]any{
		"supplierKey": supplierKey,
		"requested":   len(keys),
	})
	return results, nil
}

func (s *supplierService) assign(ctx context.Context, variantKey, supplierKey string, user domain.UserInfo) error {
	now := s.clock()
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		v, err := s.variants.Get(ctx, variantKey)
		if err != nil {
			return err
		}
		if v.SupplierKey == supplierKey {
			return nil
		}
		if v.Status.IsTerminal() {
			return fmt.Errorf("%w: variant %s is %s", ErrProductInvalid, v.VariantID, v.Status)
		}
		change := domain.FieldChange{Field: "supplier", NewValue: supplierKey}
		if v.SupplierKey != "" {
			change.OldValue = v.SupplierKey
		}
		v.SupplierKey = supplierKey
		v.UpdatedAt = now
		v.ActivityLog = append(v.ActivityLog, domain.NewActivityLog(user, domain.ActivitySupplierAssigned, v.Status,
			[]domain.FieldChange{change}, now))
		return s.variants.Save(ctx, v)
	})
	return mapRepositoryError(err)
}

func (s *supplierService) record(ctx context.Context, op string, err error) {
	if s.metrics != nil {
		s.metrics.RecordMutation(ctx, op, err)
	}
}

func normalizeSupplier(in domain.Supplier) (domain.Supplier, error) {
	out := in
	out.Name = domain.NormalizeName(sanitizeText(in.Name))
	if out.Name == "" {
		return domain.Supplier{}, fmt.Errorf("%w: supplier name is required", ErrProductInvalid)
	}
	out.ContactName = sanitizeText(in.ContactName)
	out.Phone = strings.TrimSpace(in.Phone)
	out.Address = sanitizeText(in.Address)
	out.Website = strings.TrimSpace(in.Website)
	out.Notes = sanitizeText(in.Notes)
	out.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if out.Currency != "" && len(out.Currency) != 3 {
		return domain.Supplier{}, fmt.Errorf("%w: currency must be an ISO 4217 code", ErrProductInvalid)
	}
	if out.LeadTimeDays < 0 {
		return domain.Supplier{}, fmt.Errorf("%w: leadTimeDays must not be negative", ErrProductInvalid)
	}
	out.Email = strings.TrimSpace(in.Email)
	if out.Email != "" {
		addr, err := mail.ParseAddress(out.Email)
		if err != nil {
			return domain.Supplier{}, fmt.Errorf("%w: invalid supplier email", ErrProductInvalid)
		}
		out.Email = addr.Address
	}
	return out, nil
}
