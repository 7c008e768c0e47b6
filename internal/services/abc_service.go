package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/repositories"
)

const (
	opABCSave     = "abc.save"
	opABCClassify = "abc.classify"

	abcWriteBatch = 100
)

var (
	defaultThresholdA = decimal.RequireFromString("0.80")
	defaultThresholdB = decimal.RequireFromString("0.95")
)

// ABCServiceDeps bundles the classification collaborators.
type ABCServiceDeps struct {
	Classifications repositories.ABCClassificationRepository
	Variants        repositories.VariantRepository
	InventoryLogs   repositories.InventoryLogRepository
	UnitOfWork      repositories.UnitOfWork
	Metrics         MutationRecorder
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type abcService struct {
	classifications repositories.ABCClassificationRepository
	variants        repositories.VariantRepository
	logs            repositories.InventoryLogRepository
	uow             repositories.UnitOfWork
	metrics         MutationRecorder
	clock           func() time.Time
	newID           func() string
	logger          eventLogger
}

// NewABCService wires the ABC classification service.
func NewABCService(deps ABCServiceDeps) (ABCService, error) {
	switch {
	case deps.Classifications == nil:
		return nil, errors.New("abc service: classification repository is required")
	case deps.Variants == nil:
		return nil, errors.New("abc service: variant repository is required")
	case deps.InventoryLogs == nil:
		return nil, errors.New("abc service: inventory log repository is required")
	case deps.UnitOfWork == nil:
		return nil, errors.New("abc service: unit of work is required")
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &abcService{
		classifications: deps.Classifications,
		variants:        deps.Variants,
		logs:            deps.InventoryLogs,
		uow:             deps.UnitOfWork,
		metrics:         deps.Metrics,
		clock:           utcClock(deps.Clock),
		newID:           idGen,
		logger:          ensureLogger(deps.Logger),
	}, nil
}

// SaveClassification creates or updates the single classification of a warehouse.
func (s *abcService) SaveClassification(ctx context.Context, cmd SaveClassificationCommand) (out domain.ABCClassification, err error) {
	defer func() { s.record(ctx, opABCSave, err) }()

	warehouseID := strings.TrimSpace(cmd.WarehouseID)
	if warehouseID == "" {
		return domain.ABCClassification{}, fmt.Errorf("%w: warehouseId is required", ErrProductInvalid)
	}
	now := s.clock()
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, found, err := s.lookup(ctx, strings.TrimSpace(cmd.Key), warehouseID)
		if err != nil {
			return err
		}
		if !found {
			current = domain.ABCClassification{
				Key:         s.newID(),
				WarehouseID: warehouseID,
				ThresholdA:  defaultThresholdA,
				ThresholdB:  defaultThresholdB,
				CreatedAt:   now,
			}
		}
		if current.WarehouseID != warehouseID {
			return fmt.Errorf("%w: classification %s belongs to warehouse %s", ErrProductInvalid, current.Key, current.WarehouseID)
		}
		if name := sanitizeText(cmd.Name); name != "" {
			current.Name = name
		}
		if cmd.ThresholdA != nil {
			current.ThresholdA = *cmd.ThresholdA
		}
		if cmd.ThresholdB != nil {
			current.ThresholdB = *cmd.ThresholdB
		}
		if err := validateThresholds(current.ThresholdA, current.ThresholdB); err != nil {
			return err
		}
		current.UpdatedAt = now
		out = current
		return s.classifications.Save(ctx, current)
	})
	if err != nil {
		return domain.ABCClassification{}, mapRepositoryError(err)
	}
	return out, nil
}

func (s *abcService) lookup(ctx context.Context, key, warehouseID string) (domain.ABCClassification, bool, error) {
	var (
		current domain.ABCClassification
		err     error
	)
	if key != "" {
		current, err = s.classifications.Get(ctx, key)
	} else {
		current, err = s.classifications.FindByWarehouse(ctx, warehouseID)
	}
	switch {
	case err == nil:
		return current, true, nil
	case key == "" && repositories.IsNotFound(err):
		return domain.ABCClassification{}, false, nil
	default:
		return domain.ABCClassification{}, false, err
	}
}

func validateThresholds(a, b decimal.Decimal) error {
	one := decimal.NewFromInt(1)
	if !a.IsPositive() || !b.IsPositive() || a.GreaterThan(one) || b.GreaterThan(one) {
		return fmt.Errorf("%w: thresholds must be within (0, 1]", ErrProductInvalid)
	}
	if !a.LessThan(b) {
		return fmt.Errorf("%w: thresholdA must be below thresholdB", ErrProductInvalid)
	}
	return nil
}

func (s *abcService) GetClassification(ctx context.Context, key string) (domain.ABCClassification, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ABCClassification{}, fmt.Errorf("%w: classification key is required", ErrProductInvalid)
	}
	out, err := s.classifications.Get(ctx, key)
	if err != nil {
		return domain.ABCClassification{}, mapRepositoryError(err)
	}
	return out, nil
}

func (s *abcService) ListClassifications(ctx context.Context) ([]domain.ABCClassification, error) {
	out, err := s.classifications.List(ctx)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return out, nil
}

type consumption struct {
	key       string
	variantID string
	value     decimal.Decimal
}

// ClassifyVariants ranks the warehouse's variants by consumption value and assigns A, B or C
// using the cumulative-share thresholds. Consumption value is the total value of stock movements
// in the window; variants without movements fall back to unit cost times stock held there.
func (s *abcService) ClassifyVariants(ctx context.Context, cmd ClassifyCommand) (out domain.ABCClassification, err error) {
	ctx, span := startSpan(ctx, opABCClassify)
	defer func() {
		s.record(ctx, opABCClassify, err)
		endSpan(span, err)
	}()

	warehouseID := strings.TrimSpace(cmd.WarehouseID)
	if warehouseID == "" {
		return domain.ABCClassification{}, fmt.Errorf("%w: warehouseId is required", ErrProductInvalid)
	}
	now := s.clock()
	since := cmd.Since
	if since.IsZero() {
		since = now.AddDate(-1, 0, 0)
	}

	classification, found, err := s.lookup(ctx, "", warehouseID)
	if err != nil {
		return domain.ABCClassification{}, mapRepositoryError(err)
	}
	if !found {
		classification = domain.ABCClassification{
			Key:         s.newID(),
			WarehouseID: warehouseID,
			ThresholdA:  defaultThresholdA,
			ThresholdB:  defaultThresholdB,
			CreatedAt:   now,
		}
	}

	variants, err := s.variants.List(ctx, repositories.VariantFilter{WarehouseIDs: []string{warehouseID}})
	if err != nil {
		return domain.ABCClassification{}, mapRepositoryError(err)
	}
	ranked := make([]consumption, 0, len(variants))
	for _, v := range variants {
		if v.Status.IsTerminal() {
			continue
		}
		value, err := s.consumptionValue(ctx, v, warehouseID, since)
		if err != nil {
			return domain.ABCClassification{}, mapRepositoryError(err)
		}
		ranked = append(ranked, consumption{key: v.Key, variantID: v.VariantID, value: value})
	}
	assignments := classify(ranked, classification.ThresholdA, classification.ThresholdB)

	if err := s.applyClasses(ctx, assignments, cmd.User, now); err != nil {
		return domain.ABCClassification{}, err
	}

	classification.Assignments = assignments
	classification.ComputedAt = &now
	classification.UpdatedAt = now
	if err := s.classifications.Save(ctx, classification); err != nil {
		return domain.ABCClassification{}, mapRepositoryError(err)
	}
	s.logger(ctx, "abc.classified", map[string]any{
		"warehouseId": warehouseID,
		"variants":    len(assignments),
	})
	return classification, nil
}

func (s *abcService) consumptionValue(ctx context.Context, v domain.Variant, warehouseID string, since time.Time) (decimal.Decimal, error) {
	entries, err := s.logs.ListByVariant(ctx, v.Key, 0)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	moved := false
	for _, entry := range entries {
		if entry.WarehouseID != warehouseID || entry.CreatedAt.Before(since) {
			continue
		}
		moved = true
		value := entry.TotalValue
		if value.IsZero() {
			value = entry.UnitCost.Mul(decimal.NewFromFloat(entry.Quantity))
		}
		total = total.Add(value.Abs())
	}
	if moved {
		return total, nil
	}
	var held float64
	for _, loc := range v.StorageLocations[warehouseID] {
		held += loc.ItemQuantity
	}
	return v.UnitCost.Mul(decimal.NewFromFloat(held)).Abs(), nil
}

// classify assigns classes by cumulative share of total value. A variant belongs to the first
// bucket whose threshold the running share had not yet reached before it was added, so the top
// variant is always A. When the total is zero every variant is C.
func classify(items []consumption, thresholdA, thresholdB decimal.Decimal) map[string]domain.ABCClass {
	out := make(map[string]domain.ABCClass, len(items))
	sorted := append([]consumption(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].value.Cmp(sorted[j].value); c != 0 {
			return c > 0
		}
		return sorted[i].variantID < sorted[j].variantID
	})
	total := decimal.Zero
	for _, item := range sorted {
		total = total.Add(item.value)
	}
	if !total.IsPositive() {
		for _, item := range sorted {
			out[item.key] = domain.ABCClassC
		}
		return out
	}
	running := decimal.Zero
	for _, item := range sorted {
		share := running.Div(total)
		switch {
		case share.LessThan(thresholdA):
			out[item.key] = domain.ABCClassA
		case share.LessThan(thresholdB):
			out[item.key] = domain.ABCClassB
		default:
			out[item.key] = domain.ABCClassC
		}
		running = running.Add(item.value)
	}
	return out
}

func (s *abcService) applyClasses(ctx context.Context, assignments map[string]domain.ABCClass, user domain.UserInfo, now time.Time) error {
	keys := make([]string, 0, len(assignments))
	for key := range assignments {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for start := 0; start < len(keys); start += abcWriteBatch {
		end := start + abcWriteBatch
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]
		err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
			variants, err := s.variants.GetMany(ctx, batch)
			if err != nil {
				return err
			}
			for _, v := range variants {
				class := string(assignments[v.Key])
				if v.ABCClass == class {
					continue
				}
				change := domain.FieldChange{Field: "abcClass", NewValue: class}
				if v.ABCClass != "" {
					change.OldValue = v.ABCClass
				}
				v.ABCClass = class
				v.UpdatedAt = now
				v.ActivityLog = append(v.ActivityLog, domain.NewActivityLog(user, domain.ActivityClassificationSet, v.Status,
					[]domain.FieldChange{change}, now))
				if err := s.variants.Save(ctx, v); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return mapRepositoryError(err)
		}
	}
	return nil
}

func (s *abcService) record(ctx context.Context, op string, err error) {
	if s.metrics != nil {
		s.metrics.RecordMutation(ctx, op, err)
	}
}
