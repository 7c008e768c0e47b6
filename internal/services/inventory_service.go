package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/repositories"
)

const (
	opStockAdjust = "inventory.adjust"

	eventInventoryAdjusted       = "inventory.adjusted"
	eventInventoryReleaseFailure = "inventory.release_failed"

	defaultMovementLimit = 50
	maxMovementLimit     = 500
)

// ErrInventoryInsufficientStock indicates a removal larger than the stock held at the location.
var ErrInventoryInsufficientStock = errors.New("inventory: insufficient stock")

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Variants      repositories.VariantRepository
	InventoryLogs repositories.InventoryLogRepository
	UnitOfWork    repositories.UnitOfWork
	Warehouses    WarehouseGateway
	Events        ProductEventPublisher
	Metrics       MutationRecorder
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	variants   repositories.VariantRepository
	logs       repositories.InventoryLogRepository
	uow        repositories.UnitOfWork
	warehouses WarehouseGateway
	events     ProductEventPublisher
	metrics    MutationRecorder
	clock      func() time.Time
	newID      func() string
	logger     eventLogger
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	switch {
	case deps.Variants == nil:
		return nil, errors.New("inventory service: variant repository is required")
	case deps.InventoryLogs == nil:
		return nil, errors.New("inventory service: inventory log repository is required")
	case deps.UnitOfWork == nil:
		return nil, errors.New("inventory service: unit of work is required")
	case deps.Warehouses == nil:
		return nil, errors.New("inventory service: warehouse gateway is required")
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	return &inventoryService{
		variants:   deps.Variants,
		logs:       deps.InventoryLogs,
		uow:        deps.UnitOfWork,
		warehouses: deps.Warehouses,
		events:     deps.Events,
		metrics:    deps.Metrics,
		clock:      utcClock(deps.Clock),
		newID:      idGen,
		logger:     ensureLogger(deps.Logger),
	}, nil
}

// AdjustStock books a quantity change into one bin. Additions are checked against the bin's
// remaining capacity first and reserved with the warehouse service as the last step of the
// transaction. When the commit fails after the reservation was made, the reservation is
// reversed.
func (s *inventoryService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (result AdjustStockResult, err error) {
	ctx, span := startSpan(ctx, opStockAdjust)
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordMutation(ctx, opStockAdjust, err)
		}
		endSpan(span, err)
	}()

	cmd, err = validateAdjustInput(cmd)
	if err != nil {
		return AdjustStockResult{}, err
	}

	var capacity *domain.LocationCapacity
	if cmd.Quantity > 0 {
		found, err := s.capacityOf(ctx, cmd.User.Token, cmd.LocationID)
		if err != nil {
			return AdjustStockResult{}, err
		}
		if found.Available() < cmd.Quantity {
			return AdjustStockResult{}, fmt.Errorf("%w: location %s has room for %v, requested %v",
				ErrProductInvalid, cmd.LocationID, found.Available(), cmd.Quantity)
		}
		capacity = &found
	}

	now := s.clock()
	reserved := false
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		v, err := s.variants.Get(ctx, cmd.VariantKey)
		if err != nil {
			return err
		}
		if v.Status.IsTerminal() {
			return fmt.Errorf("%w: variant %s is %s", ErrProductInvalid, v.VariantID, v.Status)
		}
		held, err := applyAdjustment(&v, cmd, capacity)
		if err != nil {
			return err
		}
		previousStock := v.StockOnHand
		v.StockOnHand = v.StorageLocations.TotalQuantity()
		domain.SyncWarehouseIDs(&v)
		v.UpdatedAt = now
		v.ActivityLog = append(v.ActivityLog, domain.NewActivityLog(cmd.User, domain.ActivityStockAdjusted, v.Status,
			[]domain.FieldChange{{Field: "stockOnHand", OldValue: previousStock, NewValue: v.StockOnHand}}, now))

		movement := domain.InventoryLogEntry{
			ID:           s.newID(),
			VariantKey:   v.Key,
			VariantID:    v.VariantID,
			SharedKey:    v.SharedKey,
			WarehouseID:  cmd.WarehouseID,
			LocationID:   cmd.LocationID,
			Quantity:     cmd.Quantity,
			UnitCost:     v.UnitCost,
			TotalValue:   v.UnitCost.Mul(decimal.NewFromFloat(cmd.Quantity)),
			Reason:       cmd.Reason,
			PerformedBy:  actorOf(cmd.User),
			QuantityHeld: held,
			CreatedAt:    now,
		}
		if err := s.variants.Save(ctx, v); err != nil {
			return err
		}
		if err := s.logs.Append(ctx, movement); err != nil {
			return err
		}
		if cmd.Quantity > 0 && !reserved {
			if err := s.warehouses.AddQuantityToLocations(ctx, cmd.User.Token, []domain.LocationReservation{{
				LocationID: cmd.LocationID,
				Quantity:   cmd.Quantity,
			}}); err != nil {
				return fmt.Errorf("%w: reserve location %s: %v", ErrExternalService, cmd.LocationID, err)
			}
			reserved = true
		}
		result = AdjustStockResult{Variant: v, Movement: movement}
		return nil
	})
	if err != nil {
		if reserved {
			s.releaseReservation(ctx, cmd)
		}
		return AdjustStockResult{}, mapRepositoryError(err)
	}

	s.logger(ctx, eventInventoryAdjusted, map[string]any{
		"variantKey":  cmd.VariantKey,
		"warehouseId": cmd.WarehouseID,
		"locationId":  cmd.LocationID,
		"quantity":    cmd.Quantity,
	})
	if s.events != nil {
		event := ProductEvent{
			Type:       ProductEventStockAdjusted,
			SharedKey:  result.Variant.SharedKey,
			VariantIDs: []string{result.Variant.VariantID},
			Status:     string(result.Variant.Status),
			Actor:      actorOf(cmd.User),
			OccurredAt: now,
		}
		if _, err := s.events.PublishProductEvent(context.WithoutCancel(ctx), event); err != nil {
			s.logger(ctx, productEventLogFailure, map[string]any{
				"eventType": event.Type,
				"sharedKey": event.SharedKey,
				"error":     err.Error(),
			})
		}
	}
	return result, nil
}

func (s *inventoryService) capacityOf(ctx context.Context, token, locationID string) (domain.LocationCapacity, error) {
	locations, err := s.warehouses.LocationsByIDs(ctx, token, []string{locationID})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.LocationCapacity{}, ctxErr
		}
		return domain.LocationCapacity{}, fmt.Errorf("%w: location lookup: %v", ErrExternalService, err)
	}
	for _, loc := range locations {
		if loc.ID == locationID {
			return loc, nil
		}
	}
	return domain.LocationCapacity{}, fmt.Errorf("%w: location %s not found", ErrProductInvalid, locationID)
}

func (s *inventoryService) releaseReservation(ctx context.Context, cmd AdjustStockCommand) {
	err := s.warehouses.AddQuantityToLocations(context.WithoutCancel(ctx), cmd.User.Token, []domain.LocationReservation{{
		LocationID: cmd.LocationID,
		Quantity:   -cmd.Quantity,
	}})
	if err != nil {
		s.logger(ctx, eventInventoryReleaseFailure, map[string]any{
			"variantKey": cmd.VariantKey,
			"locationId": cmd.LocationID,
			"quantity":   cmd.Quantity,
			"error":      err.Error(),
		})
	}
}

// applyAdjustment changes the bin's quantity in place and returns the new quantity held there.
// A bin that does not exist yet is created on the first addition.
func applyAdjustment(v *domain.Variant, cmd AdjustStockCommand, capacity *domain.LocationCapacity) (float64, error) {
	if v.StorageLocations == nil {
		v.StorageLocations = domain.StorageLocations{}
	} else {
		v.StorageLocations = v.StorageLocations.Clone()
	}
	bins := v.StorageLocations[cmd.WarehouseID]
	for i := range bins {
		if bins[i].LocationID != cmd.LocationID {
			continue
		}
		next := bins[i].ItemQuantity + cmd.Quantity
		if next < 0 {
			return 0, fmt.Errorf("%w: location %s holds %v", ErrInventoryInsufficientStock, cmd.LocationID, bins[i].ItemQuantity)
		}
		bins[i].ItemQuantity = next
		if cmd.LocationName != "" {
			bins[i].LocationName = cmd.LocationName
		}
		v.StorageLocations[cmd.WarehouseID] = bins
		return next, nil
	}
	if cmd.Quantity < 0 {
		return 0, fmt.Errorf("%w: variant holds nothing at location %s", ErrInventoryInsufficientStock, cmd.LocationID)
	}
	bin := domain.StorageLocation{
		IsMain:       len(bins) == 0,
		LocationID:   cmd.LocationID,
		LocationName: cmd.LocationName,
		ItemQuantity: cmd.Quantity,
	}
	if capacity != nil {
		bin.MaxQtyAtLoc = capacity.MaxQty
	}
	v.StorageLocations[cmd.WarehouseID] = append(bins, bin)
	return bin.ItemQuantity, nil
}

func validateAdjustInput(cmd AdjustStockCommand) (AdjustStockCommand, error) {
	cmd.VariantKey = strings.TrimSpace(cmd.VariantKey)
	cmd.WarehouseID = strings.TrimSpace(cmd.WarehouseID)
	cmd.LocationID = strings.TrimSpace(cmd.LocationID)
	cmd.LocationName = sanitizeText(cmd.LocationName)
	cmd.Reason = sanitizeText(cmd.Reason)
	switch {
	case cmd.VariantKey == "":
		return cmd, fmt.Errorf("%w: variant key is required", ErrProductInvalid)
	case cmd.WarehouseID == "":
		return cmd, fmt.Errorf("%w: warehouseId is required", ErrProductInvalid)
	case cmd.LocationID == "":
		return cmd, fmt.Errorf("%w: locationId is required", ErrProductInvalid)
	case cmd.Quantity == 0 || math.IsNaN(cmd.Quantity) || math.IsInf(cmd.Quantity, 0):
		return cmd, fmt.Errorf("%w: quantity must be a non-zero number", ErrProductInvalid)
	}
	return cmd, nil
}

// ListMovements returns the newest movements of a variant first.
func (s *inventoryService) ListMovements(ctx context.Context, variantKey string, limit int) ([]domain.InventoryLogEntry, error) {
	variantKey = strings.TrimSpace(variantKey)
	if variantKey == "" {
		return nil, fmt.Errorf("%w: variant key is required", ErrProductInvalid)
	}
	if limit <= 0 {
		limit = defaultMovementLimit
	}
	if limit > maxMovementLimit {
		limit = maxMovementLimit
	}
	if _, err := s.variants.Get(ctx, variantKey); err != nil {
		return nil, mapRepositoryError(err)
	}
	entries, err := s.logs.ListByVariant(ctx, variantKey, limit)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return entries, nil
}
