package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/repositories"
)

const (
	opProductCreate        = "product.create"
	opProductUpdate        = "product.update"
	opProductDuplicate     = "product.duplicate"
	opProductStatus        = "product.status"
	opProductBulkStatus    = "product.bulk_status"
	opVariantStatus        = "variant.status"
	opVariantBulkStatus    = "variant.bulk_status"
	entityProduct          = "product"
	entityVariant          = "variant"
	maxBulkElements        = 500
	maxVariantsPerProduct  = 200
	productEventLogFailure = "product.event.publish_failed"
)

// ProductServiceDeps bundles the collaborators of the product engine.
type ProductServiceDeps struct {
	SharedItems repositories.SharedItemRepository
	Variants    repositories.VariantRepository
	UnitOfWork  repositories.UnitOfWork
	Counters    CounterService
	Assets      AssetStore
	Barcodes    BarcodeGenerator
	Events      ProductEventPublisher
	Metrics     MutationRecorder
	// Cascade maps a product status onto its variants. Nil keeps them in lock-step.
	Cascade     domain.StatusCascade
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type productService struct {
	shared   repositories.SharedItemRepository
	variants repositories.VariantRepository
	uow      repositories.UnitOfWork
	counters CounterService
	assets   AssetStore
	barcodes BarcodeGenerator
	events   ProductEventPublisher
	metrics  MutationRecorder
	cascade  domain.StatusCascade
	clock    func() time.Time
	newID    func() string
	logger   eventLogger
}

// NewProductService wires dependencies into the product engine.
func NewProductService(deps ProductServiceDeps) (ProductService, error) {
	switch {
	case deps.SharedItems == nil:
		return nil, errors.New("product service: shared item repository is required")
	case deps.Variants == nil:
		return nil, errors.New("product service: variant repository is required")
	case deps.UnitOfWork == nil:
		return nil, errors.New("product service: unit of work is required")
	case deps.Counters == nil:
		return nil, errors.New("product service: counter service is required")
	case deps.Barcodes == nil:
		return nil, errors.New("product service: barcode generator is required")
	}

	assets := deps.Assets
	if assets == nil {
		assets = passthroughAssets{}
	}
	cascade := deps.Cascade
	if cascade == nil {
		cascade = domain.DefaultStatusCascade
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &productService{
		shared:   deps.SharedItems,
		variants: deps.Variants,
		uow:      deps.UnitOfWork,
		counters: deps.Counters,
		assets:   assets,
		barcodes: deps.Barcodes,
		events:   deps.Events,
		metrics:  deps.Metrics,
		cascade:  cascade,
		clock:    utcClock(deps.Clock),
		newID:    idGen,
		logger:   ensureLogger(deps.Logger),
	}, nil
}

// passthroughAssets is used when no bucket is configured: nothing is deleted and copies keep the source URL.
type passthroughAssets struct{}

func (passthroughAssets) DeleteImages(context.Context, []string) error { return nil }

func (passthroughAssets) DuplicateImages(_ context.Context, urls []string) ([]string, error) {
	return append([]string(nil), urls...), nil
}

// Create ----------------------------------------------------------------------

func (s *productService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (summary domain.ProductSummary, err error) {
	ctx, span := startSpan(ctx, opProductCreate)
	defer func() {
		s.record(ctx, opProductCreate, err)
		endSpan(span, err)
	}()

	shared := normalizeSharedItem(cmd.Product)
	if shared.Type == "" {
		shared.Type = domain.ItemTypeProduct
	}
	profile, ok := domain.LookupItemType(shared.Type)
	if !ok {
		return domain.ProductSummary{}, fmt.Errorf("%w: unknown item type %q", ErrProductInvalid, shared.Type)
	}
	if shared.Status == "" {
		shared.Status = domain.StatusDraft
	}
	if shared.Status != domain.StatusDraft && shared.Status != domain.StatusActive {
		return domain.ProductSummary{}, fmt.Errorf("%w: products are created as draft or active, got %q", ErrProductInvalid, shared.Status)
	}

	drafts := cmd.Variants
	if len(drafts) == 0 {
		drafts = []domain.Variant{{}}
	}
	if len(drafts) > maxVariantsPerProduct {
		return domain.ProductSummary{}, fmt.Errorf("%w: at most %d variants per product", ErrProductInvalid, maxVariantsPerProduct)
	}
	if len(drafts) > 1 {
		shared.ProductHasVariants = true
	}

	now := s.clock()
	shared.Key = s.newID()
	shared.CreatedBy = actorOf(cmd.User)
	shared.CreatedAt = now
	shared.UpdatedAt = now
	shared.VariantIDs = nil
	shared.VariantCount = 0

	variants := make([]domain.Variant, 0, len(drafts))
	for _, draft := range drafts {
		v := normalizeVariant(draft)
		v.Key = s.newID()
		v.SharedKey = shared.Key
		v.Type = shared.Type
		v.Status = s.cascade.VariantStatus(shared.Status)
		v.ProductHasVariants = shared.ProductHasVariants
		if v.Details == nil {
			v.Details = profile.NewDetails()
		}
		if err := checkDetailsType(shared.Type, v); err != nil {
			return domain.ProductSummary{}, err
		}
		v.StockOnHand = v.StorageLocations.TotalQuantity()
		domain.ApplySingleVariantDefaults(shared, &v)
		domain.SyncWarehouseIDs(&v)
		v.CreatedAt = now
		v.UpdatedAt = now
		variants = append(variants, v)
	}
	if err := domain.ValidateDraft(shared, variants); err != nil {
		return domain.ProductSummary{}, mapRepositoryError(err)
	}

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		productID, err := s.counters.NextProductID(ctx)
		if err != nil {
			return err
		}
		shared.ProductID = productID
		for i := range variants {
			if err := s.assignVariantID(&variants[i], productID, i+1); err != nil {
				return err
			}
		}
		if shared.Status == domain.StatusActive {
			if err := domain.ValidateForActivation(shared, variants); err != nil {
				return err
			}
		}
		if err := s.claimName(ctx, shared.Name, shared.Key); err != nil {
			return err
		}

		shared.ActivityLog = []domain.ActivityLogEntry{
			domain.NewActivityLog(cmd.User, domain.ActivityProductCreated, shared.Status, nil, now),
		}
		if err := s.shared.Insert(ctx, shared); err != nil {
			return err
		}
		ids := make([]string, 0, len(variants))
		for i := range variants {
			variants[i].ActivityLog = []domain.ActivityLogEntry{
				domain.NewActivityLog(cmd.User, domain.ActivityItemCreated, variants[i].Status, nil, now),
			}
			if err := s.variants.Insert(ctx, variants[i]); err != nil {
				return err
			}
			ids = append(ids, variants[i].Key)
		}
		shared.VariantIDs = ids
		shared.VariantCount = len(ids)
		return s.shared.Save(ctx, shared)
	})
	if err != nil {
		return domain.ProductSummary{}, mapRepositoryError(err)
	}

	s.publish(ctx, ProductEvent{
		Type:       ProductEventCreated,
		SharedKey:  shared.Key,
		ProductID:  shared.ProductID,
		VariantIDs: variantIDs(variants),
		Status:     string(shared.Status),
		Actor:      actorOf(cmd.User),
		OccurredAt: now,
	})
	return domain.Summarize(shared, variants), nil
}

// Get -------------------------------------------------------------------------

func (s *productService) GetProduct(ctx context.Context, sharedKey string) (ProductDetail, error) {
	sharedKey = strings.TrimSpace(sharedKey)
	if sharedKey == "" {
		return ProductDetail{}, fmt.Errorf("%w: product key is required", ErrProductInvalid)
	}
	shared, variants, err := s.load(ctx, sharedKey)
	if err != nil {
		return ProductDetail{}, mapRepositoryError(err)
	}
	return ProductDetail{Product: shared, Variants: variants}, nil
}

func (s *productService) load(ctx context.Context, sharedKey string) (domain.SharedItem, []domain.Variant, error) {
	shared, err := s.shared.Get(ctx, sharedKey)
	if err != nil {
		return domain.SharedItem{}, nil, err
	}
	variants, err := s.variants.ListByShared(ctx, sharedKey)
	if err != nil {
		return domain.SharedItem{}, nil, err
	}
	return shared, orderVariants(shared.VariantIDs, variants), nil
}

// Update ------------------------------------------------------------------------

type updatePlan struct {
	removals  []domain.Variant
	updates   []domain.VariantPatch
	additions []domain.VariantPatch
}

func (s *productService) planVariants(shared domain.SharedItem, current []domain.Variant, patches []domain.VariantPatch, flipToSingle bool) (updatePlan, error) {
	byVariantID := make(map[string]domain.Variant, len(current))
	for _, v := range current {
		byVariantID[v.VariantID] = v
	}

	var plan updatePlan
	removed := make(map[string]struct{})
	seen := make(map[string]struct{})
	for _, patch := range patches {
		if patch.IsNew() {
			if patch.Remove {
				continue
			}
			plan.additions = append(plan.additions, patch)
			continue
		}
		id := strings.TrimSpace(patch.VariantID)
		if _, ok := byVariantID[id]; !ok {
			return updatePlan{}, fmt.Errorf("%w: variant %s does not belong to product %s", ErrProductNotFound, id, shared.Key)
		}
		if _, dup := seen[id]; dup {
			return updatePlan{}, fmt.Errorf("%w: variant %s appears more than once", ErrProductInvalid, id)
		}
		seen[id] = struct{}{}
		patch.VariantID = id
		if patch.Remove {
			removed[id] = struct{}{}
			continue
		}
		plan.updates = append(plan.updates, patch)
	}

	if flipToSingle {
		if len(plan.updates) == 0 || len(plan.additions) > 0 {
			return updatePlan{}, fmt.Errorf("%w: a single-variant product must name the one variant it keeps", ErrProductInvalid)
		}
		kept := plan.updates[0].VariantID
		for id := range byVariantID {
			if id != kept {
				removed[id] = struct{}{}
			}
		}
	}

	// Removal wins over update for the same variant.
	updates := plan.updates[:0]
	for _, patch := range plan.updates {
		if _, gone := removed[patch.VariantID]; !gone {
			updates = append(updates, patch)
		}
	}
	plan.updates = updates
	for _, v := range current {
		if _, gone := removed[v.VariantID]; gone {
			plan.removals = append(plan.removals, v)
		}
	}
	return plan, nil
}

func (s *productService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (summary domain.ProductSummary, err error) {
	ctx, span := startSpan(ctx, opProductUpdate)
	defer func() {
		s.record(ctx, opProductUpdate, err)
		endSpan(span, err)
	}()

	key := strings.TrimSpace(cmd.SharedKey)
	if key == "" {
		return domain.ProductSummary{}, fmt.Errorf("%w: product key is required", ErrProductInvalid)
	}
	patch := normalizeSharedPatch(cmd.Patch)
	if patch.Status != nil {
		if _, ok := domain.ParseItemStatus(string(*patch.Status)); !ok {
			return domain.ProductSummary{}, fmt.Errorf("%w: unknown status %q", ErrProductInvalid, *patch.Status)
		}
	}
	if patch.Name != nil && *patch.Name == "" {
		return domain.ProductSummary{}, fmt.Errorf("%w: name must not be empty", ErrProductInvalid)
	}
	patches := make([]domain.VariantPatch, 0, len(cmd.Variants))
	for _, p := range cmd.Variants {
		patches = append(patches, normalizeVariantPatch(p))
	}

	now := s.clock()
	var (
		shared        domain.SharedItem
		finalVariants []domain.Variant
		orphanImages  []string
		statusChanged bool
	)

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		orphanImages = nil
		var current []domain.Variant
		var err error
		shared, current, err = s.load(ctx, key)
		if err != nil {
			return err
		}
		original := shared
		flipToSingle := shared.ProductHasVariants && patch.ProductHasVariants != nil && !*patch.ProductHasVariants

		plan, err := s.planVariants(shared, current, patches, flipToSingle)
		if err != nil {
			return err
		}
		if patch.Status != nil {
			if err := domain.ValidateTransition(entityProduct, shared.Key, shared.Status, *patch.Status); err != nil {
				return err
			}
		}

		profile, ok := domain.LookupItemType(shared.Type)
		if !ok {
			return fmt.Errorf("%w: product %s has unknown item type %q", ErrProductInvalid, shared.Key, shared.Type)
		}

		// Removals.
		removedKeys := make(map[string]struct{}, len(plan.removals))
		for _, v := range plan.removals {
			removedKeys[v.Key] = struct{}{}
			orphanImages = append(orphanImages, v.Images...)
		}

		// Merge top-level fields.
		patch.Apply(&shared)
		if patch.Images != nil {
			orphanImages = append(orphanImages, domain.RemovedImages(original.Images, shared.Images)...)
		}
		if patch.Docs != nil {
			orphanImages = append(orphanImages, domain.RemovedImages(original.Docs, shared.Docs)...)
		}
		statusChanged = shared.Status != original.Status
		sharedChanges := domain.DetectChanges(original.Fields(), pickFields(shared.Fields(), patch.Fields()))

		working := make([]domain.Variant, 0, len(current)+len(plan.additions))
		index := make(map[string]int, len(current))
		for _, v := range current {
			if _, gone := removedKeys[v.Key]; gone {
				continue
			}
			index[v.VariantID] = len(working)
			working = append(working, v)
		}

		touched := make(map[string][]domain.FieldChange)
		explicitStatus := make(map[string]bool)

		// Updates.
		for _, vp := range plan.updates {
			i := index[vp.VariantID]
			v := working[i]
			before := v.Fields()
			beforeImages := v.Images
			if vp.Status != nil {
				if err := domain.ValidateTransition(entityVariant, v.VariantID, v.Status, *vp.Status); err != nil {
					return err
				}
				explicitStatus[v.Key] = true
			}
			vp.Apply(&v)
			if err := checkDetailsType(shared.Type, v); err != nil {
				return err
			}
			if vp.StorageLocations != nil {
				domain.SyncWarehouseIDs(&v)
				v.StockOnHand = v.StorageLocations.TotalQuantity()
			}
			if vp.Images != nil {
				orphanImages = append(orphanImages, domain.RemovedImages(beforeImages, v.Images)...)
			}
			working[i] = v
			touched[v.Key] = domain.DetectChanges(before, pickFields(v.Fields(), vp.Fields()))
		}

		// Status cascade onto variants without an explicit status of their own.
		if statusChanged {
			target := s.cascade.VariantStatus(shared.Status)
			for i := range working {
				v := &working[i]
				if explicitStatus[v.Key] || v.Status.IsTerminal() || v.Status == target {
					continue
				}
				touched[v.Key] = append(touched[v.Key], domain.FieldChange{Field: "status", OldValue: v.Status, NewValue: target})
				v.Status = target
			}
		}

		// Additions.
		// current still includes removed variants, so their suffixes are not handed out again.
		suffix := domain.NextVariantSuffix(shared.ProductID, current)
		var inserts []domain.Variant
		for _, vp := range plan.additions {
			v := domain.Variant{
				Key:       s.newID(),
				SharedKey: shared.Key,
				Type:      shared.Type,
				Status:    s.cascade.VariantStatus(shared.Status),
				CreatedAt: now,
			}
			if v.Status.IsTerminal() {
				return fmt.Errorf("%w: cannot add variants to a %s product", ErrInvalidTransition, shared.Status)
			}
			vp.Apply(&v)
			if v.Status != domain.StatusDraft && v.Status != domain.StatusActive {
				return fmt.Errorf("%w: new variants start as draft or active, got %q", ErrProductInvalid, v.Status)
			}
			if v.Details == nil {
				v.Details = profile.NewDetails()
			}
			if err := checkDetailsType(shared.Type, v); err != nil {
				return err
			}
			domain.SyncWarehouseIDs(&v)
			v.StockOnHand = v.StorageLocations.TotalQuantity()
			if err := s.assignVariantID(&v, shared.ProductID, suffix); err != nil {
				return err
			}
			suffix++
			inserts = append(inserts, v)
			working = append(working, v)
		}

		if len(working) > maxVariantsPerProduct {
			return fmt.Errorf("%w: at most %d variants per product", ErrProductInvalid, maxVariantsPerProduct)
		}

		// Product-level flags and derived fields.
		switch {
		case flipToSingle:
			shared.ProductHasVariants = false
		case len(working) > 1:
			shared.ProductHasVariants = true
		}
		for i := range working {
			v := &working[i]
			if v.ProductHasVariants != shared.ProductHasVariants {
				if !isInsert(inserts, v.Key) {
					touched[v.Key] = append(touched[v.Key], domain.FieldChange{Field: "productHasVariants", OldValue: v.ProductHasVariants, NewValue: shared.ProductHasVariants})
				}
				v.ProductHasVariants = shared.ProductHasVariants
			}
			description, imageCount := v.Description, len(v.Images)
			domain.ApplySingleVariantDefaults(shared, v)
			if !isInsert(inserts, v.Key) && (description != v.Description || imageCount != len(v.Images)) {
				if _, ok := touched[v.Key]; !ok {
					touched[v.Key] = nil
				}
			}
		}

		if err := domain.ValidateDraft(shared, working); err != nil {
			return err
		}
		if err := validateActiveWrite(shared, working, touched, inserts); err != nil {
			return err
		}

		// Writes: reads are complete from here on.
		if domain.NameKey(shared.Name) != domain.NameKey(original.Name) {
			if err := s.claimName(ctx, shared.Name, shared.Key); err != nil {
				return err
			}
			if err := s.shared.ReleaseName(ctx, domain.NameKey(original.Name)); err != nil {
				return err
			}
		}
		for _, v := range plan.removals {
			if err := s.variants.Delete(ctx, v.Key); err != nil {
				return err
			}
		}

		ids := make([]string, 0, len(working))
		for i := range working {
			v := &working[i]
			ids = append(ids, v.Key)
			if isInsert(inserts, v.Key) {
				v.UpdatedAt = now
				v.ActivityLog = []domain.ActivityLogEntry{
					domain.NewActivityLog(cmd.User, domain.ActivityItemCreated, v.Status, nil, now),
				}
				if err := s.variants.Insert(ctx, *v); err != nil {
					return err
				}
				continue
			}
			changes, ok := touched[v.Key]
			if !ok {
				continue
			}
			v.UpdatedAt = now
			v.ActivityLog = append(v.ActivityLog, domain.NewActivityLog(cmd.User, domain.ActivityItemUpdated, v.Status, changes, now))
			if err := s.variants.Save(ctx, *v); err != nil {
				return err
			}
		}

		orphanImages = unreferenced(orphanImages, shared, working)
		shared.VariantIDs = ids
		shared.VariantCount = len(ids)
		shared.UpdatedAt = now
		shared.ActivityLog = append(shared.ActivityLog, domain.NewActivityLog(cmd.User, domain.ActivityProductUpdated, shared.Status, sharedChanges, now))
		if err := s.shared.Save(ctx, shared); err != nil {
			return err
		}
		finalVariants = working
		return nil
	})
	if err != nil {
		return domain.ProductSummary{}, mapRepositoryError(err)
	}

	s.deleteOrphans(ctx, shared.Key, orphanImages)
	eventType := ProductEventUpdated
	if statusChanged {
		eventType = ProductEventStatusChanged
	}
	s.publish(ctx, ProductEvent{
		Type:       eventType,
		SharedKey:  shared.Key,
		ProductID:  shared.ProductID,
		VariantIDs: variantIDs(finalVariants),
		Status:     string(shared.Status),
		Actor:      actorOf(cmd.User),
		OccurredAt: now,
	})
	return domain.Summarize(shared, finalVariants), nil
}

// Duplicate -------------------------------------------------------------------

func (s *productService) DuplicateProduct(ctx context.Context, cmd DuplicateProductCommand) (summary domain.ProductSummary, err error) {
	ctx, span := startSpan(ctx, opProductDuplicate)
	defer func() {
		s.record(ctx, opProductDuplicate, err)
		endSpan(span, err)
	}()

	key := strings.TrimSpace(cmd.SharedKey)
	if key == "" {
		return domain.ProductSummary{}, fmt.Errorf("%w: product key is required", ErrProductInvalid)
	}
	source, sourceVariants, err := s.load(ctx, key)
	if err != nil {
		return domain.ProductSummary{}, mapRepositoryError(err)
	}
	taken, err := s.shared.NameKeys(ctx)
	if err != nil {
		return domain.ProductSummary{}, mapRepositoryError(err)
	}
	name := domain.UniqueName(source.Name, taken)

	var copied []string
	cleanup := func() {
		if len(copied) == 0 {
			return
		}
		if delErr := s.assets.DeleteImages(context.WithoutCancel(ctx), copied); delErr != nil {
			s.logger(ctx, "product.duplicate.cleanup_failed", map[string]any{"sourceKey": key, "error": delErr.Error()})
		}
	}
	duplicate := func(urls []string) ([]string, error) {
		if len(urls) == 0 {
			return nil, nil
		}
		out, err := s.assets.DuplicateImages(ctx, urls)
		if err != nil {
			return nil, fmt.Errorf("%w: duplicate assets: %v", ErrExternalService, err)
		}
		copied = append(copied, newURLs(urls, out)...)
		return out, nil
	}

	images, err := duplicate(source.Images)
	if err != nil {
		cleanup()
		return domain.ProductSummary{}, err
	}
	docs, err := duplicate(source.Docs)
	if err != nil {
		cleanup()
		return domain.ProductSummary{}, err
	}
	variantImages := make([][]string, len(sourceVariants))
	for i, v := range sourceVariants {
		if variantImages[i], err = duplicate(v.Images); err != nil {
			cleanup()
			return domain.ProductSummary{}, err
		}
	}

	now := s.clock()
	clone := source
	clone.Key = s.newID()
	clone.Name = name
	clone.Status = domain.StatusDraft
	clone.Images = images
	clone.Docs = docs
	clone.Compliance = append([]string(nil), source.Compliance...)
	clone.Tags = append([]string(nil), source.Tags...)
	clone.RelatedItems = append([]string(nil), source.RelatedItems...)
	clone.VariantIDs = nil
	clone.VariantCount = 0
	clone.CreatedBy = actorOf(cmd.User)
	clone.CreatedAt = now
	clone.UpdatedAt = now

	variants := make([]domain.Variant, 0, len(sourceVariants))
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		variants = variants[:0]
		productID, err := s.counters.NextProductID(ctx)
		if err != nil {
			return err
		}
		clone.ProductID = productID
		clone.ActivityLog = []domain.ActivityLogEntry{
			domain.NewActivityLog(cmd.User, domain.DuplicatedFrom(source.ProductID), domain.StatusDraft, nil, now),
		}
		if err := s.claimName(ctx, clone.Name, clone.Key); err != nil {
			return err
		}
		if err := s.shared.Insert(ctx, clone); err != nil {
			return err
		}

		ids := make([]string, 0, len(sourceVariants))
		for i, src := range sourceVariants {
			v := cloneVariantForDuplicate(src)
			v.Key = s.newID()
			v.SharedKey = clone.Key
			v.Images = variantImages[i]
			v.Status = domain.StatusDraft
			v.CreatedAt = now
			v.UpdatedAt = now
			if err := s.assignVariantID(&v, productID, i+1); err != nil {
				return err
			}
			v.ActivityLog = []domain.ActivityLogEntry{
				domain.NewActivityLog(cmd.User, domain.ActivityDuplicated, domain.StatusDraft, nil, now),
			}
			if err := s.variants.Insert(ctx, v); err != nil {
				return err
			}
			ids = append(ids, v.Key)
			variants = append(variants, v)
		}
		clone.VariantIDs = ids
		clone.VariantCount = len(ids)
		return s.shared.Save(ctx, clone)
	})
	if err != nil {
		cleanup()
		return domain.ProductSummary{}, mapRepositoryError(err)
	}

	s.publish(ctx, ProductEvent{
		Type:       ProductEventDuplicated,
		SharedKey:  clone.Key,
		ProductID:  clone.ProductID,
		SourceKey:  source.Key,
		VariantIDs: variantIDs(variants),
		Status:     string(clone.Status),
		Actor:      actorOf(cmd.User),
		OccurredAt: now,
	})
	return domain.Summarize(clone, variants), nil
}

func cloneVariantForDuplicate(src domain.Variant) domain.Variant {
	v := src
	v.SKU = ""
	v.Barcode = ""
	v.BarcodeSVG = ""
	v.StorageLocations = domain.StorageLocations{}
	v.StockOnHand = 0
	v.Reorder = domain.ReorderPolicy{}
	v.CycleCount = domain.CycleCountConfig{Enabled: src.CycleCount.Enabled, FrequencyDays: src.CycleCount.FrequencyDays}
	v.ABCClass = ""
	domain.SyncWarehouseIDs(&v)
	return v
}

// newURLs returns the entries of out that differ from their source, i.e. real copies.
func newURLs(src, out []string) []string {
	var copies []string
	for i, url := range out {
		if i < len(src) && src[i] == url {
			continue
		}
		copies = append(copies, url)
	}
	return copies
}

// Status ------------------------------------------------------------------------

func (s *productService) UpdateSharedStatus(ctx context.Context, cmd SharedStatusCommand) (summary domain.ProductSummary, err error) {
	ctx, span := startSpan(ctx, opProductStatus)
	defer func() {
		s.record(ctx, opProductStatus, err)
		endSpan(span, err)
	}()

	status, ok := domain.ParseItemStatus(string(cmd.Status))
	if !ok {
		return domain.ProductSummary{}, fmt.Errorf("%w: unknown status %q", ErrProductInvalid, cmd.Status)
	}
	summary, changed, err := s.cascadeStatus(ctx, strings.TrimSpace(cmd.SharedKey), status, cmd.User)
	if err != nil {
		return domain.ProductSummary{}, err
	}
	if changed {
		s.publishStatus(ctx, summary, cmd.User)
	}
	return summary, nil
}

func (s *productService) cascadeStatus(ctx context.Context, key string, status domain.ItemStatus, user domain.UserInfo) (domain.ProductSummary, bool, error) {
	if key == "" {
		return domain.ProductSummary{}, false, fmt.Errorf("%w: product key is required", ErrProductInvalid)
	}
	now := s.clock()
	var (
		shared   domain.SharedItem
		variants []domain.Variant
		changed  bool
	)
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		shared, variants, err = s.load(ctx, key)
		if err != nil {
			return err
		}
		if err := domain.ValidateTransition(entityProduct, shared.Key, shared.Status, status); err != nil {
			return err
		}
		if shared.Status == status {
			changed = false
			return nil
		}
		changed = true

		target := s.cascade.VariantStatus(status)
		next := make([]domain.Variant, len(variants))
		copy(next, variants)
		moved := make([]bool, len(next))
		for i := range next {
			if next[i].Status.IsTerminal() || next[i].Status == target {
				continue
			}
			moved[i] = true
			next[i].Status = target
		}

		previous := shared.Status
		shared.Status = status
		if status == domain.StatusActive {
			if err := domain.ValidateForActivation(shared, next); err != nil {
				return err
			}
		}

		shared.UpdatedAt = now
		shared.ActivityLog = append(shared.ActivityLog, domain.NewActivityLog(user, domain.ActivityStatusUpdated, status,
			[]domain.FieldChange{{Field: "status", OldValue: previous, NewValue: status}}, now))
		if err := s.shared.Save(ctx, shared); err != nil {
			return err
		}
		for i := range next {
			if !moved[i] {
				continue
			}
			next[i].UpdatedAt = now
			next[i].ActivityLog = append(next[i].ActivityLog, domain.NewActivityLog(user, domain.ActivityStatusUpdated, next[i].Status,
				[]domain.FieldChange{{Field: "status", OldValue: variants[i].Status, NewValue: next[i].Status}}, now))
			if err := s.variants.Save(ctx, next[i]); err != nil {
				return err
			}
		}
		variants = next
		return nil
	})
	if err != nil {
		return domain.ProductSummary{}, false, mapRepositoryError(err)
	}
	return domain.Summarize(shared, variants), changed, nil
}

func (s *productService) BulkUpdateSharedStatus(ctx context.Context, cmd BulkSharedStatusCommand) (results []domain.BulkResult, err error) {
	ctx, span := startSpan(ctx, opProductBulkStatus)
	defer func() {
		s.record(ctx, opProductBulkStatus, err)
		endSpan(span, err)
	}()

	status, ok := domain.ParseItemStatus(string(cmd.Status))
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrProductInvalid, cmd.Status)
	}
	keys := normalizeKeys(cmd.SharedKeys)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: at least one product key is required", ErrProductInvalid)
	}
	if len(keys) > maxBulkElements {
		return nil, fmt.Errorf("%w: at most %d products per request", ErrProductInvalid, maxBulkElements)
	}

	results = make([]domain.BulkResult, 0, len(keys))
	for _, key := range keys {
		summary, changed, err := s.cascadeStatus(ctx, key, status, cmd.User)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			results = append(results, domain.BulkResult{Key: key, Error: err.Error()})
			continue
		}
		if changed {
			s.publishStatus(ctx, summary, cmd.User)
		}
		results = append(results, domain.BulkResult{Key: key, Success: true})
	}
	return results, nil
}

func (s *productService) BulkUpdateVariantStatus(ctx context.Context, cmd BulkVariantStatusCommand) (results []domain.BulkResult, err error) {
	ctx, span := startSpan(ctx, opVariantBulkStatus)
	defer func() {
		s.record(ctx, opVariantBulkStatus, err)
		endSpan(span, err)
	}()

	if len(cmd.Changes) == 0 {
		return nil, fmt.Errorf("%w: at least one variant change is required", ErrProductInvalid)
	}
	if len(cmd.Changes) > maxBulkElements {
		return nil, fmt.Errorf("%w: at most %d variants per request", ErrProductInvalid, maxBulkElements)
	}

	results = make([]domain.BulkResult, 0, len(cmd.Changes))
	for _, change := range cmd.Changes {
		key := strings.TrimSpace(change.VariantKey)
		err := s.updateVariantStatus(ctx, key, change.Status, cmd.User)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			results = append(results, domain.BulkResult{Key: key, Error: err.Error()})
			continue
		}
		results = append(results, domain.BulkResult{Key: key, Success: true})
	}
	return results, nil
}

func (s *productService) updateVariantStatus(ctx context.Context, key string, requested domain.ItemStatus, user domain.UserInfo) (err error) {
	defer func() { s.record(ctx, opVariantStatus, err) }()

	if key == "" {
		return fmt.Errorf("%w: variant key is required", ErrProductInvalid)
	}
	status, ok := domain.ParseItemStatus(string(requested))
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrProductInvalid, requested)
	}
	now := s.clock()
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		v, err := s.variants.Get(ctx, key)
		if err != nil {
			return err
		}
		if err := domain.ValidateTransition(entityVariant, v.VariantID, v.Status, status); err != nil {
			return err
		}
		if v.Status == status {
			return nil
		}
		previous := v.Status
		v.Status = status
		if status == domain.StatusActive {
			shared, err := s.shared.Get(ctx, v.SharedKey)
			if err != nil {
				return err
			}
			if err := domain.ValidateForActivation(shared, []domain.Variant{v}); err != nil {
				return err
			}
		}
		v.UpdatedAt = now
		v.ActivityLog = append(v.ActivityLog, domain.NewActivityLog(user, domain.ActivityStatusUpdated, status,
			[]domain.FieldChange{{Field: "status", OldValue: previous, NewValue: status}}, now))
		return s.variants.Save(ctx, v)
	})
	return mapRepositoryError(err)
}

// Helpers -----------------------------------------------------------------------

func (s *productService) assignVariantID(v *domain.Variant, productID string, suffix int) error {
	v.VariantID = domain.VariantID(productID, suffix)
	v.Barcode = v.VariantID
	svg, err := s.barcodes.CreateBarcode(v.Barcode)
	if err != nil {
		return fmt.Errorf("%w: barcode for %s: %v", ErrExternalService, v.VariantID, err)
	}
	v.BarcodeSVG = svg
	return nil
}

// validateActiveWrite runs the activation rules over an active product and its variants.
// Under a product that is not active, only the active variants this write touched are checked.
func validateActiveWrite(shared domain.SharedItem, working []domain.Variant, touched map[string][]domain.FieldChange, inserts []domain.Variant) error {
	if shared.Status == domain.StatusActive {
		return domain.ValidateForActivation(shared, working)
	}
	for _, v := range working {
		if v.Status != domain.StatusActive {
			continue
		}
		if _, ok := touched[v.Key]; !ok && !isInsert(inserts, v.Key) {
			continue
		}
		if err := domain.ValidateForActivation(shared, []domain.Variant{v}); err != nil {
			return err
		}
	}
	return nil
}

func checkDetailsType(t domain.ItemType, v domain.Variant) error {
	if v.Details != nil && v.Details.ItemType() != t {
		return fmt.Errorf("%w: variant details are %q, product is %q", ErrProductInvalid, v.Details.ItemType(), t)
	}
	return nil
}

func (s *productService) claimName(ctx context.Context, name, sharedKey string) error {
	if err := s.shared.ClaimName(ctx, domain.NameKey(name), sharedKey); err != nil {
		if repositories.IsConflict(err) {
			return fmt.Errorf("%w: product name %q already exists", ErrProductConflict, name)
		}
		return err
	}
	return nil
}

func (s *productService) deleteOrphans(ctx context.Context, sharedKey string, urls []string) {
	urls = normalizeKeys(urls)
	if len(urls) == 0 {
		return
	}
	if err := s.assets.DeleteImages(context.WithoutCancel(ctx), urls); err != nil {
		s.logger(ctx, "product.assets.delete_failed", map[string]any{
			"sharedKey": sharedKey,
			"count":     len(urls),
			"error":     err.Error(),
		})
	}
}

func (s *productService) publishStatus(ctx context.Context, summary domain.ProductSummary, user domain.UserInfo) {
	ids := make([]string, 0, len(summary.Variants))
	for _, v := range summary.Variants {
		ids = append(ids, v.VariantID)
	}
	s.publish(ctx, ProductEvent{
		Type:       ProductEventStatusChanged,
		SharedKey:  summary.Product.Key,
		ProductID:  summary.Product.ProductID,
		VariantIDs: ids,
		Status:     string(summary.Product.Status),
		Actor:      actorOf(user),
		OccurredAt: s.clock(),
	})
}

func (s *productService) publish(ctx context.Context, event ProductEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishProductEvent(context.WithoutCancel(ctx), event); err != nil {
		s.logger(ctx, productEventLogFailure, map[string]any{
			"eventType": event.Type,
			"sharedKey": event.SharedKey,
			"error":     err.Error(),
		})
	}
}

func (s *productService) record(ctx context.Context, op string, err error) {
	if s.metrics != nil {
		s.metrics.RecordMutation(ctx, op, err)
	}
}

func actorOf(user domain.UserInfo) string {
	if email := strings.TrimSpace(user.Email); email != "" {
		return email
	}
	return strings.TrimSpace(user.UID)
}

func variantIDs(variants []domain.Variant) []string {
	ids := make([]string, 0, len(variants))
	for _, v := range variants {
		ids = append(ids, v.VariantID)
	}
	return ids
}

func isInsert(inserts []domain.Variant, key string) bool {
	for _, v := range inserts {
		if v.Key == key {
			return true
		}
	}
	return false
}

// orderVariants sorts variants by their position in ids. Variants missing from ids keep their
// relative order at the end.
func orderVariants(ids []string, variants []domain.Variant) []domain.Variant {
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	ordered := make([]domain.Variant, 0, len(variants))
	var rest []domain.Variant
	slots := make([]*domain.Variant, len(ids))
	for i := range variants {
		if p, ok := pos[variants[i].Key]; ok {
			slots[p] = &variants[i]
			continue
		}
		rest = append(rest, variants[i])
	}
	for _, v := range slots {
		if v != nil {
			ordered = append(ordered, *v)
		}
	}
	return append(ordered, rest...)
}

// unreferenced drops URLs still used by the product or one of its variants.
func unreferenced(urls []string, shared domain.SharedItem, variants []domain.Variant) []string {
	if len(urls) == 0 {
		return nil
	}
	inUse := make(map[string]struct{})
	for _, url := range shared.Images {
		inUse[url] = struct{}{}
	}
	for _, url := range shared.Docs {
		inUse[url] = struct{}{}
	}
	for _, v := range variants {
		for _, url := range v.Images {
			inUse[url] = struct{}{}
		}
	}
	var out []string
	for _, url := range urls {
		if _, ok := inUse[url]; !ok {
			out = append(out, url)
		}
	}
	return out
}

// pickFields keeps the entries of all whose keys appear in keys.
func pickFields(all, keys map[string]any) map[string]any {
	out := make(map[string]any, len(keys))
	for key := range keys {
		out[key] = all[key]
	}
	return out
}

func normalizeSharedItem(item domain.SharedItem) domain.SharedItem {
	item.Name = domain.NormalizeName(item.Name)
	item.Description = sanitizeText(item.Description)
	item.HandlingNotes = sanitizeText(item.HandlingNotes)
	item.Category = strings.TrimSpace(item.Category)
	item.SupplierKey = strings.TrimSpace(item.SupplierKey)
	item.Currency = strings.ToUpper(strings.TrimSpace(item.Currency))
	item.HazardClass = strings.TrimSpace(item.HazardClass)
	item.Compliance = normalizeKeys(item.Compliance)
	item.Tags = normalizeKeys(item.Tags)
	item.Images = normalizeKeys(item.Images)
	item.Docs = normalizeKeys(item.Docs)
	item.RelatedItems = normalizeKeys(item.RelatedItems)
	if status, ok := domain.ParseItemStatus(string(item.Status)); ok {
		item.Status = status
	}
	if t, ok := domain.ParseItemType(string(item.Type)); ok {
		item.Type = t
	}
	return item
}

func normalizeVariant(v domain.Variant) domain.Variant {
	v.Description = sanitizeText(v.Description)
	v.SKU = strings.TrimSpace(v.SKU)
	v.SupplierPartNumber = strings.TrimSpace(v.SupplierPartNumber)
	v.SupplierKey = strings.TrimSpace(v.SupplierKey)
	v.Images = normalizeKeys(v.Images)
	v.StorageLocations = v.StorageLocations.Clone()
	return v
}

func normalizeSharedPatch(p domain.SharedItemPatch) domain.SharedItemPatch {
	if p.Name != nil {
		name := domain.NormalizeName(*p.Name)
		p.Name = &name
	}
	if p.Description != nil {
		desc := sanitizeText(*p.Description)
		p.Description = &desc
	}
	if p.HandlingNotes != nil {
		notes := sanitizeText(*p.HandlingNotes)
		p.HandlingNotes = &notes
	}
	if p.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*p.Currency))
		p.Currency = &currency
	}
	if p.Status != nil {
		if status, ok := domain.ParseItemStatus(string(*p.Status)); ok {
			p.Status = &status
		}
	}
	return p
}

func normalizeVariantPatch(p domain.VariantPatch) domain.VariantPatch {
	p.VariantID = strings.TrimSpace(p.VariantID)
	if p.Description != nil {
		desc := sanitizeText(*p.Description)
		p.Description = &desc
	}
	if p.Status != nil {
		if status, ok := domain.ParseItemStatus(string(*p.Status)); ok {
			p.Status = &status
		}
	}
	return p
}
