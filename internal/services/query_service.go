package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	domain "github.com/stockline/api/internal/domain"
	"github.com/stockline/api/internal/repositories"
)

const (
	defaultQueryLimit = 25
	maxQueryLimit     = 200
	maxExportRows     = 10000

	inventorySearchField = "variantDescription"
	productSearchField   = "name"
)

// QueryServiceDeps bundles the read-side collaborators.
type QueryServiceDeps struct {
	SharedItems  repositories.SharedItemRepository
	Variants     repositories.VariantRepository
	Warehouses   WarehouseGateway
	DefaultLimit int
	MaxLimit     int
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type queryService struct {
	shared       repositories.SharedItemRepository
	variants     repositories.VariantRepository
	warehouses   WarehouseGateway
	defaultLimit int
	maxLimit     int
	logger       eventLogger
}

// NewQueryService constructs the aggregation/query layer.
func NewQueryService(deps QueryServiceDeps) (QueryService, error) {
	if deps.SharedItems == nil || deps.Variants == nil {
		return nil, errors.New("query service: shared item and variant repositories are required")
	}
	if deps.Warehouses == nil {
		return nil, errors.New("query service: warehouse gateway is required")
	}
	def := deps.DefaultLimit
	if def <= 0 {
		def = defaultQueryLimit
	}
	max := deps.MaxLimit
	if max <= 0 {
		max = maxQueryLimit
	}
	if def > max {
		def = max
	}
	return &queryService{
		shared:       deps.SharedItems,
		variants:     deps.Variants,
		warehouses:   deps.Warehouses,
		defaultLimit: def,
		maxLimit:     max,
		logger:       ensureLogger(deps.Logger),
	}, nil
}

// InventoryItems lists one row per (variant, active warehouse) pair.
func (s *queryService) InventoryItems(ctx context.Context, query InventoryQuery) (domain.Page[map[string]any], error) {
	page, limit := s.window(query.Page, query.Limit)
	rows, err := s.inventoryRows(ctx, query)
	if err != nil {
		return domain.Page[map[string]any]{}, err
	}
	return paginate(rows, page, limit, query.Fields), nil
}

// ExportInventory returns every matching inventory row flattened for tabular output.
func (s *queryService) ExportInventory(ctx context.Context, query InventoryQuery) ([]map[string]any, error) {
	rows, err := s.inventoryRows(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(rows) > maxExportRows {
		return nil, fmt.Errorf("%w: export is limited to %d rows, narrow the query", ErrProductInvalid, maxExportRows)
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		flat := Flatten(row)
		if len(query.Fields) > 0 {
			flat = Project(flat, flattenFields(query.Fields))
		}
		out = append(out, flat)
	}
	return out, nil
}

func (s *queryService) inventoryRows(ctx context.Context, query InventoryQuery) ([]map[string]any, error) {
	warehouses, err := s.warehouses.ActiveWarehouses(ctx, query.Token)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger(ctx, "query.inventory.warehouses_unavailable", map[string]any{"error": err.Error()})
		return nil, nil
	}
	if len(warehouses) == 0 {
		return nil, nil
	}
	names := make(map[string]string, len(warehouses))
	ids := make([]string, 0, len(warehouses))
	for _, w := range warehouses {
		names[w.ID] = w.Name
		ids = append(ids, w.ID)
	}

	variants, err := s.variants.List(ctx, repositories.VariantFilter{WarehouseIDs: ids, Statuses: query.Statuses})
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	products, err := s.productsFor(ctx, variants)
	if err != nil {
		return nil, err
	}

	matcher, err := searchMatcher(query.Search)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	for _, v := range variants {
		base := VariantDocument(v, false)
		delete(base, "storageLocations")
		delete(base, "activityLog")
		if product, ok := products[v.SharedKey]; ok {
			base["product"] = map[string]any{
				"key":       product.Key,
				"productId": product.ProductID,
				"name":      product.Name,
				"category":  product.Category,
				"type":      string(product.Type),
			}
		}
		if matcher != nil && !matcher.MatchString(fmt.Sprint(base[inventorySearchField])) {
			continue
		}
		for _, warehouseID := range v.WarehouseIDs {
			name, active := names[warehouseID]
			if !active {
				continue
			}
			row := make(map[string]any, len(base)+4)
			for k, val := range base {
				row[k] = val
			}
			locations := v.StorageLocations[warehouseID]
			var quantity float64
			for _, loc := range locations {
				quantity += loc.ItemQuantity
			}
			row["warehouseId"] = warehouseID
			row["warehouseName"] = name
			row["locations"] = locationDocuments(locations)
			row["quantity"] = quantity
			rows = append(rows, row)
		}
	}
	sortRows(rows, query.SortField, query.SortOrder)
	return rows, nil
}

func (s *queryService) productsFor(ctx context.Context, variants []domain.Variant) (map[string]domain.SharedItem, error) {
	keys := make([]string, 0, len(variants))
	for _, v := range variants {
		keys = append(keys, v.SharedKey)
	}
	keys = normalizeKeys(keys)
	if len(keys) == 0 {
		return map[string]domain.SharedItem{}, nil
	}
	items, err := s.shared.GetMany(ctx, keys)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	out := make(map[string]domain.SharedItem, len(items))
	for _, item := range items {
		out[item.Key] = item
	}
	return out, nil
}

// Products lists products with embedded variant projections. Without a search term the
// store pages and counts; with one, matching happens here on the product name.
func (s *queryService) Products(ctx context.Context, query ProductQuery) (domain.Page[map[string]any], error) {
	page, limit := s.window(query.Page, query.Limit)
	filter := repositories.SharedItemFilter{
		Statuses: query.Statuses,
		Types:    query.Types,
		Category: strings.TrimSpace(query.Category),
		Supplier: strings.TrimSpace(query.Supplier),
	}
	order := query.SortOrder
	if order == "" {
		order = domain.SortDesc
	}

	var (
		items []domain.SharedItem
		total int
		err   error
	)
	if strings.TrimSpace(query.Search) == "" {
		items, total, err = s.shared.Page(ctx, repositories.SharedItemPageQuery{
			Filter:    filter,
			SortField: SortKey(query.SortField),
			SortOrder: order,
			Offset:    (page - 1) * limit,
			Limit:     limit,
		})
		if err != nil {
			return domain.Page[map[string]any]{}, mapRepositoryError(err)
		}
	} else {
		matcher, err := searchMatcher(query.Search)
		if err != nil {
			return domain.Page[map[string]any]{}, err
		}
		all, err := s.shared.List(ctx, filter)
		if err != nil {
			return domain.Page[map[string]any]{}, mapRepositoryError(err)
		}
		matched := all[:0]
		for _, item := range all {
			if matcher.MatchString(item.Name) {
				matched = append(matched, item)
			}
		}
		docs := make([]map[string]any, 0, len(matched))
		byKey := make(map[string]domain.SharedItem, len(matched))
		for _, item := range matched {
			docs = append(docs, SharedItemDocument(item))
			byKey[item.Key] = item
		}
		sortRows(docs, query.SortField, order)
		total = len(docs)
		start, end := bounds(total, page, limit)
		for _, doc := range docs[start:end] {
			items = append(items, byKey[doc["key"].(string)])
		}
	}

	variantsByProduct, err := s.variantsFor(ctx, items)
	if err != nil {
		return domain.Page[map[string]any]{}, err
	}
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		doc := SharedItemDocument(item)
		delete(doc, "activityLog")
		projections := make([]map[string]any, 0, len(variantsByProduct[item.Key]))
		for _, v := range variantsByProduct[item.Key] {
			projections = append(projections, variantProjection(v))
		}
		doc["variants"] = projections
		rows = append(rows, Project(doc, query.Fields))
	}
	return domain.Page[map[string]any]{Items: rows, Page: page, Limit: limit, Total: total}, nil
}

func (s *queryService) variantsFor(ctx context.Context, items []domain.SharedItem) (map[string][]domain.Variant, error) {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.Key)
	}
	out := make(map[string][]domain.Variant, len(items))
	if len(keys) == 0 {
		return out, nil
	}
	variants, err := s.variants.List(ctx, repositories.VariantFilter{SharedKeys: keys})
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	for _, v := range variants {
		out[v.SharedKey] = append(out[v.SharedKey], v)
	}
	for _, item := range items {
		out[item.Key] = orderVariants(item.VariantIDs, out[item.Key])
	}
	return out, nil
}

func variantProjection(v domain.Variant) map[string]any {
	return map[string]any{
		"key":                v.Key,
		"variantId":          v.VariantID,
		"variantDescription": v.Description,
		"sku":                v.SKU,
		"barcode":            v.Barcode,
		"status":             string(v.Status),
		"stockOnHand":        v.StockOnHand,
		"warehouseIds":       stringsOrEmpty(v.WarehouseIDs),
		"unitType":           labelValue(v.UnitType),
	}
}

func (s *queryService) window(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	return page, limit
}

// searchMatcher builds a case-insensitive substring matcher. User input is matched literally.
func searchMatcher(search string) (*regexp.Regexp, error) {
	search = strings.TrimSpace(search)
	if search == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(search))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid search: %v", ErrProductInvalid, err)
	}
	return re, nil
}

func paginate(rows []map[string]any, page, limit int, fields []string) domain.Page[map[string]any] {
	total := len(rows)
	start, end := bounds(total, page, limit)
	items := make([]map[string]any, 0, end-start)
	for _, row := range rows[start:end] {
		items = append(items, Project(row, fields))
	}
	return domain.Page[map[string]any]{Items: items, Page: page, Limit: limit, Total: total}
}

func bounds(total, page, limit int) (int, int) {
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}

// sortRows orders documents by a dotted field. Label/value pairs sort by label.
func sortRows(rows []map[string]any, field string, order domain.SortOrder) {
	field = SortKey(field)
	if field == "" {
		return
	}
	desc := order == domain.SortDesc
	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := lookupPath(rows[i], field)
		b, _ := lookupPath(rows[j], field)
		if desc {
			return lessValue(b, a)
		}
		return lessValue(a, b)
	})
}

func lessValue(a, b any) bool {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	case int:
		if bv, ok := b.(int); ok {
			return av < bv
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return !av && bv
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.ToLower(av) < strings.ToLower(bv)
		}
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

// flattenFields redirects label/value projections so "unitType" exports both columns.
func flattenFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if _, ok := labelValueFields[field]; ok {
			out = append(out, field+".label", field+".value")
			continue
		}
		out = append(out, field)
	}
	return out
}
