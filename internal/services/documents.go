package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/stockline/api/internal/domain"
)

// labelValueFields are the {label,value} pairs; sorting on them sorts by label.
var labelValueFields = map[string]struct{}{
	"unitType":     {},
	"stockUnit":    {},
	"purchaseUnit": {},
	"salesUnit":    {},
}

// SortKey redirects a sort on a label/value pair to its label.
func SortKey(field string) string {
	field = strings.TrimSpace(field)
	if _, ok := labelValueFields[field]; ok {
		return field + ".label"
	}
	return field
}

// SharedItemDocument renders a product as a JSON-ready map.
func SharedItemDocument(s domain.SharedItem) map[string]any {
	return map[string]any{
		"key":                s.Key,
		"productId":          s.ProductID,
		"type":               string(s.Type),
		"name":               s.Name,
		"description":        s.Description,
		"category":           s.Category,
		"supplier":           s.SupplierKey,
		"currency":           s.Currency,
		"handlingNotes":      s.HandlingNotes,
		"hazardClass":        s.HazardClass,
		"compliance":         stringsOrEmpty(s.Compliance),
		"tags":               stringsOrEmpty(s.Tags),
		"images":             stringsOrEmpty(s.Images),
		"docs":               stringsOrEmpty(s.Docs),
		"relatedItems":       stringsOrEmpty(s.RelatedItems),
		"productHasVariants": s.ProductHasVariants,
		"status":             string(s.Status),
		"variantIds":         stringsOrEmpty(s.VariantIDs),
		"variantCount":       s.VariantCount,
		"activityLog":        ActivityDocuments(s.ActivityLog),
		"createdBy":          s.CreatedBy,
		"createdAt":          timeString(s.CreatedAt),
		"updatedAt":          timeString(s.UpdatedAt),
	}
}

// VariantDocument renders a variant as a JSON-ready map. The barcode SVG is only included when withSVG is set.
func VariantDocument(v domain.Variant, withSVG bool) map[string]any {
	doc := map[string]any{
		"key":                v.Key,
		"variantId":          v.VariantID,
		"sharedAttributes":   v.SharedKey,
		"type":               string(v.Type),
		"variantDescription": v.Description,
		"sku":                v.SKU,
		"supplierPartNumber": v.SupplierPartNumber,
		"supplier":           v.SupplierKey,
		"barcode":            v.Barcode,
		"unitType":           labelValue(v.UnitType),
		"stockUnit":          labelValue(v.StockUnit),
		"purchaseUnit":       labelValue(v.PurchaseUnit),
		"salesUnit":          labelValue(v.SalesUnit),
		"dimensions":         dimensionsDocument(v.Dimensions),
		"unitCost":           v.UnitCost.StringFixed(2),
		"salesPrice":         v.SalesPrice.StringFixed(2),
		"stockOnHand":        v.StockOnHand,
		"reorder":            reorderDocument(v.Reorder),
		"cycleCount":         cycleCountDocument(v.CycleCount),
		"storageLocations":   storageDocument(v.StorageLocations),
		"warehouseIds":       stringsOrEmpty(v.WarehouseIDs),
		"images":             stringsOrEmpty(v.Images),
		"abcClass":           v.ABCClass,
		"details":            DetailsDocument(v.Details),
		"productHasVariants": v.ProductHasVariants,
		"status":             string(v.Status),
		"activityLog":        ActivityDocuments(v.ActivityLog),
		"createdAt":          timeString(v.CreatedAt),
		"updatedAt":          timeString(v.UpdatedAt),
	}
	if withSVG {
		doc["barcodeSvg"] = v.BarcodeSVG
	}
	return doc
}

// SummaryDocument renders the create/update/duplicate response shape.
func SummaryDocument(summary domain.ProductSummary) map[string]any {
	variants := make([]map[string]any, 0, len(summary.Variants))
	for _, v := range summary.Variants {
		entry := map[string]any{
			"key":                v.Key,
			"variantId":          v.VariantID,
			"variantDescription": v.Description,
			"barcode":            v.Barcode,
			"status":             string(v.Status),
			"createdAt":          timeString(v.CreatedAt),
			"updatedAt":          timeString(v.UpdatedAt),
			"latestActivity":     nil,
		}
		if v.LatestActivity != nil {
			entry["latestActivity"] = ActivityDocument(*v.LatestActivity)
		}
		variants = append(variants, entry)
	}
	product := SharedItemDocument(summary.Product)
	product["variants"] = variants
	return product
}

// ActivityDocument renders one activity entry.
func ActivityDocument(entry domain.ActivityLogEntry) map[string]any {
	changes := make([]map[string]any, 0, len(entry.Changes))
	for _, c := range entry.Changes {
		changes = append(changes, map[string]any{
			"field":    c.Field,
			"oldValue": jsonValue(c.OldValue),
			"newValue": jsonValue(c.NewValue),
		})
	}
	return map[string]any{
		"key":         entry.Key,
		"email":       entry.Email,
		"role":        entry.Role,
		"date":        entry.Date,
		"description": entry.Description,
		"status":      string(entry.Status),
		"changes":     changes,
	}
}

// ActivityDocuments renders a whole log.
func ActivityDocuments(entries []domain.ActivityLogEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		out = append(out, ActivityDocument(entry))
	}
	return out
}

// DetailsDocument renders the type-specific payload.
func DetailsDocument(details domain.TypeDetails) map[string]any {
	switch d := details.(type) {
	case domain.ProductDetails:
		return map[string]any{"brand": d.Brand, "model": d.Model}
	case domain.PackagingDetails:
		return map[string]any{"material": d.Material, "capacityVolume": d.CapacityVolume, "reusable": d.Reusable}
	case domain.AssemblyDetails:
		return map[string]any{"components": bomDocument(d.Components), "assemblyTimeMinutes": d.AssemblyTimeMinutes}
	case domain.KitDetails:
		return map[string]any{"components": bomDocument(d.Components)}
	case domain.MRODetails:
		return map[string]any{"equipmentRef": d.EquipmentRef, "criticality": d.Criticality}
	case domain.RawMaterialDetails:
		return map[string]any{"grade": d.Grade, "shelfLifeDays": d.ShelfLifeDays, "lotTracked": d.LotTracked}
	case domain.NonInventoryDetails:
		return map[string]any{"serviceCategory": d.ServiceCategory}
	case domain.PhantomDetails:
		return map[string]any{"components": bomDocument(d.Components)}
	default:
		return map[string]any{}
	}
}

// Flatten turns a nested document into dotted columns for tabular export.
// String slices are joined with ", "; other slices are rendered element by element.
func Flatten(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	flattenInto(out, "", doc)
	return out
}

func flattenInto(out map[string]any, prefix string, doc map[string]any) {
	for key, value := range doc {
		column := key
		if prefix != "" {
			column = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]any:
			flattenInto(out, column, v)
		case []string:
			out[column] = strings.Join(v, ", ")
		case []map[string]any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, compactDocument(item))
			}
			out[column] = strings.Join(parts, ", ")
		default:
			out[column] = value
		}
	}
}

// compactDocument renders a nested row as "k=v k=v" with sorted keys.
func compactDocument(doc map[string]any) string {
	flat := Flatten(doc)
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, flat[key]))
	}
	return strings.Join(parts, " ")
}

// Project keeps the requested dotted paths of doc. An empty field list keeps everything.
func Project(doc map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		return doc
	}
	out := make(map[string]any, len(fields))
	for _, field := range fields {
		value, ok := lookupPath(doc, field)
		if !ok {
			continue
		}
		out[field] = value
	}
	return out
}

func lookupPath(doc map[string]any, path string) (any, bool) {
	if value, ok := doc[path]; ok {
		return value, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	nested, ok := doc[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookupPath(nested, rest)
}

func storageDocument(locations domain.StorageLocations) map[string]any {
	out := make(map[string]any, len(locations))
	for _, warehouseID := range locations.WarehouseIDs() {
		out[warehouseID] = locationDocuments(locations[warehouseID])
	}
	return out
}

func locationDocuments(locations []domain.StorageLocation) []map[string]any {
	out := make([]map[string]any, 0, len(locations))
	for _, loc := range locations {
		out = append(out, map[string]any{
			"isMain":       loc.IsMain,
			"customName":   loc.CustomName,
			"locationId":   loc.LocationID,
			"locationName": loc.LocationName,
			"maxQtyAtLoc":  loc.MaxQtyAtLoc,
			"itemQuantity": loc.ItemQuantity,
		})
	}
	return out
}

func bomDocument(lines []domain.BOMLine) []map[string]any {
	out := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		out = append(out, map[string]any{"variantRef": line.VariantKey, "quantity": line.Quantity})
	}
	return out
}

func dimensionsDocument(d domain.Dimensions) map[string]any {
	return map[string]any{
		"length":        d.Length,
		"width":         d.Width,
		"height":        d.Height,
		"dimensionUnit": d.DimensionUnit,
		"weight":        d.Weight,
		"weightUnit":    d.WeightUnit,
	}
}

func reorderDocument(r domain.ReorderPolicy) map[string]any {
	return map[string]any{
		"reorderPoint":    derefOrNil(r.ReorderPoint),
		"reorderQuantity": derefOrNil(r.ReorderQuantity),
		"safetyStock":     derefOrNil(r.SafetyStock),
		"leadTimeDays":    derefOrNil(r.LeadTimeDays),
	}
}

func derefOrNil[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func cycleCountDocument(c domain.CycleCountConfig) map[string]any {
	return map[string]any{
		"enabled":       c.Enabled,
		"frequencyDays": c.FrequencyDays,
		"lastCountedAt": timePtrString(c.LastCountedAt),
	}
}

func labelValue(u domain.UnitOfMeasure) map[string]any {
	return map[string]any{"label": u.Label, "value": u.Value}
}

// jsonValue converts domain values captured in change records into plain JSON values.
func jsonValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case domain.ItemStatus:
		return string(v)
	case domain.UnitOfMeasure:
		return labelValue(v)
	case domain.StorageLocations:
		return storageDocument(v)
	case domain.TypeDetails:
		return DetailsDocument(v)
	case domain.Dimensions:
		return dimensionsDocument(v)
	case domain.ReorderPolicy:
		return reorderDocument(v)
	case domain.CycleCountConfig:
		return cycleCountDocument(v)
	case fmt.Stringer:
		return v.String()
	default:
		return v
	}
}

func stringsOrEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func timePtrString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeString(*t)
}
