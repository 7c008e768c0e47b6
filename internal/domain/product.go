package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnitOfMeasure is a label/value pair such as {"Each", "ea"}.
type UnitOfMeasure struct {
	Label string
	Value string
}

// Dimensions captures the physical footprint of a single unit.
type Dimensions struct {
	Length        float64
	Width         float64
	Height        float64
	DimensionUnit string
	Weight        float64
	WeightUnit    string
}

// ReorderPolicy holds replenishment parameters. Nil fields are unset.
type ReorderPolicy struct {
	ReorderPoint    *float64
	ReorderQuantity *float64
	SafetyStock     *float64
	LeadTimeDays    *int
}

// CycleCountConfig schedules periodic counting for a variant.
type CycleCountConfig struct {
	Enabled       bool
	FrequencyDays int
	LastCountedAt *time.Time
}

// StorageLocation is one bin holding a variant inside a warehouse.
type StorageLocation struct {
	IsMain       bool
	CustomName   string
	LocationID   string
	LocationName string
	MaxQtyAtLoc  float64
	ItemQuantity float64
}

// StorageLocations groups bins by warehouse id.
type StorageLocations map[string][]StorageLocation

// WarehouseIDs returns the sorted key set.
func (s StorageLocations) WarehouseIDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TotalQuantity sums ItemQuantity across every bin.
func (s StorageLocations) TotalQuantity() float64 {
	var total float64
	for _, locations := range s {
		for _, loc := range locations {
			total += loc.ItemQuantity
		}
	}
	return total
}

// Clone deep-copies the map.
func (s StorageLocations) Clone() StorageLocations {
	if s == nil {
		return nil
	}
	out := make(StorageLocations, len(s))
	for id, locations := range s {
		out[id] = append([]StorageLocation(nil), locations...)
	}
	return out
}

// SharedItem holds the attributes common to every variant of a product.
type SharedItem struct {
	Key                string
	ProductID          string
	Type               ItemType
	Name               string
	Description        string
	Category           string
	SupplierKey        string
	Currency           string
	HandlingNotes      string
	HazardClass        string
	Compliance         []string
	Tags               []string
	Images             []string
	Docs               []string
	RelatedItems       []string
	ProductHasVariants bool
	Status             ItemStatus
	// VariantIDs holds the store keys of the product's variants in creation order.
	VariantIDs         []string
	VariantCount       int
	ActivityLog        []ActivityLogEntry
	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Variant is one trackable unit belonging to a SharedItem.
type Variant struct {
	Key                string
	VariantID          string
	SharedKey          string
	Type               ItemType
	Description        string
	SKU                string
	SupplierPartNumber string
	SupplierKey        string
	Barcode            string
	BarcodeSVG         string
	UnitType           UnitOfMeasure
	StockUnit          UnitOfMeasure
	PurchaseUnit       UnitOfMeasure
	SalesUnit          UnitOfMeasure
	Dimensions         Dimensions
	UnitCost           decimal.Decimal
	SalesPrice         decimal.Decimal
	StockOnHand        float64
	Reorder            ReorderPolicy
	CycleCount         CycleCountConfig
	StorageLocations   StorageLocations
	WarehouseIDs       []string
	Images             []string
	ABCClass           string
	Details            TypeDetails
	ProductHasVariants bool
	Status             ItemStatus
	ActivityLog        []ActivityLogEntry
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SyncWarehouseIDs rewrites WarehouseIDs from the StorageLocations key set.
// Every write path that touches storage locations calls it before persisting.
func SyncWarehouseIDs(v *Variant) {
	if v == nil {
		return
	}
	v.WarehouseIDs = v.StorageLocations.WarehouseIDs()
}

// ApplySingleVariantDefaults fills a lone variant's description and images from its product.
func ApplySingleVariantDefaults(shared SharedItem, v *Variant) {
	if v == nil || shared.ProductHasVariants {
		return
	}
	if strings.TrimSpace(v.Description) == "" {
		v.Description = shared.Name
	}
	if len(v.Images) == 0 && len(shared.Images) > 0 {
		v.Images = append([]string(nil), shared.Images...)
	}
}

// FormatProductID renders the counter sequence into a productId.
func FormatProductID(prefix string, padLength int, sequence int64) string {
	if padLength <= 0 {
		return fmt.Sprintf("%s%d", prefix, sequence)
	}
	return fmt.Sprintf("%s%0*d", prefix, padLength, sequence)
}

// VariantID joins productID with a positive suffix.
func VariantID(productID string, suffix int) string {
	return productID + strconv.Itoa(suffix)
}

// VariantSuffix extracts the numeric suffix of variantID under productID.
func VariantSuffix(productID, variantID string) (int, bool) {
	if productID == "" || !strings.HasPrefix(variantID, productID) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(variantID, productID))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// NextVariantSuffix returns max(existing suffix)+1 for the product, or 1 when none exist.
func NextVariantSuffix(productID string, variants []Variant) int {
	maxSuffix := 0
	for _, v := range variants {
		if n, ok := VariantSuffix(productID, v.VariantID); ok && n > maxSuffix {
			maxSuffix = n
		}
	}
	return maxSuffix + 1
}

// Fields flattens the product into the shape used for change detection.
func (s SharedItem) Fields() map[string]any {
	return map[string]any{
		"name":               s.Name,
		"description":        s.Description,
		"category":           s.Category,
		"supplier":           s.SupplierKey,
		"currency":           s.Currency,
		"handlingNotes":      s.HandlingNotes,
		"hazardClass":        s.HazardClass,
		"compliance":         s.Compliance,
		"tags":               s.Tags,
		"images":             s.Images,
		"docs":               s.Docs,
		"relatedItems":       s.RelatedItems,
		"productHasVariants": s.ProductHasVariants,
		"status":             s.Status,
	}
}

// Fields flattens the variant into the shape used for change detection.
func (v Variant) Fields() map[string]any {
	return map[string]any{
		"variantDescription": v.Description,
		"sku":                v.SKU,
		"supplierPartNumber": v.SupplierPartNumber,
		"supplier":           v.SupplierKey,
		"unitType":           v.UnitType,
		"stockUnit":          v.StockUnit,
		"purchaseUnit":       v.PurchaseUnit,
		"salesUnit":          v.SalesUnit,
		"dimensions":         v.Dimensions,
		"unitCost":           v.UnitCost.String(),
		"salesPrice":         v.SalesPrice.String(),
		"reorder":            v.Reorder,
		"cycleCount":         v.CycleCount,
		"storageLocations":   v.StorageLocations,
		"images":             v.Images,
		"details":            v.Details,
		"productHasVariants": v.ProductHasVariants,
		"status":             v.Status,
	}
}

// SharedItemPatch carries the top-level fields of an update payload.
// Nil pointers and nil slices are left untouched; an empty slice clears the field.
type SharedItemPatch struct {
	Name               *string
	Description        *string
	Category           *string
	SupplierKey        *string
	Currency           *string
	HandlingNotes      *string
	HazardClass        *string
	Compliance         []string
	Tags               []string
	Images             []string
	Docs               []string
	RelatedItems       []string
	ProductHasVariants *bool
	Status             *ItemStatus
}

// Apply shallow-merges the patch onto s.
func (p SharedItemPatch) Apply(s *SharedItem) {
	setString(&s.Name, p.Name)
	setString(&s.Description, p.Description)
	setString(&s.Category, p.Category)
	setString(&s.SupplierKey, p.SupplierKey)
	setString(&s.Currency, p.Currency)
	setString(&s.HandlingNotes, p.HandlingNotes)
	setString(&s.HazardClass, p.HazardClass)
	setSlice(&s.Compliance, p.Compliance)
	setSlice(&s.Tags, p.Tags)
	setSlice(&s.Images, p.Images)
	setSlice(&s.Docs, p.Docs)
	setSlice(&s.RelatedItems, p.RelatedItems)
	if p.ProductHasVariants != nil {
		s.ProductHasVariants = *p.ProductHasVariants
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
}

// Fields returns only the keys set on the patch.
func (p SharedItemPatch) Fields() map[string]any {
	var scratch SharedItem
	p.Apply(&scratch)
	all := scratch.Fields()
	out := make(map[string]any)
	keep := func(key string, set bool) {
		if set {
			out[key] = all[key]
		}
	}
	keep("name", p.Name != nil)
	keep("description", p.Description != nil)
	keep("category", p.Category != nil)
	keep("supplier", p.SupplierKey != nil)
	keep("currency", p.Currency != nil)
	keep("handlingNotes", p.HandlingNotes != nil)
	keep("hazardClass", p.HazardClass != nil)
	keep("compliance", p.Compliance != nil)
	keep("tags", p.Tags != nil)
	keep("images", p.Images != nil)
	keep("docs", p.Docs != nil)
	keep("relatedItems", p.RelatedItems != nil)
	keep("productHasVariants", p.ProductHasVariants != nil)
	keep("status", p.Status != nil)
	return out
}

// VariantPatch is one entry of an update payload's variant list.
// An empty VariantID marks a new-variant candidate. Remove deletes the referenced variant
// and takes precedence over any field in the same entry.
type VariantPatch struct {
	VariantID          string
	Remove             bool
	Description        *string
	SKU                *string
	SupplierPartNumber *string
	SupplierKey        *string
	UnitType           *UnitOfMeasure
	StockUnit          *UnitOfMeasure
	PurchaseUnit       *UnitOfMeasure
	SalesUnit          *UnitOfMeasure
	Dimensions         *Dimensions
	UnitCost           *decimal.Decimal
	SalesPrice         *decimal.Decimal
	Reorder            *ReorderPolicy
	CycleCount         *CycleCountConfig
	StorageLocations   StorageLocations
	Images             []string
	Details            TypeDetails
	Status             *ItemStatus
}

// IsNew reports whether the entry describes a variant that does not exist yet.
func (p VariantPatch) IsNew() bool {
	return strings.TrimSpace(p.VariantID) == ""
}

// Apply shallow-merges the patch onto v.
func (p VariantPatch) Apply(v *Variant) {
	setString(&v.Description, p.Description)
	setString(&v.SKU, p.SKU)
	setString(&v.SupplierPartNumber, p.SupplierPartNumber)
	setString(&v.SupplierKey, p.SupplierKey)
	if p.UnitType != nil {
		v.UnitType = *p.UnitType
	}
	if p.StockUnit != nil {
		v.StockUnit = *p.StockUnit
	}
	if p.PurchaseUnit != nil {
		v.PurchaseUnit = *p.PurchaseUnit
	}
	if p.SalesUnit != nil {
		v.SalesUnit = *p.SalesUnit
	}
	if p.Dimensions != nil {
		v.Dimensions = *p.Dimensions
	}
	if p.UnitCost != nil {
		v.UnitCost = *p.UnitCost
	}
	if p.SalesPrice != nil {
		v.SalesPrice = *p.SalesPrice
	}
	if p.Reorder != nil {
		v.Reorder = *p.Reorder
	}
	if p.CycleCount != nil {
		v.CycleCount = *p.CycleCount
	}
	if p.StorageLocations != nil {
		v.StorageLocations = p.StorageLocations.Clone()
	}
	setSlice(&v.Images, p.Images)
	if p.Details != nil {
		v.Details = p.Details
	}
	if p.Status != nil {
		v.Status = *p.Status
	}
}

// Fields returns only the keys set on the patch.
func (p VariantPatch) Fields() map[string]any {
	var scratch Variant
	p.Apply(&scratch)
	all := scratch.Fields()
	out := make(map[string]any)
	keep := func(key string, set bool) {
		if set {
			out[key] = all[key]
		}
	}
	keep("variantDescription", p.Description != nil)
	keep("sku", p.SKU != nil)
	keep("supplierPartNumber", p.SupplierPartNumber != nil)
	keep("supplier", p.SupplierKey != nil)
	keep("unitType", p.UnitType != nil)
	keep("stockUnit", p.StockUnit != nil)
	keep("purchaseUnit", p.PurchaseUnit != nil)
	keep("salesUnit", p.SalesUnit != nil)
	keep("dimensions", p.Dimensions != nil)
	keep("unitCost", p.UnitCost != nil)
	keep("salesPrice", p.SalesPrice != nil)
	keep("reorder", p.Reorder != nil)
	keep("cycleCount", p.CycleCount != nil)
	keep("storageLocations", p.StorageLocations != nil)
	keep("images", p.Images != nil)
	keep("details", p.Details != nil)
	keep("status", p.Status != nil)
	return out
}

// RemovedImages lists entries of before that are absent from after.
func RemovedImages(before, after []string) []string {
	keep := make(map[string]struct{}, len(after))
	for _, url := range after {
		keep[url] = struct{}{}
	}
	var removed []string
	for _, url := range before {
		if _, ok := keep[url]; !ok {
			removed = append(removed, url)
		}
	}
	return removed
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setSlice(dst *[]string, src []string) {
	if src != nil {
		*dst = append([]string{}, src...)
	}
}
