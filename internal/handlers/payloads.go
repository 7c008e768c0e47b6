package handlers

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/stockline/api/internal/domain"
)

type unitPayload struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

func (u *unitPayload) toDomain() *domain.UnitOfMeasure {
	if u == nil {
		return nil
	}
	return &domain.UnitOfMeasure{Label: u.Label, Value: u.Value}
}

type dimensionsPayload struct {
	Length        float64 `json:"length"`
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`
	DimensionUnit string  `json:"dimensionUnit"`
	Weight        float64 `json:"weight"`
	WeightUnit    string  `json:"weightUnit"`
}

type reorderPayload struct {
	ReorderPoint    *float64 `json:"reorderPoint"`
	ReorderQuantity *float64 `json:"reorderQuantity"`
	SafetyStock     *float64 `json:"safetyStock"`
	LeadTimeDays    *int     `json:"leadTimeDays"`
}

type cycleCountPayload struct {
	Enabled       bool       `json:"enabled"`
	FrequencyDays int        `json:"frequencyDays"`
	LastCountedAt *time.Time `json:"lastCountedAt"`
}

type locationPayload struct {
	IsMain       bool    `json:"isMain"`
	CustomName   string  `json:"customName"`
	LocationID   string  `json:"locationId"`
	LocationName string  `json:"locationName"`
	MaxQtyAtLoc  float64 `json:"maxQtyAtLoc"`
	ItemQuantity float64 `json:"itemQuantity"`
}

type bomPayload struct {
	VariantRef string  `json:"variantRef"`
	Quantity   float64 `json:"quantity"`
}

// detailsPayload is the union of every type-specific field; the item type picks which apply.
type detailsPayload struct {
	Brand               string       `json:"brand"`
	Model               string       `json:"model"`
	Material            string       `json:"material"`
	CapacityVolume      float64      `json:"capacityVolume"`
	Reusable            bool         `json:"reusable"`
	Components          []bomPayload `json:"components"`
	AssemblyTimeMinutes int          `json:"assemblyTimeMinutes"`
	EquipmentRef        string       `json:"equipmentRef"`
	Criticality         string       `json:"criticality"`
	Grade               string       `json:"grade"`
	ShelfLifeDays       int          `json:"shelfLifeDays"`
	LotTracked          bool         `json:"lotTracked"`
	ServiceCategory     string       `json:"serviceCategory"`
}

func (d *detailsPayload) toDomain(itemType domain.ItemType) domain.TypeDetails {
	if d == nil {
		return nil
	}
	components := make([]domain.BOMLine, 0, len(d.Components))
	for _, c := range d.Components {
		components = append(components, domain.BOMLine{VariantKey: strings.TrimSpace(c.VariantRef), Quantity: c.Quantity})
	}
	switch itemType {
	case domain.ItemTypePackaging:
		return domain.PackagingDetails{Material: d.Material, CapacityVolume: d.CapacityVolume, Reusable: d.Reusable}
	case domain.ItemTypeAssembly:
		return domain.AssemblyDetails{Components: components, AssemblyTimeMinutes: d.AssemblyTimeMinutes}
	case domain.ItemTypeKit:
		return domain.KitDetails{Components: components}
	case domain.ItemTypeMRO:
		return domain.MRODetails{EquipmentRef: d.EquipmentRef, Criticality: d.Criticality}
	case domain.ItemTypeRawMaterial:
		return domain.RawMaterialDetails{Grade: d.Grade, ShelfLifeDays: d.ShelfLifeDays, LotTracked: d.LotTracked}
	case domain.ItemTypeNonInventory:
		return domain.NonInventoryDetails{ServiceCategory: d.ServiceCategory}
	case domain.ItemTypePhantom:
		return domain.PhantomDetails{Components: components}
	default:
		return domain.ProductDetails{Brand: d.Brand, Model: d.Model}
	}
}

func storageFromPayload(in map[string][]locationPayload) domain.StorageLocations {
	if in == nil {
		return nil
	}
	out := make(domain.StorageLocations, len(in))
	for warehouseID, bins := range in {
		warehouseID = strings.TrimSpace(warehouseID)
		if warehouseID == "" {
			continue
		}
		locations := make([]domain.StorageLocation, 0, len(bins))
		for _, b := range bins {
			locations = append(locations, domain.StorageLocation{
				IsMain:       b.IsMain,
				CustomName:   b.CustomName,
				LocationID:   strings.TrimSpace(b.LocationID),
				LocationName: b.LocationName,
				MaxQtyAtLoc:  b.MaxQtyAtLoc,
				ItemQuantity: b.ItemQuantity,
			})
		}
		out[warehouseID] = locations
	}
	return out
}

// variantPayload is one element of a product's variants array. On update an empty
// variantId adds a variant and remove deletes the referenced one.
type variantPayload struct {
	VariantID          string                       `json:"variantId"`
	Remove             bool                         `json:"remove"`
	Description        *string                      `json:"variantDescription"`
	SKU                *string                      `json:"sku"`
	SupplierPartNumber *string                      `json:"supplierPartNumber"`
	Supplier           *string                      `json:"supplier"`
	UnitType           *unitPayload                 `json:"unitType"`
	StockUnit          *unitPayload                 `json:"stockUnit"`
	PurchaseUnit       *unitPayload                 `json:"purchaseUnit"`
	SalesUnit          *unitPayload                 `json:"salesUnit"`
	Dimensions         *dimensionsPayload           `json:"dimensions"`
	UnitCost           *decimal.Decimal             `json:"unitCost"`
	SalesPrice         *decimal.Decimal             `json:"salesPrice"`
	Reorder            *reorderPayload              `json:"reorder"`
	CycleCount         *cycleCountPayload           `json:"cycleCount"`
	StorageLocations   map[string][]locationPayload `json:"storageLocations"`
	Images             []string                     `json:"images"`
	Details            *detailsPayload              `json:"details"`
	Status             *string                      `json:"status"`
}

func (p variantPayload) toPatch(itemType domain.ItemType) (domain.VariantPatch, error) {
	patch := domain.VariantPatch{
		VariantID:          strings.TrimSpace(p.VariantID),
		Remove:             p.Remove,
		Description:        p.Description,
		SKU:                p.SKU,
		SupplierPartNumber: p.SupplierPartNumber,
		SupplierKey:        p.Supplier,
		UnitType:           p.UnitType.toDomain(),
		StockUnit:          p.StockUnit.toDomain(),
		PurchaseUnit:       p.PurchaseUnit.toDomain(),
		SalesUnit:          p.SalesUnit.toDomain(),
		UnitCost:           p.UnitCost,
		SalesPrice:         p.SalesPrice,
		StorageLocations:   storageFromPayload(p.StorageLocations),
		Images:             p.Images,
		Details:            p.Details.toDomain(itemType),
	}
	if p.Dimensions != nil {
		patch.Dimensions = &domain.Dimensions{
			Length:        p.Dimensions.Length,
			Width:         p.Dimensions.Width,
			Height:        p.Dimensions.Height,
			DimensionUnit: p.Dimensions.DimensionUnit,
			Weight:        p.Dimensions.Weight,
			WeightUnit:    p.Dimensions.WeightUnit,
		}
	}
	if p.Reorder != nil {
		patch.Reorder = &domain.ReorderPolicy{
			ReorderPoint:    p.Reorder.ReorderPoint,
			ReorderQuantity: p.Reorder.ReorderQuantity,
			SafetyStock:     p.Reorder.SafetyStock,
			LeadTimeDays:    p.Reorder.LeadTimeDays,
		}
	}
	if p.CycleCount != nil {
		patch.CycleCount = &domain.CycleCountConfig{
			Enabled:       p.CycleCount.Enabled,
			FrequencyDays: p.CycleCount.FrequencyDays,
			LastCountedAt: p.CycleCount.LastCountedAt,
		}
	}
	if p.Status != nil {
		status, err := parseStatus(*p.Status)
		if err != nil {
			return domain.VariantPatch{}, err
		}
		patch.Status = &status
	}
	return patch, nil
}

// toVariant builds a new variant for product creation.
func (p variantPayload) toVariant(itemType domain.ItemType) (domain.Variant, error) {
	patch, err := p.toPatch(itemType)
	if err != nil {
		return domain.Variant{}, err
	}
	var v domain.Variant
	patch.Apply(&v)
	return v, nil
}

// productPayload is the create and update body. Nil fields are left untouched on update.
type productPayload struct {
	Type               *string          `json:"type"`
	Name               *string          `json:"name"`
	Description        *string          `json:"description"`
	Category           *string          `json:"category"`
	Supplier           *string          `json:"supplier"`
	Currency           *string          `json:"currency"`
	HandlingNotes      *string          `json:"handlingNotes"`
	HazardClass        *string          `json:"hazardClass"`
	Compliance         []string         `json:"compliance"`
	Tags               []string         `json:"tags"`
	Images             []string         `json:"images"`
	Docs               []string         `json:"docs"`
	RelatedItems       []string         `json:"relatedItems"`
	ProductHasVariants *bool            `json:"productHasVariants"`
	Status             *string          `json:"status"`
	Variants           []variantPayload `json:"variants"`
}

func (p productPayload) itemType() (domain.ItemType, error) {
	raw := ""
	if p.Type != nil {
		raw = *p.Type
	}
	itemType, ok := domain.ParseItemType(raw)
	if !ok {
		return "", badRequest("unknown item type %q", raw)
	}
	return itemType, nil
}

func (p productPayload) toPatch() (domain.SharedItemPatch, error) {
	patch := domain.SharedItemPatch{
		Name:               p.Name,
		Description:        p.Description,
		Category:           p.Category,
		SupplierKey:        p.Supplier,
		Currency:           p.Currency,
		HandlingNotes:      p.HandlingNotes,
		HazardClass:        p.HazardClass,
		Compliance:         p.Compliance,
		Tags:               p.Tags,
		Images:             p.Images,
		Docs:               p.Docs,
		RelatedItems:       p.RelatedItems,
		ProductHasVariants: p.ProductHasVariants,
	}
	if p.Status != nil {
		status, err := parseStatus(*p.Status)
		if err != nil {
			return domain.SharedItemPatch{}, err
		}
		patch.Status = &status
	}
	return patch, nil
}

// toCreate converts the payload into a new product and its variants.
func (p productPayload) toCreate() (domain.SharedItem, []domain.Variant, error) {
	itemType, err := p.itemType()
	if err != nil {
		return domain.SharedItem{}, nil, err
	}
	patch, err := p.toPatch()
	if err != nil {
		return domain.SharedItem{}, nil, err
	}
	shared := domain.SharedItem{Type: itemType}
	patch.Apply(&shared)

	variants := make([]domain.Variant, 0, len(p.Variants))
	for i, vp := range p.Variants {
		if vp.Remove || strings.TrimSpace(vp.VariantID) != "" {
			return domain.SharedItem{}, nil, badRequest("variants[%d]: variantId and remove are not accepted on create", i)
		}
		v, err := vp.toVariant(itemType)
		if err != nil {
			return domain.SharedItem{}, nil, err
		}
		variants = append(variants, v)
	}
	return shared, variants, nil
}

// variantPatches converts the variants array for update. A missing array yields nil.
func (p productPayload) variantPatches(itemType domain.ItemType) ([]domain.VariantPatch, error) {
	if p.Variants == nil {
		return nil, nil
	}
	patches := make([]domain.VariantPatch, 0, len(p.Variants))
	for _, vp := range p.Variants {
		patch, err := vp.toPatch(itemType)
		if err != nil {
			return nil, err
		}
		patches = append(patches, patch)
	}
	return patches, nil
}

func (p productPayload) hasVariantDetails() bool {
	for _, vp := range p.Variants {
		if vp.Details != nil {
			return true
		}
	}
	return false
}
