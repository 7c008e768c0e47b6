package firestore

import (
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/stockline/api/internal/domain"
)

type activityDocument struct {
	Key         string           `firestore:"key"`
	Email       string           `firestore:"email"`
	Role        string           `firestore:"role"`
	Date        int64            `firestore:"date"`
	Description string           `firestore:"description"`
	Status      string           `firestore:"status"`
	Changes     []changeDocument `firestore:"changes,omitempty"`
}

type changeDocument struct {
	Field    string `firestore:"field"`
	OldValue any    `firestore:"oldValue"`
	NewValue any    `firestore:"newValue"`
}

type sharedItemDocument struct {
	ProductID          string             `firestore:"productId"`
	Type               string             `firestore:"itemType"`
	Name               string             `firestore:"name"`
	NameKey            string             `firestore:"nameKey"`
	Description        string             `firestore:"description"`
	Category           string             `firestore:"category"`
	Supplier           string             `firestore:"supplier"`
	Currency           string             `firestore:"currency"`
	HandlingNotes      string             `firestore:"handlingNotes"`
	HazardClass        string             `firestore:"hazardClass"`
	Compliance         []string           `firestore:"compliance"`
	Tags               []string           `firestore:"tags"`
	Images             []string           `firestore:"images"`
	Docs               []string           `firestore:"docs"`
	RelatedItems       []string           `firestore:"relatedItems"`
	ProductHasVariants bool               `firestore:"productHasVariants"`
	Status             string             `firestore:"status"`
	VariantIDs         []string           `firestore:"variantIds"`
	VariantCount       int                `firestore:"variantCount"`
	ActivityLog        []activityDocument `firestore:"activityLog"`
	CreatedBy          string             `firestore:"createdBy"`
	CreatedAt          time.Time          `firestore:"createdAt"`
	UpdatedAt          time.Time          `firestore:"updatedAt"`
}

type unitDocument struct {
	Label string `firestore:"label"`
	Value string `firestore:"value"`
}

type dimensionsDocument struct {
	Length        float64 `firestore:"length"`
	Width         float64 `firestore:"width"`
	Height        float64 `firestore:"height"`
	DimensionUnit string  `firestore:"dimensionUnit"`
	Weight        float64 `firestore:"weight"`
	WeightUnit    string  `firestore:"weightUnit"`
}

type reorderDocument struct {
	ReorderPoint    *float64 `firestore:"reorderPoint"`
	ReorderQuantity *float64 `firestore:"reorderQuantity"`
	SafetyStock     *float64 `firestore:"safetyStock"`
	LeadTimeDays    *int     `firestore:"leadTimeDays"`
}

type cycleCountDocument struct {
	Enabled       bool       `firestore:"enabled"`
	FrequencyDays int        `firestore:"frequencyDays"`
	LastCountedAt *time.Time `firestore:"lastCountedAt"`
}

type locationDocument struct {
	IsMain       bool    `firestore:"isMain"`
	CustomName   string  `firestore:"customName"`
	LocationID   string  `firestore:"locationId"`
	LocationName string  `firestore:"locationName"`
	MaxQtyAtLoc  float64 `firestore:"maxQtyAtLoc"`
	ItemQuantity float64 `firestore:"itemQuantity"`
}

type bomLineDocument struct {
	VariantKey string  `firestore:"variantRef"`
	Quantity   float64 `firestore:"quantity"`
}

// detailsDocument is the union of every type-specific payload; itemType on the
// variant selects which fields are meaningful.
type detailsDocument struct {
	Brand               string            `firestore:"brand,omitempty"`
	Model               string            `firestore:"model,omitempty"`
	Material            string            `firestore:"material,omitempty"`
	CapacityVolume      float64           `firestore:"capacityVolume,omitempty"`
	Reusable            bool              `firestore:"reusable,omitempty"`
	Components          []bomLineDocument `firestore:"billOfMaterial,omitempty"`
	AssemblyTimeMinutes int               `firestore:"assemblyTimeMinutes,omitempty"`
	EquipmentRef        string            `firestore:"equipmentRef,omitempty"`
	Criticality         string            `firestore:"criticality,omitempty"`
	Grade               string            `firestore:"grade,omitempty"`
	ShelfLifeDays       int               `firestore:"shelfLifeDays,omitempty"`
	LotTracked          bool              `firestore:"lotTracked,omitempty"`
	ServiceCategory     string            `firestore:"serviceCategory,omitempty"`
}

type variantDocument struct {
	VariantID          string                        `firestore:"variantId"`
	SharedAttributes   string                        `firestore:"sharedAttributes"`
	Type               string                        `firestore:"itemType"`
	Description        string                        `firestore:"variantDescription"`
	SKU                string                        `firestore:"SKU"`
	SupplierPartNumber string                        `firestore:"supplierPartNumber"`
	Supplier           string                        `firestore:"supplier"`
	Barcode            string                        `firestore:"barcode"`
	BarcodeSVG         string                        `firestore:"barcodeSvg"`
	UnitType           unitDocument                  `firestore:"unitType"`
	StockUnit          unitDocument                  `firestore:"stockUnit"`
	PurchaseUnit       unitDocument                  `firestore:"purchaseUnit"`
	SalesUnit          unitDocument                  `firestore:"salesUnit"`
	Dimensions         dimensionsDocument            `firestore:"dimensions"`
	UnitCost           string                        `firestore:"unitCost"`
	SalesPrice         string                        `firestore:"salesPrice"`
	StockOnHand        float64                       `firestore:"stockOnHand"`
	Reorder            reorderDocument               `firestore:"reorder"`
	CycleCount         cycleCountDocument            `firestore:"cycleCount"`
	StorageLocations   map[string][]locationDocument `firestore:"storageLocations"`
	WarehouseIDs       []string                      `firestore:"warehouseIds"`
	Images             []string                      `firestore:"images"`
	ABCClass           string                        `firestore:"abcClass"`
	Details            detailsDocument               `firestore:"details"`
	ProductHasVariants bool                          `firestore:"productHasVariants"`
	Status             string                        `firestore:"status"`
	ActivityLog        []activityDocument            `firestore:"activityLog"`
	CreatedAt          time.Time                     `firestore:"createdAt"`
	UpdatedAt          time.Time                     `firestore:"updatedAt"`
}

func newActivityDocuments(entries []domain.ActivityLogEntry) []activityDocument {
	out := make([]activityDocument, 0, len(entries))
	for _, entry := range entries {
		doc := activityDocument{
			Key:         entry.Key,
			Email:       entry.Email,
			Role:        entry.Role,
			Date:        entry.Date,
			Description: entry.Description,
			Status:      string(entry.Status),
		}
		for _, change := range entry.Changes {
			doc.Changes = append(doc.Changes, changeDocument{
				Field:    change.Field,
				OldValue: change.OldValue,
				NewValue: change.NewValue,
			})
		}
		out = append(out, doc)
	}
	return out
}

func activityToDomain(docs []activityDocument) []domain.ActivityLogEntry {
	out := make([]domain.ActivityLogEntry, 0, len(docs))
	for _, doc := range docs {
		entry := domain.ActivityLogEntry{
			Key:         doc.Key,
			Email:       doc.Email,
			Role:        doc.Role,
			Date:        doc.Date,
			Description: doc.Description,
			Status:      domain.ItemStatus(doc.Status),
		}
		for _, change := range doc.Changes {
			entry.Changes = append(entry.Changes, domain.FieldChange{
				Field:    change.Field,
				OldValue: change.OldValue,
				NewValue: change.NewValue,
			})
		}
		out = append(out, entry)
	}
	return out
}

func newSharedItemDocument(item domain.SharedItem) sharedItemDocument {
	return sharedItemDocument{
		ProductID:          item.ProductID,
		Type:               string(item.Type),
		Name:               item.Name,
		NameKey:            domain.NameKey(item.Name),
		Description:        item.Description,
		Category:           item.Category,
		Supplier:           item.SupplierKey,
		Currency:           item.Currency,
		HandlingNotes:      item.HandlingNotes,
		HazardClass:        item.HazardClass,
		Compliance:         item.Compliance,
		Tags:               item.Tags,
		Images:             item.Images,
		Docs:               item.Docs,
		RelatedItems:       item.RelatedItems,
		ProductHasVariants: item.ProductHasVariants,
		Status:             string(item.Status),
		VariantIDs:         item.VariantIDs,
		VariantCount:       item.VariantCount,
		ActivityLog:        newActivityDocuments(item.ActivityLog),
		CreatedBy:          item.CreatedBy,
		CreatedAt:          item.CreatedAt.UTC(),
		UpdatedAt:          item.UpdatedAt.UTC(),
	}
}

func (d sharedItemDocument) toDomain(key string) domain.SharedItem {
	return domain.SharedItem{
		Key:                key,
		ProductID:          d.ProductID,
		Type:               domain.ItemType(d.Type),
		Name:               d.Name,
		Description:        d.Description,
		Category:           d.Category,
		SupplierKey:        d.Supplier,
		Currency:           d.Currency,
		HandlingNotes:      d.HandlingNotes,
		HazardClass:        d.HazardClass,
		Compliance:         d.Compliance,
		Tags:               d.Tags,
		Images:             d.Images,
		Docs:               d.Docs,
		RelatedItems:       d.RelatedItems,
		ProductHasVariants: d.ProductHasVariants,
		Status:             domain.ItemStatus(d.Status),
		VariantIDs:         d.VariantIDs,
		VariantCount:       d.VariantCount,
		ActivityLog:        activityToDomain(d.ActivityLog),
		CreatedBy:          d.CreatedBy,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
}

func newVariantDocument(v domain.Variant) variantDocument {
	doc := variantDocument{
		VariantID:          v.VariantID,
		SharedAttributes:   v.SharedKey,
		Type:               string(v.Type),
		Description:        v.Description,
		SKU:                v.SKU,
		SupplierPartNumber: v.SupplierPartNumber,
		Supplier:           v.SupplierKey,
		Barcode:            v.Barcode,
		BarcodeSVG:         v.BarcodeSVG,
		UnitType:           unitDocument(v.UnitType),
		StockUnit:          unitDocument(v.StockUnit),
		PurchaseUnit:       unitDocument(v.PurchaseUnit),
		SalesUnit:          unitDocument(v.SalesUnit),
		Dimensions:         dimensionsDocument(v.Dimensions),
		UnitCost:           v.UnitCost.String(),
		SalesPrice:         v.SalesPrice.String(),
		StockOnHand:        v.StockOnHand,
		Reorder:            reorderDocument(v.Reorder),
		CycleCount:         cycleCountDocument(v.CycleCount),
		StorageLocations:   make(map[string][]locationDocument, len(v.StorageLocations)),
		WarehouseIDs:       v.StorageLocations.WarehouseIDs(),
		Images:             v.Images,
		ABCClass:           v.ABCClass,
		Details:            newDetailsDocument(v.Details),
		ProductHasVariants: v.ProductHasVariants,
		Status:             string(v.Status),
		ActivityLog:        newActivityDocuments(v.ActivityLog),
		CreatedAt:          v.CreatedAt.UTC(),
		UpdatedAt:          v.UpdatedAt.UTC(),
	}
	for warehouseID, locations := range v.StorageLocations {
		docs := make([]locationDocument, 0, len(locations))
		for _, loc := range locations {
			docs = append(docs, locationDocument(loc))
		}
		doc.StorageLocations[warehouseID] = docs
	}
	return doc
}

func (d variantDocument) toDomain(key string) domain.Variant {
	v := domain.Variant{
		Key:                key,
		VariantID:          d.VariantID,
		SharedKey:          d.SharedAttributes,
		Type:               domain.ItemType(d.Type),
		Description:        d.Description,
		SKU:                d.SKU,
		SupplierPartNumber: d.SupplierPartNumber,
		SupplierKey:        d.Supplier,
		Barcode:            d.Barcode,
		BarcodeSVG:         d.BarcodeSVG,
		UnitType:           domain.UnitOfMeasure(d.UnitType),
		StockUnit:          domain.UnitOfMeasure(d.StockUnit),
		PurchaseUnit:       domain.UnitOfMeasure(d.PurchaseUnit),
		SalesUnit:          domain.UnitOfMeasure(d.SalesUnit),
		Dimensions:         domain.Dimensions(d.Dimensions),
		UnitCost:           parseDecimal(d.UnitCost),
		SalesPrice:         parseDecimal(d.SalesPrice),
		StockOnHand:        d.StockOnHand,
		Reorder:            domain.ReorderPolicy(d.Reorder),
		CycleCount:         domain.CycleCountConfig(d.CycleCount),
		StorageLocations:   make(domain.StorageLocations, len(d.StorageLocations)),
		Images:             d.Images,
		ABCClass:           d.ABCClass,
		Details:            d.Details.toDomain(domain.ItemType(d.Type)),
		ProductHasVariants: d.ProductHasVariants,
		Status:             domain.ItemStatus(d.Status),
		ActivityLog:        activityToDomain(d.ActivityLog),
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
	for warehouseID, docs := range d.StorageLocations {
		locations := make([]domain.StorageLocation, 0, len(docs))
		for _, loc := range docs {
			locations = append(locations, domain.StorageLocation(loc))
		}
		v.StorageLocations[warehouseID] = locations
	}
	domain.SyncWarehouseIDs(&v)
	return v
}

func newDetailsDocument(details domain.TypeDetails) detailsDocument {
	var doc detailsDocument
	switch d := details.(type) {
	case domain.ProductDetails:
		doc.Brand, doc.Model = d.Brand, d.Model
	case domain.PackagingDetails:
		doc.Material, doc.CapacityVolume, doc.Reusable = d.Material, d.CapacityVolume, d.Reusable
	case domain.AssemblyDetails:
		doc.Components = newBOMDocuments(d.Components)
		doc.AssemblyTimeMinutes = d.AssemblyTimeMinutes
	case domain.KitDetails:
		doc.Components = newBOMDocuments(d.Components)
	case domain.MRODetails:
		doc.EquipmentRef, doc.Criticality = d.EquipmentRef, d.Criticality
	case domain.RawMaterialDetails:
		doc.Grade, doc.ShelfLifeDays, doc.LotTracked = d.Grade, d.ShelfLifeDays, d.LotTracked
	case domain.NonInventoryDetails:
		doc.ServiceCategory = d.ServiceCategory
	case domain.PhantomDetails:
		doc.Components = newBOMDocuments(d.Components)
	}
	return doc
}

func (d detailsDocument) toDomain(itemType domain.ItemType) domain.TypeDetails {
	switch itemType {
	case domain.ItemTypeProduct:
		return domain.ProductDetails{Brand: d.Brand, Model: d.Model}
	case domain.ItemTypePackaging:
		return domain.PackagingDetails{Material: d.Material, CapacityVolume: d.CapacityVolume, Reusable: d.Reusable}
	case domain.ItemTypeAssembly:
		return domain.AssemblyDetails{Components: bomToDomain(d.Components), AssemblyTimeMinutes: d.AssemblyTimeMinutes}
	case domain.ItemTypeKit:
		return domain.KitDetails{Components: bomToDomain(d.Components)}
	case domain.ItemTypeMRO:
		return domain.MRODetails{EquipmentRef: d.EquipmentRef, Criticality: d.Criticality}
	case domain.ItemTypeRawMaterial:
		return domain.RawMaterialDetails{Grade: d.Grade, ShelfLifeDays: d.ShelfLifeDays, LotTracked: d.LotTracked}
	case domain.ItemTypeNonInventory:
		return domain.NonInventoryDetails{ServiceCategory: d.ServiceCategory}
	case domain.ItemTypePhantom:
		return domain.PhantomDetails{Components: bomToDomain(d.Components)}
	default:
		return nil
	}
}

func newBOMDocuments(lines []domain.BOMLine) []bomLineDocument {
	out := make([]bomLineDocument, 0, len(lines))
	for _, line := range lines {
		out = append(out, bomLineDocument(line))
	}
	return out
}

func bomToDomain(docs []bomLineDocument) []domain.BOMLine {
	if len(docs) == 0 {
		return nil
	}
	out := make([]domain.BOMLine, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.BOMLine(doc))
	}
	return out
}

func parseDecimal(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return value
}
