package domain

import (
	"sort"
	"strings"
)

// ItemType discriminates the product and variant shapes.
type ItemType string

const (
	ItemTypeProduct      ItemType = "product"
	ItemTypePackaging    ItemType = "packaging"
	ItemTypeAssembly     ItemType = "assembly"
	ItemTypeKit          ItemType = "kit"
	ItemTypeMRO          ItemType = "mro"
	ItemTypeRawMaterial  ItemType = "raw_material"
	ItemTypeNonInventory ItemType = "non_inventory"
	ItemTypePhantom      ItemType = "phantom"
)

// TypeDetails is implemented by the type-specific payload carried on a variant.
type TypeDetails interface {
	ItemType() ItemType
}

// BOMLine references a component variant and the quantity consumed per unit.
type BOMLine struct {
	VariantKey string
	Quantity   float64
}

type ProductDetails struct {
	Brand string
	Model string
}

type PackagingDetails struct {
	Material       string
	CapacityVolume float64
	Reusable       bool
}

type AssemblyDetails struct {
	Components          []BOMLine
	AssemblyTimeMinutes int
}

type KitDetails struct {
	Components []BOMLine
}

type MRODetails struct {
	EquipmentRef string
	Criticality  string
}

type RawMaterialDetails struct {
	Grade         string
	ShelfLifeDays int
	LotTracked    bool
}

type NonInventoryDetails struct {
	ServiceCategory string
}

type PhantomDetails struct {
	Components []BOMLine
}

func (ProductDetails) ItemType() ItemType      { return ItemTypeProduct }
func (PackagingDetails) ItemType() ItemType    { return ItemTypePackaging }
func (AssemblyDetails) ItemType() ItemType     { return ItemTypeAssembly }
func (KitDetails) ItemType() ItemType          { return ItemTypeKit }
func (MRODetails) ItemType() ItemType          { return ItemTypeMRO }
func (RawMaterialDetails) ItemType() ItemType  { return ItemTypeRawMaterial }
func (NonInventoryDetails) ItemType() ItemType { return ItemTypeNonInventory }
func (PhantomDetails) ItemType() ItemType      { return ItemTypePhantom }

// ItemTypeProfile describes which field groups a type carries and requires once active.
type ItemTypeProfile struct {
	Type               ItemType
	Label              string
	TracksStock        bool
	RequiresDimensions bool
	RequiresBarcode    bool
	RequiresSupplier   bool
	HasBillOfMaterials bool

	newDetails func() TypeDetails
}

// NewDetails returns the zero payload for the type.
func (p ItemTypeProfile) NewDetails() TypeDetails {
	if p.newDetails == nil {
		return nil
	}
	return p.newDetails()
}

var itemTypeProfiles = map[ItemType]ItemTypeProfile{
	ItemTypeProduct: {
		Type: ItemTypeProduct, Label: "Product",
		TracksStock: true, RequiresDimensions: true, RequiresBarcode: true, RequiresSupplier: true,
		newDetails: func() TypeDetails { return ProductDetails{} },
	},
	ItemTypePackaging: {
		Type: ItemTypePackaging, Label: "Packaging Supply",
		TracksStock: true, RequiresDimensions: true, RequiresBarcode: true, RequiresSupplier: true,
		newDetails: func() TypeDetails { return PackagingDetails{} },
	},
	ItemTypeAssembly: {
		Type: ItemTypeAssembly, Label: "Assembly",
		TracksStock: true, RequiresDimensions: true, RequiresBarcode: true, HasBillOfMaterials: true,
		newDetails: func() TypeDetails { return AssemblyDetails{} },
	},
	ItemTypeKit: {
		Type: ItemTypeKit, Label: "Kit",
		TracksStock: true, RequiresDimensions: true, RequiresBarcode: true, HasBillOfMaterials: true,
		newDetails: func() TypeDetails { return KitDetails{} },
	},
	ItemTypeMRO: {
		Type: ItemTypeMRO, Label: "MRO",
		TracksStock: true, RequiresSupplier: true,
		newDetails: func() TypeDetails { return MRODetails{} },
	},
	ItemTypeRawMaterial: {
		Type: ItemTypeRawMaterial, Label: "Raw Material",
		TracksStock: true, RequiresDimensions: true, RequiresSupplier: true,
		newDetails: func() TypeDetails { return RawMaterialDetails{} },
	},
	ItemTypeNonInventory: {
		Type: ItemTypeNonInventory, Label: "Non-Inventory",
		newDetails: func() TypeDetails { return NonInventoryDetails{} },
	},
	ItemTypePhantom: {
		Type: ItemTypePhantom, Label: "Phantom", HasBillOfMaterials: true,
		newDetails: func() TypeDetails { return PhantomDetails{} },
	},
}

// LookupItemType resolves the profile registered for t.
func LookupItemType(t ItemType) (ItemTypeProfile, bool) {
	profile, ok := itemTypeProfiles[t]
	return profile, ok
}

// ParseItemType normalises raw input. An empty value selects ItemTypeProduct.
func ParseItemType(raw string) (ItemType, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ItemTypeProduct, true
	}
	t := ItemType(strings.ReplaceAll(raw, "-", "_"))
	if _, ok := itemTypeProfiles[t]; !ok {
		return "", false
	}
	return t, true
}

// ItemTypes lists the registered types in stable order.
func ItemTypes() []ItemType {
	out := make([]ItemType, 0, len(itemTypeProfiles))
	for t := range itemTypeProfiles {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BillOfMaterials extracts component lines from BOM-bearing details.
func BillOfMaterials(details TypeDetails) []BOMLine {
	switch d := details.(type) {
	case AssemblyDetails:
		return d.Components
	case KitDetails:
		return d.Components
	case PhantomDetails:
		return d.Components
	default:
		return nil
	}
}
