package domain

import (
	"errors"
	"strings"
	"testing"
)

func activeReadyProduct() (SharedItem, []Variant) {
	shared := SharedItem{
		Key:         "p1",
		Type:        ItemTypeProduct,
		Name:        "Widget",
		Category:    "hardware",
		Currency:    "USD",
		SupplierKey: "sup-1",
	}
	variant := Variant{
		VariantID:   "PID0000011",
		Description: "Widget",
		SKU:         "WID-001",
		Barcode:     "PID0000011",
		UnitType:    UnitOfMeasure{Label: "Each", Value: "ea"},
		StockUnit:   UnitOfMeasure{Label: "Each", Value: "ea"},
		Dimensions:  Dimensions{Length: 1, Width: 1, Height: 1, Weight: 1},
	}
	return shared, []Variant{variant}
}

func fieldNames(err error) []string {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return nil
	}
	out := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		out = append(out, f.Field)
	}
	return out
}

func TestValidateDraftFormatRules(t *testing.T) {
	if err := ValidateDraft(SharedItem{Name: "Widget", Type: ItemTypeKit}, []Variant{{}}); err != nil {
		t.Fatalf("expected minimal draft to pass, got %v", err)
	}

	cases := []struct {
		name    string
		shared  SharedItem
		variant Variant
		field   string
	}{
		{name: "missing name", shared: SharedItem{Type: ItemTypeProduct}, field: "name"},
		{name: "unknown type", shared: SharedItem{Name: "W", Type: "gadget"}, field: "type"},
		{name: "bad currency", shared: SharedItem{Name: "W", Type: ItemTypeProduct, Currency: "US"}, field: "currency"},
		{name: "bad sku", shared: SharedItem{Name: "W", Type: ItemTypeProduct}, variant: Variant{SKU: "-bad sku"}, field: "sku"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDraft(tc.shared, []Variant{tc.variant})
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if names := fieldNames(err); len(names) == 0 || names[0] != tc.field {
				t.Fatalf("expected field %s, got %v", tc.field, names)
			}
		})
	}
}

func TestValidateForActivation(t *testing.T) {
	shared, variants := activeReadyProduct()
	if err := ValidateForActivation(shared, variants); err != nil {
		t.Fatalf("expected ready product to pass, got %v", err)
	}

	noCategory := shared
	noCategory.Category = ""
	if got := fieldNames(ValidateForActivation(noCategory, variants)); len(got) != 1 || got[0] != "category" {
		t.Fatalf("expected category violation, got %v", got)
	}

	if err := ValidateForActivation(shared, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected variants required, got %v", err)
	}

	bare := []Variant{{VariantID: "PID0000011"}}
	err := ValidateForActivation(shared, bare)
	got := strings.Join(fieldNames(err), ",")
	for _, want := range []string{"variantDescription", "sku", "unitType.label", "barcode", "dimensions.length"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %s in %s", want, got)
		}
	}
	if strings.Contains(got, "supplier") {
		t.Fatalf("variant supplier should be inherited from the product, got %s", got)
	}
}

func TestValidateForActivationSkipsTerminalVariants(t *testing.T) {
	shared, variants := activeReadyProduct()
	for _, status := range []ItemStatus{StatusDeleted, StatusArchived} {
		withDead := append(append([]Variant(nil), variants...), Variant{VariantID: "PID0000019", Status: status})
		if err := ValidateForActivation(shared, withDead); err != nil {
			t.Fatalf("%s variant must not block activation: %v", status, err)
		}
	}

	onlyDead := []Variant{{VariantID: "PID0000019", Status: StatusDeleted}}
	if got := fieldNames(ValidateForActivation(shared, onlyDead)); len(got) != 1 || got[0] != "variants" {
		t.Fatalf("expected variants violation, got %v", got)
	}
}

func TestValidateForActivationTypeProfiles(t *testing.T) {
	service := SharedItem{Key: "s1", Type: ItemTypeNonInventory, Name: "Install", Category: "services", Currency: "EUR"}
	light := []Variant{{VariantID: "S1", Description: "Install", SKU: "SVC-1", UnitType: UnitOfMeasure{Label: "Hour", Value: "h"}}}
	if err := ValidateForActivation(service, light); err != nil {
		t.Fatalf("non-inventory items need no supplier, barcode or dimensions: %v", err)
	}

	kit := SharedItem{Key: "k1", Type: ItemTypeKit, Name: "Starter kit", Category: "kits", Currency: "USD"}
	_, variants := activeReadyProduct()
	variants[0].Details = KitDetails{}
	err := ValidateForActivation(kit, variants)
	if got := fieldNames(err); len(got) != 1 || got[0] != "details.components" {
		t.Fatalf("expected components required, got %v", got)
	}

	variants[0].Details = KitDetails{Components: []BOMLine{{VariantKey: "v9", Quantity: 0}}}
	if got := fieldNames(ValidateForActivation(kit, variants)); len(got) != 1 || got[0] != "details.components[0]" {
		t.Fatalf("expected component quantity violation, got %v", got)
	}

	variants[0].Details = KitDetails{Components: []BOMLine{{VariantKey: "v9", Quantity: 2}}}
	if err := ValidateForActivation(kit, variants); err != nil {
		t.Fatalf("expected kit with components to pass, got %v", err)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Entity: "variant", Key: "P11", Fields: []FieldError{{Field: "sku", Reason: "is required"}}}
	if got := err.Error(); got != "variant P11 invalid: sku is required" {
		t.Fatalf("unexpected message %q", got)
	}
}
