package domain

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrValidation is matched by every ValidationError.
var ErrValidation = errors.New("domain: validation failed")

// FieldError names a single offending field.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError aggregates field violations for one entity.
type ValidationError struct {
	Entity string
	Key    string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s %s", f.Field, f.Reason))
	}
	subject := e.Entity
	if e.Key != "" {
		subject = fmt.Sprintf("%s %s", subject, e.Key)
	}
	return fmt.Sprintf("%s invalid: %s", strings.TrimSpace(subject), strings.Join(parts, ", "))
}

// Is allows errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

var skuPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-/]{0,63}$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("sku", func(fl validator.FieldLevel) bool {
			return skuPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("itemtype", func(fl validator.FieldLevel) bool {
			_, ok := LookupItemType(ItemType(fl.Field().String()))
			return ok
		})
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			if name := field.Tag.Get("field"); name != "" {
				return name
			}
			return field.Name
		})
		validate = v
	})
	return validate
}

type sharedDraftView struct {
	Name     string `field:"name" validate:"required,max=200"`
	Type     string `field:"type" validate:"itemtype"`
	Currency string `field:"currency" validate:"omitempty,len=3,alpha"`
}

type variantDraftView struct {
	SKU string `field:"sku" validate:"omitempty,sku"`
}

type sharedActivationView struct {
	Name             string `field:"name" validate:"required,max=200"`
	Category         string `field:"category" validate:"required"`
	Currency         string `field:"currency" validate:"required,len=3,alpha"`
	RequiresSupplier bool
	SupplierKey      string `field:"supplier" validate:"required_if=RequiresSupplier true"`
}

type variantActivationView struct {
	RequiresDimensions bool
	RequiresBarcode    bool
	RequiresSupplier   bool
	TracksStock        bool
	HasBOM             bool

	Description    string  `field:"variantDescription" validate:"required"`
	SKU            string  `field:"sku" validate:"required,sku"`
	UnitTypeLabel  string  `field:"unitType.label" validate:"required"`
	UnitTypeValue  string  `field:"unitType.value" validate:"required"`
	StockUnitLabel string  `field:"stockUnit.label" validate:"required_if=TracksStock true"`
	Barcode        string  `field:"barcode" validate:"required_if=RequiresBarcode true"`
	SupplierKey    string  `field:"supplier" validate:"required_if=RequiresSupplier true"`
	Length         float64 `field:"dimensions.length" validate:"required_if=RequiresDimensions true,gte=0"`
	Width          float64 `field:"dimensions.width" validate:"required_if=RequiresDimensions true,gte=0"`
	Height         float64 `field:"dimensions.height" validate:"required_if=RequiresDimensions true,gte=0"`
	Weight         float64 `field:"dimensions.weight" validate:"required_if=RequiresDimensions true,gte=0"`
}

// ValidateDraft checks the format rules that hold in every status.
func ValidateDraft(shared SharedItem, variants []Variant) error {
	if err := runValidation("product", shared.Key, sharedDraftView{
		Name:     shared.Name,
		Type:     string(shared.Type),
		Currency: shared.Currency,
	}); err != nil {
		return err
	}
	for _, v := range variants {
		if err := runValidation("variant", v.VariantID, variantDraftView{SKU: v.SKU}); err != nil {
			return err
		}
	}
	return nil
}

// ValidateForActivation runs the full "not draft" rule set for the product and each live
// variant. Deleted and archived variants are skipped. Variants inherit the supplier from the
// product when they carry none of their own.
func ValidateForActivation(shared SharedItem, variants []Variant) error {
	profile, ok := LookupItemType(shared.Type)
	if !ok {
		return &ValidationError{Entity: "product", Key: shared.Key, Fields: []FieldError{{Field: "type", Reason: "is not a known item type"}}}
	}
	if err := runValidation("product", shared.Key, sharedActivationView{
		Name:             shared.Name,
		Category:         shared.Category,
		Currency:         shared.Currency,
		RequiresSupplier: profile.RequiresSupplier,
		SupplierKey:      shared.SupplierKey,
	}); err != nil {
		return err
	}
	live := 0
	for _, v := range variants {
		if v.Status.IsTerminal() {
			continue
		}
		live++
		supplier := v.SupplierKey
		if supplier == "" {
			supplier = shared.SupplierKey
		}
		view := variantActivationView{
			RequiresDimensions: profile.RequiresDimensions,
			RequiresBarcode:    profile.RequiresBarcode,
			RequiresSupplier:   profile.RequiresSupplier,
			TracksStock:        profile.TracksStock,
			HasBOM:             profile.HasBillOfMaterials,
			Description:        v.Description,
			SKU:                v.SKU,
			UnitTypeLabel:      v.UnitType.Label,
			UnitTypeValue:      v.UnitType.Value,
			StockUnitLabel:     v.StockUnit.Label,
			Barcode:            v.Barcode,
			SupplierKey:        supplier,
			Length:             v.Dimensions.Length,
			Width:              v.Dimensions.Width,
			Height:             v.Dimensions.Height,
			Weight:             v.Dimensions.Weight,
		}
		if err := runValidation("variant", v.VariantID, view); err != nil {
			return err
		}
		components := BillOfMaterials(v.Details)
		if profile.HasBillOfMaterials && len(components) == 0 {
			return &ValidationError{Entity: "variant", Key: v.VariantID, Fields: []FieldError{{Field: "details.components", Reason: "is required"}}}
		}
		for i, line := range components {
			if strings.TrimSpace(line.VariantKey) == "" || line.Quantity <= 0 {
				return &ValidationError{Entity: "variant", Key: v.VariantID, Fields: []FieldError{{
					Field:  fmt.Sprintf("details.components[%d]", i),
					Reason: "requires a component and a positive quantity",
				}}}
			}
		}
	}
	if live == 0 {
		return &ValidationError{Entity: "product", Key: shared.Key, Fields: []FieldError{{Field: "variants", Reason: "requires at least one variant"}}}
	}
	return nil
}

func runValidation(entity, key string, view any) error {
	err := validatorInstance().Struct(view)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	out := &ValidationError{Entity: entity, Key: key}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Reason: describeTag(fe)})
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "sku":
		return "has an invalid SKU format"
	case "itemtype":
		return "is not a known item type"
	case "len":
		return fmt.Sprintf("must be %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		return "must not be negative"
	case "alpha":
		return "must contain letters only"
	default:
		return "is invalid"
	}
}
