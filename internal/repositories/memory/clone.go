package memory

import (
	domain "github.com/stockline/api/internal/domain"
)

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}

func cloneActivity(in []domain.ActivityLogEntry) []domain.ActivityLogEntry {
	if in == nil {
		return nil
	}
	out := make([]domain.ActivityLogEntry, len(in))
	for i, entry := range in {
		entry.Changes = append([]domain.FieldChange(nil), entry.Changes...)
		out[i] = entry
	}
	return out
}

func cloneSharedItem(in domain.SharedItem) domain.SharedItem {
	out := in
	out.Compliance = cloneStrings(in.Compliance)
	out.Tags = cloneStrings(in.Tags)
	out.Images = cloneStrings(in.Images)
	out.Docs = cloneStrings(in.Docs)
	out.RelatedItems = cloneStrings(in.RelatedItems)
	out.VariantIDs = cloneStrings(in.VariantIDs)
	out.ActivityLog = cloneActivity(in.ActivityLog)
	return out
}

func cloneVariant(in domain.Variant) domain.Variant {
	out := in
	if in.StorageLocations != nil {
		out.StorageLocations = in.StorageLocations.Clone()
	}
	out.WarehouseIDs = cloneStrings(in.WarehouseIDs)
	out.Images = cloneStrings(in.Images)
	out.ActivityLog = cloneActivity(in.ActivityLog)
	out.Details = cloneDetails(in.Details)
	return out
}

func cloneBOM(in []domain.BOMLine) []domain.BOMLine {
	if in == nil {
		return nil
	}
	return append([]domain.BOMLine{}, in...)
}

func cloneDetails(in domain.TypeDetails) domain.TypeDetails {
	switch d := in.(type) {
	case domain.AssemblyDetails:
		d.Components = cloneBOM(d.Components)
		return d
	case domain.KitDetails:
		d.Components = cloneBOM(d.Components)
		return d
	case domain.PhantomDetails:
		d.Components = cloneBOM(d.Components)
		return d
	default:
		return in
	}
}

func cloneClassification(in domain.ABCClassification) domain.ABCClassification {
	out := in
	if in.Assignments != nil {
		out.Assignments = make(map[string]domain.ABCClass, len(in.Assignments))
		for key, class := range in.Assignments {
			out.Assignments[key] = class
		}
	}
	if in.ComputedAt != nil {
		at := *in.ComputedAt
		out.ComputedAt = &at
	}
	return out
}

func cloneProductList(in domain.ProductList) domain.ProductList {
	out := in
	out.Options = append([]domain.ProductListOption(nil), in.Options...)
	return out
}
