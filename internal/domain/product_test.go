package domain

import (
	"reflect"
	"testing"
)

func TestVariantSuffix(t *testing.T) {
	cases := []struct {
		productID, variantID string
		want                 int
		ok                   bool
	}{
		{"PID000001", "PID0000011", 1, true},
		{"PID000001", "PID00000112", 12, true},
		{"PID000001", "PID000001", 0, false},
		{"PID000001", "PID0000010", 0, false},
		{"PID000001", "PID000002x", 0, false},
		{"", "1", 0, false},
	}
	for _, tc := range cases {
		got, ok := VariantSuffix(tc.productID, tc.variantID)
		if got != tc.want || ok != tc.ok {
			t.Errorf("VariantSuffix(%q, %q) = %d, %v; want %d, %v", tc.productID, tc.variantID, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNextVariantSuffixUsesMaximum(t *testing.T) {
	variants := []Variant{{VariantID: "P11"}, {VariantID: "P13"}, {VariantID: "Q19"}}
	if got := NextVariantSuffix("P1", variants); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
	if got := NextVariantSuffix("P1", nil); got != 1 {
		t.Fatalf("expected 1 for no variants, got %d", got)
	}
	if got := VariantID("P1", 4); got != "P14" {
		t.Fatalf("unexpected variant id %q", got)
	}
}

func TestFormatProductID(t *testing.T) {
	if got := FormatProductID("PID", 6, 42); got != "PID000042" {
		t.Fatalf("unexpected padded id %q", got)
	}
	if got := FormatProductID("PID", 0, 42); got != "PID42" {
		t.Fatalf("unexpected unpadded id %q", got)
	}
	if got := FormatProductID("P", 2, 1234); got != "P1234" {
		t.Fatalf("padding must not truncate, got %q", got)
	}
}

func TestStorageLocationsHelpers(t *testing.T) {
	locations := StorageLocations{
		"wh-2": {{LocationID: "b", ItemQuantity: 2.5}},
		"wh-1": {{LocationID: "a", ItemQuantity: 1}, {LocationID: "c", ItemQuantity: 4}},
	}
	if got := locations.TotalQuantity(); got != 7.5 {
		t.Fatalf("expected 7.5, got %v", got)
	}
	if got := locations.WarehouseIDs(); !reflect.DeepEqual(got, []string{"wh-1", "wh-2"}) {
		t.Fatalf("unexpected warehouse ids %v", got)
	}

	clone := locations.Clone()
	clone["wh-1"][0].ItemQuantity = 100
	if locations["wh-1"][0].ItemQuantity != 1 {
		t.Fatal("clone shares bins with the original")
	}

	v := Variant{StorageLocations: locations}
	SyncWarehouseIDs(&v)
	if !reflect.DeepEqual(v.WarehouseIDs, []string{"wh-1", "wh-2"}) {
		t.Fatalf("unexpected synced ids %v", v.WarehouseIDs)
	}
}

func TestApplySingleVariantDefaults(t *testing.T) {
	shared := SharedItem{Name: "Widget", Images: []string{"gs://b/w.png"}}
	v := Variant{}
	ApplySingleVariantDefaults(shared, &v)
	if v.Description != "Widget" || !reflect.DeepEqual(v.Images, shared.Images) {
		t.Fatalf("expected defaults applied, got %+v", v)
	}

	own := Variant{Description: "Custom", Images: []string{"gs://b/own.png"}}
	ApplySingleVariantDefaults(shared, &own)
	if own.Description != "Custom" || own.Images[0] != "gs://b/own.png" {
		t.Fatalf("expected own values kept, got %+v", own)
	}

	shared.ProductHasVariants = true
	multi := Variant{}
	ApplySingleVariantDefaults(shared, &multi)
	if multi.Description != "" {
		t.Fatal("multi-variant products must not default descriptions")
	}
}

func TestSharedItemPatchApplyAndFields(t *testing.T) {
	name := "  Bolt  "
	status := StatusActive
	patch := SharedItemPatch{Name: &name, Status: &status, Tags: []string{"steel"}}

	item := SharedItem{Name: "Widget", Category: "tools", Status: StatusDraft}
	patch.Apply(&item)
	if item.Name != "Bolt" || item.Status != StatusActive || item.Category != "tools" {
		t.Fatalf("unexpected patched item %+v", item)
	}

	fields := patch.Fields()
	if _, ok := fields["category"]; ok {
		t.Fatal("unset fields must not be reported")
	}
	for _, key := range []string{"name", "status", "tags"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("expected %s in patch fields", key)
		}
	}
}

func TestRemovedImages(t *testing.T) {
	got := RemovedImages([]string{"a", "b", "c"}, []string{"c", "d"})
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("unexpected removed set %v", got)
	}
	if RemovedImages(nil, []string{"a"}) != nil {
		t.Fatal("expected nil when nothing was removed")
	}
}
