package domain

import "testing"

func TestNormalizeNameAndKey(t *testing.T) {
	if got := NormalizeName("  Ｗidget \t  Pro "); got != "Widget Pro" {
		t.Fatalf("unexpected normalized name %q", got)
	}
	if NameKey("WIDGET pro") != NameKey("widget  Pro") {
		t.Fatal("name keys must ignore case and spacing")
	}
	if NameKey("Straße") != NameKey("STRASSE") {
		t.Fatal("name keys must case-fold")
	}
}

func TestUniqueName(t *testing.T) {
	taken := map[string]struct{}{
		NameKey("Widget"):   {},
		NameKey("Widget 1"): {},
		NameKey("widget 2"): {},
	}
	if got := UniqueName(" Widget ", taken); got != "Widget 3" {
		t.Fatalf("expected Widget 3, got %q", got)
	}
	if got := UniqueName("Bolt", taken); got != "Bolt 1" {
		t.Fatalf("expected Bolt 1, got %q", got)
	}
}
