package storage

import "testing"

func TestBuildProductImagePath(t *testing.T) {
	path, err := BuildObjectPath(PurposeProductImage, PathParams{
		ProductKey: "shared123",
		AssetID:    "01HZX",
		FileName:   "front.png",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "assets/products/shared123/images/01HZX/front.png"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildCopyPathIgnoresProduct(t *testing.T) {
	path, err := BuildObjectPath(PurposeCopy, PathParams{AssetID: "copy-1", FileName: "datasheet.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "assets/copies/copy-1/datasheet.pdf" {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	_, err := BuildObjectPath(PurposeProductDoc, PathParams{
		ProductKey: "../bad",
		AssetID:    "asset",
		FileName:   "file.pdf",
	})
	if err == nil {
		t.Fatalf("expected error for invalid segment")
	}
}

func TestBuildObjectPathValidation(t *testing.T) {
	cases := map[string]struct {
		purpose AssetPurpose
		params  PathParams
	}{
		"missing file":    {PurposeProductImage, PathParams{ProductKey: "p", AssetID: "a"}},
		"backslash":       {PurposeProductDoc, PathParams{ProductKey: `p\x`, AssetID: "a", FileName: "f"}},
		"copy traversal":  {PurposeCopy, PathParams{AssetID: "a", FileName: "..pdf"}},
		"unknown purpose": {AssetPurpose("avatar"), PathParams{ProductKey: "p", AssetID: "a", FileName: "f"}},
		"blank asset id":  {PurposeCopy, PathParams{AssetID: "  ", FileName: "f"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := BuildObjectPath(tc.purpose, tc.params); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestBuildObjectPathTrimsSegments(t *testing.T) {
	got, err := BuildObjectPath(PurposeProductDoc, PathParams{ProductKey: " p1 ", AssetID: "a1", FileName: " datasheet.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "assets/products/p1/docs/a1/datasheet.pdf" {
		t.Fatalf("unexpected path %s", got)
	}
}
