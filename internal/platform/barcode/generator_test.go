package barcode

import (
	"strings"
	"testing"
)

func TestCreateBarcodeIsDeterministic(t *testing.T) {
	g := NewGenerator()
	first, err := g.CreateBarcode("PID0000421")
	if err != nil {
		t.Fatalf("CreateBarcode: %v", err)
	}
	second, err := g.CreateBarcode("PID0000421")
	if err != nil {
		t.Fatalf("CreateBarcode: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical output for identical input")
	}
	if !strings.HasPrefix(first, "<svg") || !strings.HasSuffix(first, "</svg>") {
		t.Fatalf("expected svg document, got %.40s", first)
	}

	other, err := g.CreateBarcode("PID0000422")
	if err != nil {
		t.Fatalf("CreateBarcode: %v", err)
	}
	if other == first {
		t.Fatalf("expected different values to render differently")
	}
}

func TestCreateBarcodeRejectsEmpty(t *testing.T) {
	if _, err := NewGenerator().CreateBarcode("  "); err == nil {
		t.Fatalf("expected error for empty value")
	}
}

func TestRenderSVGMergesRuns(t *testing.T) {
	svg := renderSVG([][]bool{{true, true, false, true}}, 2)
	if !strings.Contains(svg, "M0 0h4v2h-4z") || !strings.Contains(svg, "M6 0h2v2h-2z") {
		t.Fatalf("unexpected path data %s", svg)
	}
}
