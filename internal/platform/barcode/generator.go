// Package barcode renders variant identifiers as scannable SVG codes.
package barcode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

const defaultModuleSize = 4

// Generator renders QR codes as SVG. Output depends only on the input value.
type Generator struct {
	level      qrcode.RecoveryLevel
	moduleSize int
}

// Option customises Generator behaviour.
type Option func(*Generator)

// WithRecoveryLevel overrides the error correction level (default Medium).
func WithRecoveryLevel(level qrcode.RecoveryLevel) Option {
	return func(g *Generator) {
		g.level = level
	}
}

// WithModuleSize sets the SVG units drawn per QR module.
func WithModuleSize(size int) Option {
	return func(g *Generator) {
		if size > 0 {
			g.moduleSize = size
		}
	}
}

// NewGenerator constructs a Generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{level: qrcode.Medium, moduleSize: defaultModuleSize}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// CreateBarcode encodes value and returns the SVG document.
func (g *Generator) CreateBarcode(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New("barcode: value is required")
	}
	code, err := qrcode.New(value, g.level)
	if err != nil {
		return "", fmt.Errorf("barcode: encode %q: %w", value, err)
	}
	return renderSVG(code.Bitmap(), g.moduleSize), nil
}

// renderSVG draws each dark module as a unit square path segment. Horizontal runs are merged.
func renderSVG(bitmap [][]bool, module int) string {
	size := len(bitmap) * module
	var path strings.Builder
	for y, row := range bitmap {
		for x := 0; x < len(row); {
			if !row[x] {
				x++
				continue
			}
			start := x
			for x < len(row) && row[x] {
				x++
			}
			fmt.Fprintf(&path, "M%d %dh%dv%dh-%dz", start*module, y*module, (x-start)*module, module, (x-start)*module)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="%d" height="%d" shape-rendering="crispEdges">`, size, size, size, size)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#fff"/>`, size, size)
	fmt.Fprintf(&b, `<path fill="#000" d="%s"/>`, path.String())
	b.WriteString(`</svg>`)
	return b.String()
}
