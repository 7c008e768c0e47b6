package storage

import (
	"fmt"
	"path"
	"strings"
)

// AssetPurpose decides where in the bucket an asset lives.
type AssetPurpose string

const (
	PurposeProductImage AssetPurpose = "product-image"
	PurposeProductDoc   AssetPurpose = "product-doc"
	// PurposeCopy holds assets copied during duplication, before the new product has a key.
	PurposeCopy AssetPurpose = "copy"
)

type PathParams struct {
	ProductKey string
	AssetID    string
	FileName   string
}

// BuildObjectPath lays out object names as
//
//	assets/products/{productKey}/images/{assetID}/{file}
//	assets/products/{productKey}/docs/{assetID}/{file}
//	assets/copies/{assetID}/{file}
//
// Every part must be a single path segment.
func BuildObjectPath(purpose AssetPurpose, p PathParams) (string, error) {
	var parts []string
	switch purpose {
	case PurposeProductImage, PurposeProductDoc:
		folder := "images"
		if purpose == PurposeProductDoc {
			folder = "docs"
		}
		parts = []string{"assets", "products", p.ProductKey, folder, p.AssetID, p.FileName}
		if err := checkSegments(map[string]string{"productKey": p.ProductKey, "assetID": p.AssetID, "fileName": p.FileName}); err != nil {
			return "", err
		}
	case PurposeCopy:
		parts = []string{"assets", "copies", p.AssetID, p.FileName}
		if err := checkSegments(map[string]string{"assetID": p.AssetID, "fileName": p.FileName}); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("storage: unsupported asset purpose %q", purpose)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return path.Join(parts...), nil
}

func checkSegments(segments map[string]string) error {
	for name, value := range segments {
		value = strings.TrimSpace(value)
		switch {
		case value == "":
			return fmt.Errorf("storage: %s is required", name)
		case strings.ContainsAny(value, `/\`) || strings.Contains(value, ".."):
			return fmt.Errorf("storage: %s %q is not a single path segment", name, value)
		}
	}
	return nil
}
