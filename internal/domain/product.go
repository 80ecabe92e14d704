package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ThresholdDisabled marks catalog entries excluded from stock monitoring.
const ThresholdDisabled int64 = -1

// Product is one monitored catalog entry.
// Params: unique product name and alert threshold.
// Returns: immutable catalog record loaded at startup.
type Product struct {
	Name      string `toml:"name" json:"name"`
	Threshold int64  `toml:"threshold" json:"threshold"`
}

// Monitored reports whether product participates in threshold checks.
// Params: none.
// Returns: false when threshold carries the disabled sentinel.
func (p Product) Monitored() bool {
	return p.Threshold != ThresholdDisabled
}

// ValidateCatalog validates the ordered monitored-product catalog.
// Params: catalog slice in configuration order.
// Returns: validation error for empty catalog, blank names, or duplicates.
func ValidateCatalog(catalog []Product) error {
	if len(catalog) == 0 {
		return errors.New("catalog must contain at least one product")
	}
	seen := make(map[string]struct{}, len(catalog))
	for i, product := range catalog {
		name := strings.TrimSpace(product.Name)
		if name == "" {
			return fmt.Errorf("product[%d]: name is required", i)
		}
		if name != product.Name {
			return fmt.Errorf("product[%d]: name %q must not carry surrounding whitespace", i, product.Name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("product[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
		if product.Threshold < ThresholdDisabled {
			return fmt.Errorf("product[%d]: threshold %d is below the disabled sentinel %d", i, product.Threshold, ThresholdDisabled)
		}
	}
	return nil
}
