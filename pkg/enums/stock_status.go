package enums

import "fmt"

// StockStatus describes the derived availability of a product.
type StockStatus string

const (
	StockStatusAvailable  StockStatus = "AVAILABLE"
	StockStatusOutOfStock StockStatus = "OUT_OF_STOCK"
)

var validStockStatuses = []StockStatus{
	StockStatusAvailable,
	StockStatusOutOfStock,
}

// StockStatusForQty derives the stock status from an on-hand quantity.
func StockStatusForQty(qty int) StockStatus {
	if qty > 0 {
		return StockStatusAvailable
	}
	return StockStatusOutOfStock
}

// IsValid reports whether the value matches the canonical stock status enum.
func (s StockStatus) IsValid() bool {
	for _, candidate := range validStockStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStockStatus converts the raw string to StockStatus.
func ParseStockStatus(value string) (StockStatus, error) {
	for _, candidate := range validStockStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock status %q", value)
}
