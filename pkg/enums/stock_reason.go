package enums

import "fmt"

// StockReason discriminates stock ledger rows.
type StockReason string

const (
	StockReasonSale    StockReason = "sale"
	StockReasonRestock StockReason = "restock"
	StockReasonReturn  StockReason = "return"
)

var validStockReasons = []StockReason{
	StockReasonSale,
	StockReasonRestock,
	StockReasonReturn,
}

// String implements fmt.Stringer.
func (r StockReason) String() string {
	return string(r)
}

// IsValid reports whether the value matches the stock_reason enum.
func (r StockReason) IsValid() bool {
	for _, candidate := range validStockReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseStockReason converts raw input into StockReason.
func ParseStockReason(value string) (StockReason, error) {
	for _, candidate := range validStockReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock reason %q", value)
}
