package model

import "github.com/shopspring/decimal"

// PriceTolerance is the largest difference accepted between a declared and a
// computed amount.
var PriceTolerance = decimal.RequireFromString("0.01")

// WithinTolerance reports whether a and b differ by at most PriceTolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(PriceTolerance)
}

// RoundPrice rounds to the two decimals exposed at the API boundary.
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

type BulkItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}
