package types

import "github.com/shopspring/decimal"

// Amount is a monetary value in minor currency units. All engine math stays
// in integers; decimals appear only at the response edge.
type Amount = int64

// FormatAmount renders a minor-unit amount as a fixed two-decimal string for
// API payloads.
func FormatAmount(a Amount) string {
	return decimal.NewFromInt(a).Shift(-2).StringFixed(2)
}
