package services

import "github.com/shopspring/decimal"

// MinorUnits is the number of decimal places amounts are settled in.
const MinorUnits = 2

var hundred = decimal.NewFromInt(100)

// RoundMinor rounds half-up to the minor currency unit. Amounts here are never
// negative, so shopspring's half-away-from-zero rounding is half-up.
func RoundMinor(d decimal.Decimal) decimal.Decimal {
	return d.Round(MinorUnits)
}

// PercentOf returns amount × percent / 100 rounded to the minor unit.
func PercentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return RoundMinor(amount.Mul(percent).Div(hundred))
}
