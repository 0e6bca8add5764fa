// Package pricing holds the money rules shared by carts, checkout and revenue reports.
// Amounts are integer cents unless a function says otherwise.
package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	hundred    = decimal.NewFromInt(100)
	adminShare = decimal.RequireFromString("0.10")
)

// ClampDiscount limits a discount percentage to [0, 100].
func ClampDiscount(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// ValidDiscount reports whether p is acceptable listing input.
func ValidDiscount(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 100
}

func discounted(base decimal.Decimal, discountPercentage float64) decimal.Decimal {
	d := ClampDiscount(discountPercentage)
	if d <= 0 {
		return base.Round(2)
	}
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(d).Div(hundred))
	return base.Mul(factor).Round(2)
}

// ComputePrice applies a percentage discount to a price in major units,
// rounded half away from zero to two decimals.
func ComputePrice(basePrice, discountPercentage float64) float64 {
	return discounted(decimal.NewFromFloat(basePrice), discountPercentage).InexactFloat64()
}

// FinalPriceCents is ComputePrice on minor units.
func FinalPriceCents(baseCents int64, discountPercentage float64) int64 {
	return discounted(decimal.New(baseCents, -2), discountPercentage).Shift(2).IntPart()
}

// IsValidTopUpAmount accepts positive whole amounts that are multiples of 10.
func IsValidTopUpAmount(amount float64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 || amount != math.Trunc(amount) {
		return false
	}
	return math.Mod(amount, 10) == 0
}

func IsValidTopUpCents(cents int64) bool {
	return cents > 0 && cents%1000 == 0
}

// SplitRevenue divides gross settled revenue 90/10 between coach and platform.
// The platform share is rounded and the coach gets the remainder, so the parts
// always sum to gross.
func SplitRevenue(grossCents int64) (coachCents, adminCents int64) {
	adminCents = decimal.NewFromInt(grossCents).Mul(adminShare).Round(0).IntPart()
	return grossCents - adminCents, adminCents
}

// ToCents converts major units to cents, rounding half away from zero.
func ToCents(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}

// Format renders cents as "90.00".
func Format(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// FloorUnits returns whole major units, used for loyalty points.
func FloorUnits(cents int64) int64 {
	if cents <= 0 {
		return 0
	}
	return cents / 100
}

// ParseAmount converts a gateway amount such as "90.00" to cents. Fractions of
// a cent are rejected.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has fractional cents", s)
	}
	return cents.IntPart(), nil
}
