package dex

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseUnits converts a decimal string such as "0.000001" into an integer
// scaled by decimals. Values with more fractional digits than decimals are
// rejected.
func ParseUnits(value string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", value)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q exceeds %d decimals", value, decimals)
	}
	return scaled.BigInt(), nil
}

// ParseGwei converts a gwei decimal string into wei.
func ParseGwei(value string) (*big.Int, error) {
	return ParseUnits(value, 9)
}

// FormatUnits renders a scaled integer for display only.
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// FormatFixed renders a scaled integer rounded down to places decimals.
func FormatFixed(amount *big.Int, decimals uint8, places int32) string {
	if amount == nil {
		return decimal.Zero.StringFixed(places)
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).Truncate(places).StringFixed(places)
}
