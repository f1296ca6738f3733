// Package units converts between human decimal amounts ("1.5") and raw
// 256-bit integer amounts scaled by a token's decimals.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DefaultDecimals matches the base asset and every simulated token.
const DefaultDecimals = 18

// MaxDecimals keeps 10^decimals within 256 bits.
const MaxDecimals = 77

// maxDigits is the decimal length of the largest uint256.
const maxDigits = 78

var (
	ErrNegative  = errors.New("negative amount")
	ErrPrecision = errors.New("amount has more fractional digits than decimals")
	ErrRange     = errors.New("amount does not fit in 256 bits")
)

// Parse reads a decimal amount and scales it by 10^decimals. A "raw:"
// prefix takes the integer as already scaled.
func Parse(s string, decimals uint8) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if raw, ok := strings.CutPrefix(s, "raw:"); ok {
		v, err := uint256.FromDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("parse raw amount %q: %w", raw, err)
		}
		return v, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("parse amount %q: %w", s, ErrNegative)
	}
	if d.IsZero() {
		return new(uint256.Int), nil
	}
	// bound the exponent before any rescaling allocates 10^exp
	digits := int64(len(d.Coefficient().String()))
	exp := int64(d.Exponent()) + int64(decimals)
	if exp >= 0 && digits+exp > maxDigits {
		return nil, fmt.Errorf("parse amount %q: %w", s, ErrRange)
	}
	if exp < 0 && -exp > digits {
		return nil, fmt.Errorf("parse amount %q: %w (%d)", s, ErrPrecision, decimals)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("parse amount %q: %w (%d)", s, ErrPrecision, decimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("parse amount %q: %w", s, ErrRange)
	}
	return v, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string, decimals uint8) *uint256.Int {
	v, err := Parse(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// Decimal returns v / 10^decimals without losing precision.
func Decimal(v *uint256.Int, decimals uint8) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals))
}

// Format renders v as a decimal string with trailing zeros trimmed.
func Format(v *uint256.Int, decimals uint8) string {
	return Decimal(v, decimals).String()
}

// FormatString is Format for raw integer strings as stored in events and
// metrics rows. Unparseable input is returned unchanged.
func FormatString(raw string, decimals uint8) string {
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return raw
	}
	return Format(v, decimals)
}
