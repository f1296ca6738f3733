// Package pricing implements the fee-adjusted constant-product formula used by
// every exchange pool, along with the checked proportional arithmetic the
// share ledger needs.
package pricing

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// fee: 1% => multiplier 99/100, taken from the input side
var (
	feeMul = uint256.NewInt(99)
	feeDen = uint256.NewInt(100)
)

var (
	// ErrDegenerateReserves is returned when a price is requested against an empty reserve.
	ErrDegenerateReserves = errors.New("degenerate reserves")
	// ErrOverflow is returned when an intermediate product does not fit in 256 bits.
	ErrOverflow = errors.New("arithmetic overflow")
)

// GetAmount returns the output amount for selling inputAmount into a pool
// holding inputReserve / outputReserve:
//
//	floor(inputAmount*99*outputReserve / (inputReserve*100 + inputAmount*99))
//
// The result is always strictly less than outputReserve.
func GetAmount(inputAmount, inputReserve, outputReserve *uint256.Int) (*uint256.Int, error) {
	if inputAmount == nil || inputReserve == nil || outputReserve == nil {
		return nil, fmt.Errorf("%w: nil operand", ErrDegenerateReserves)
	}
	if inputReserve.IsZero() || outputReserve.IsZero() {
		return nil, fmt.Errorf("%w: input %s output %s", ErrDegenerateReserves, inputReserve.Dec(), outputReserve.Dec())
	}

	inputWithFee, overflow := new(uint256.Int).MulOverflow(inputAmount, feeMul)
	if overflow {
		return nil, fmt.Errorf("%w: input amount with fee", ErrOverflow)
	}
	numerator, overflow := new(uint256.Int).MulOverflow(inputWithFee, outputReserve)
	if overflow {
		return nil, fmt.Errorf("%w: numerator", ErrOverflow)
	}
	denominator, overflow := new(uint256.Int).MulOverflow(inputReserve, feeDen)
	if overflow {
		return nil, fmt.Errorf("%w: scaled reserve", ErrOverflow)
	}
	if _, overflow = denominator.AddOverflow(denominator, inputWithFee); overflow {
		return nil, fmt.Errorf("%w: denominator", ErrOverflow)
	}

	return numerator.Div(numerator, denominator), nil
}

// MulDiv returns floor(x*y/d). The product is checked against 256 bits before
// dividing, so the overflow behaviour matches checked contract arithmetic.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: zero divisor", ErrDegenerateReserves)
	}
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return product.Div(product, d), nil
}

// Add returns x+y or ErrOverflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return sum, nil
}
