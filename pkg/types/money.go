package types

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/casperflow/pkg/errs"
)

// MotesPerCSPR is the number of motes in one CSPR.
const MotesPerCSPR = 1_000_000_000

var motesPerCSPR = decimal.NewFromInt(MotesPerCSPR)

// Motes is an amount in the smallest Casper currency unit.
type Motes int64

// CSPR renders the amount in whole CSPR with up to 9 decimals.
func (m Motes) CSPR() string {
	return decimal.NewFromInt(int64(m)).Div(motesPerCSPR).String()
}

// ParseCSPR converts a decimal CSPR string to motes, truncating sub-mote digits.
func ParseCSPR(s string) (Motes, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return Motes(d.Mul(motesPerCSPR).Truncate(0).IntPart()), nil
}

// MaxMotes is the largest amount a Motes value can hold.
var MaxMotes = decimal.NewFromInt(math.MaxInt64)

// MulMotes multiplies two non-negative amounts, failing with
// errs.ErrAmountOverflow instead of wrapping.
func MulMotes(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, errs.Invalidf("negative amount in %d * %d", a, b)
	}
	if a != 0 && b > math.MaxInt64/a {
		return 0, errs.ErrAmountOverflow.Withf("%d * %d overflows", a, b)
	}
	return a * b, nil
}

// AddMotes adds two non-negative amounts, failing with
// errs.ErrAmountOverflow instead of wrapping.
func AddMotes(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, errs.Invalidf("negative amount in %d + %d", a, b)
	}
	if a > math.MaxInt64-b {
		return 0, errs.ErrAmountOverflow.Withf("%d + %d overflows", a, b)
	}
	return a + b, nil
}
