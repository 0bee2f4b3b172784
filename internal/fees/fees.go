// Package fees implements the platform's fee and pricing policy for
// fractional-share trades: the trading fee on each fill, the seller's
// net proceeds, and ownership-percentage math.
//
// Everything here is a pure function of its inputs — no state, no I/O.
// All monetary values use shopspring/decimal — never float64 for money.
package fees

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidInput is returned for non-positive supplies or rates that
	// make the requested computation undefined.
	ErrInvalidInput = errors.New("fees: invalid input")

	// ErrInvalidRate is returned when constructing a policy with a fee
	// rate outside [0, 1).
	ErrInvalidRate = errors.New("fees: fee rate must be in [0, 1)")
)

// CurrencyScale is the number of decimal places of the settlement
// currency's minimum unit (cents).
const CurrencyScale int32 = 2

// DefaultFeeRate is the platform trading fee: 2.5% of the gross amount.
var DefaultFeeRate = decimal.NewFromFloat(0.025)

// Policy computes fees and proceeds at a fixed rate. It is stateless;
// amounts are passed as arguments, not stored.
type Policy struct {
	rate decimal.Decimal
}

// NewPolicy creates a fee policy with the given rate (fraction of gross,
// e.g. 0.025 for 2.5%).
func NewPolicy(rate decimal.Decimal) (*Policy, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, ErrInvalidRate
	}
	return &Policy{rate: rate}, nil
}

// DefaultPolicy returns a policy at DefaultFeeRate.
func DefaultPolicy() *Policy {
	return &Policy{rate: DefaultFeeRate}
}

// Rate returns the fee rate.
func (p *Policy) Rate() decimal.Decimal {
	return p.rate
}

// ComputeFee returns the platform fee on a gross trade amount, rounded
// half-up to the currency's minimum unit. decimal.Round rounds half away
// from zero, which is half-up for the non-negative amounts traded here.
func (p *Policy) ComputeFee(totalAmount decimal.Decimal) decimal.Decimal {
	return totalAmount.Mul(p.rate).Round(CurrencyScale)
}

// ProceedsAfterFee returns the seller's net proceeds: total minus fee.
// ProceedsAfterFee(x) + ComputeFee(x) == x exactly, since proceeds are
// defined as the remainder after the rounded fee.
func (p *Policy) ProceedsAfterFee(totalAmount decimal.Decimal) decimal.Decimal {
	return totalAmount.Sub(p.ComputeFee(totalAmount))
}

// OwnershipPercentage returns shares / totalSupply * 100, rounded to
// four decimal places. Fails with ErrInvalidInput when totalSupply <= 0.
func OwnershipPercentage(shares, totalSupply int64) (decimal.Decimal, error) {
	if totalSupply <= 0 {
		return decimal.Zero, ErrInvalidInput
	}
	pct := decimal.NewFromInt(shares).
		Div(decimal.NewFromInt(totalSupply)).
		Mul(decimal.NewFromInt(100))
	return pct.Round(4), nil
}

// GrossAmount returns shares * pricePerShare. Shares are whole units so
// no rounding is introduced beyond the price's own scale.
func GrossAmount(shares int64, pricePerShare decimal.Decimal) decimal.Decimal {
	return pricePerShare.Mul(decimal.NewFromInt(shares))
}
