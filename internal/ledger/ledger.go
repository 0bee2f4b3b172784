// Package ledger implements the holdings-ledger arithmetic: how an
// investor's aggregate position in one asset changes on a confirmed
// purchase or sale, and how many shares are free to list.
//
// The package is pure — positions are passed in and returned, never
// stored here. Durable state lives in the store; the trade engine applies
// these functions inside its atomic unit of work so the ledger and the
// listing can never diverge.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aerolux/marketplace-engine/internal/model"
)

var (
	// ErrInvalidQuantity is returned when a mutation is requested with a
	// non-positive share count.
	ErrInvalidQuantity = errors.New("ledger: share quantity must be positive")

	// ErrInsufficientShares is returned when a sale would take a position
	// below zero shares.
	ErrInsufficientShares = errors.New("ledger: insufficient shares")
)

// ApplyPurchase returns the position after buying `shares` for
// `totalCost`. Average price re-derives from the accumulated cost basis,
// so repeated purchases at different prices produce the weighted average.
func ApplyPurchase(pos model.HoldingPosition, shares int64, totalCost decimal.Decimal, now time.Time) (model.HoldingPosition, error) {
	if shares <= 0 {
		return pos, fmt.Errorf("%w: got %d", ErrInvalidQuantity, shares)
	}
	if totalCost.IsNegative() {
		return pos, fmt.Errorf("%w: negative cost %s", ErrInvalidQuantity, totalCost)
	}

	pos.TotalShares += shares
	pos.TotalCostBasis = pos.TotalCostBasis.Add(totalCost)
	pos.UpdatedAt = now
	return pos, nil
}

// ApplySale returns the position after selling `shares`. The cost basis
// is reduced proportionally — costBasis * (1 - shares/totalShares) — so
// the average price of the remaining shares is unchanged. Selling the
// entire position zeroes the cost basis exactly.
func ApplySale(pos model.HoldingPosition, shares int64, now time.Time) (model.HoldingPosition, error) {
	if shares <= 0 {
		return pos, fmt.Errorf("%w: got %d", ErrInvalidQuantity, shares)
	}
	if shares > pos.TotalShares {
		return pos, fmt.Errorf("%w: selling %d, own %d", ErrInsufficientShares, shares, pos.TotalShares)
	}

	if shares == pos.TotalShares {
		pos.TotalCostBasis = decimal.Zero
	} else {
		remaining := decimal.NewFromInt(pos.TotalShares - shares).
			Div(decimal.NewFromInt(pos.TotalShares))
		pos.TotalCostBasis = pos.TotalCostBasis.Mul(remaining)
	}
	pos.TotalShares -= shares
	pos.UpdatedAt = now
	return pos, nil
}

// FreeShares returns totalShares minus reservedShares, clamped at zero.
// Reserved shares are those committed to the seller's other open
// listings; the caller derives that sum from current listing state rather
// than a stored counter.
func FreeShares(totalShares, reservedShares int64) int64 {
	free := totalShares - reservedShares
	if free < 0 {
		return 0
	}
	return free
}
