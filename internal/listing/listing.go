// Package listing implements the sell-listing lifecycle: creation
// validation, cancellation, fill accounting, and expiry.
//
// Listings move Active → PartiallyFilled → Sold, or terminate early as
// Expired or Cancelled. Terminal states are final: no function here will
// transition a listing out of Sold, Expired, or Cancelled.
package listing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aerolux/marketplace-engine/internal/model"
)

// Expiry bounds for new listings, in days.
const (
	MinExpiryDays = 1
	MaxExpiryDays = 90
)

var (
	// ErrInvalidQuantity is returned when sharesOffered is not positive.
	ErrInvalidQuantity = errors.New("listing: shares offered must be positive")

	// ErrInvalidPrice is returned when pricePerShare is not positive.
	ErrInvalidPrice = errors.New("listing: price per share must be positive")

	// ErrInvalidExpiry is returned when the expiry window is outside
	// [MinExpiryDays, MaxExpiryDays].
	ErrInvalidExpiry = errors.New("listing: expiry days out of range")

	// ErrInsufficientShares is returned when the seller's free balance
	// cannot cover the shares offered.
	ErrInsufficientShares = errors.New("listing: insufficient free shares")

	// ErrNotOwner is returned when someone other than the seller attempts
	// to cancel a listing.
	ErrNotOwner = errors.New("listing: requester is not the seller")

	// ErrInvalidState is returned for operations against a listing in a
	// terminal state.
	ErrInvalidState = errors.New("listing: listing is closed")

	// ErrExpired is returned for fills against a listing past its expiry.
	ErrExpired = errors.New("listing: listing has expired")

	// ErrOverfill is returned when a fill exceeds the shares remaining.
	ErrOverfill = errors.New("listing: fill exceeds shares remaining")
)

// New validates inputs against the seller's free balance and returns an
// Active listing. freeShares must already be net of shares reserved in
// the seller's other open listings for the same asset — the caller
// computes that sum under its mutation lock so two listings can never
// both claim the same shares.
func New(sellerID, assetID string, sharesOffered int64, pricePerShare decimal.Decimal, expiresInDays int, freeShares int64, now time.Time) (*model.Listing, error) {
	if sharesOffered <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, sharesOffered)
	}
	if pricePerShare.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidPrice, pricePerShare)
	}
	if expiresInDays < MinExpiryDays || expiresInDays > MaxExpiryDays {
		return nil, fmt.Errorf("%w: got %d days, allowed %d-%d", ErrInvalidExpiry, expiresInDays, MinExpiryDays, MaxExpiryDays)
	}
	if sharesOffered > freeShares {
		return nil, fmt.Errorf("%w: offering %d, %d free", ErrInsufficientShares, sharesOffered, freeShares)
	}

	return &model.Listing{
		ID:              uuid.New().String(),
		SellerID:        sellerID,
		AssetID:         assetID,
		SharesOffered:   sharesOffered,
		SharesRemaining: sharesOffered,
		PricePerShare:   pricePerShare,
		Status:          model.StatusActive,
		CreatedAt:       now,
		ExpiresAt:       now.AddDate(0, 0, expiresInDays),
	}, nil
}

// Cancel transitions an open listing to Cancelled. Only the seller may
// cancel. No ledger change is needed: holdings were never decremented at
// listing time, the remaining shares simply stop being reserved.
func Cancel(l model.Listing, requesterID string) (model.Listing, error) {
	if requesterID != l.SellerID {
		return l, ErrNotOwner
	}
	if l.Status.Terminal() {
		return l, fmt.Errorf("%w: status %s", ErrInvalidState, l.Status)
	}
	l.Status = model.StatusCancelled
	return l, nil
}

// ReduceOnFill decrements SharesRemaining after a settled fill and moves
// the status to Sold when the listing is exhausted, PartiallyFilled
// otherwise. Invoked only by the trade engine inside its atomic commit.
func ReduceOnFill(l model.Listing, sharesFilled int64) (model.Listing, error) {
	if l.Status.Terminal() {
		return l, fmt.Errorf("%w: status %s", ErrInvalidState, l.Status)
	}
	if sharesFilled <= 0 {
		return l, fmt.Errorf("%w: got %d", ErrInvalidQuantity, sharesFilled)
	}
	if sharesFilled > l.SharesRemaining {
		return l, fmt.Errorf("%w: requested %d, only %d remain", ErrOverfill, sharesFilled, l.SharesRemaining)
	}

	l.SharesRemaining -= sharesFilled
	if l.SharesRemaining == 0 {
		l.Status = model.StatusSold
	} else {
		l.Status = model.StatusPartiallyFilled
	}
	return l, nil
}

// IsExpired reports whether an open listing is past its expiry and
// should be swept to Expired. Terminal listings are never expired again.
func IsExpired(l model.Listing, now time.Time) bool {
	return l.Status.Open() && now.After(l.ExpiresAt)
}

// Expire transitions an open, past-expiry listing to Expired. It is a
// no-op (returning the listing unchanged and false) when the listing is
// terminal or not yet due, which makes repeated sweeps idempotent.
func Expire(l model.Listing, now time.Time) (model.Listing, bool) {
	if !IsExpired(l, now) {
		return l, false
	}
	l.Status = model.StatusExpired
	return l, true
}
