// Package store defines the persistence interface for the marketplace
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aerolux/marketplace-engine/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a guarded write loses a race — e.g.
	// the fill commit's conditional shares_remaining decrement matched no
	// row because another fill got there first. Callers re-read and
	// reattempt once.
	ErrConflict = errors.New("store: concurrent update conflict")

	// ErrDuplicate is returned when inserting a row whose unique key
	// already exists.
	ErrDuplicate = errors.New("store: duplicate")
)

// FillCommit is the atomic unit of work for one settled trade: the
// listing after ReduceOnFill, both updated positions, and the immutable
// trade record. Either all four persist or none do.
//
// PrevSharesRemaining is the listing's shares_remaining the engine
// observed before reducing; implementations use it as a compare-and-swap
// guard and return ErrConflict on mismatch.
type FillCommit struct {
	Listing             *model.Listing
	PrevSharesRemaining int64
	SellerPosition      *model.HoldingPosition
	BuyerPosition       *model.HoldingPosition
	Trade               *model.Trade
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Asset registry ---

	// CreateAsset persists a new tokenized asset. A non-nil seed — the
	// initial allocation of the full supply — is persisted in the same
	// unit of work, so an asset never exists with a supply no one owns.
	CreateAsset(ctx context.Context, a *model.Asset, seed *model.HoldingPosition) error

	// GetAsset retrieves an asset by ID.
	GetAsset(ctx context.Context, id string) (*model.Asset, error)

	// ListAssets returns all assets.
	ListAssets(ctx context.Context) ([]model.Asset, error)

	// UpdateReferencePrice sets the display-only reference price.
	UpdateReferencePrice(ctx context.Context, assetID string, price decimal.Decimal) error

	// --- Listings ---

	// CreateListing persists a new active listing.
	CreateListing(ctx context.Context, l *model.Listing) error

	// GetListing retrieves a listing by ID.
	GetListing(ctx context.Context, id string) (*model.Listing, error)

	// ListListings returns listings, optionally filtered by asset and/or
	// seller; openOnly restricts to Active/PartiallyFilled.
	ListListings(ctx context.Context, assetID, sellerID string, openOnly bool) ([]model.Listing, error)

	// UpdateListing persists a status/remaining-shares transition made
	// outside the fill path (cancel, expire).
	UpdateListing(ctx context.Context, l *model.Listing) error

	// SweepExpired transitions every open listing past its expiry to
	// Expired and returns the listings it swept. Idempotent.
	SweepExpired(ctx context.Context, now time.Time) ([]model.Listing, error)

	// --- Holdings ledger ---

	// GetPosition returns the investor's position in an asset, or a
	// zeroed position if none exists (never ErrNotFound).
	GetPosition(ctx context.Context, investorID, assetID string) (*model.HoldingPosition, error)

	// UpsertPosition persists a position outside the fill path (seeding
	// initial allocations).
	UpsertPosition(ctx context.Context, p *model.HoldingPosition) error

	// ListPositionsByInvestor returns all of an investor's positions.
	ListPositionsByInvestor(ctx context.Context, investorID string) ([]model.HoldingPosition, error)

	// ListPositionsByAsset returns every investor's position in an asset.
	ListPositionsByAsset(ctx context.Context, assetID string) ([]model.HoldingPosition, error)

	// --- Trade settlement ---

	// ApplyFill atomically persists the listing update, both position
	// updates, and the trade insert. Returns ErrConflict if the listing's
	// shares_remaining no longer matches PrevSharesRemaining.
	ApplyFill(ctx context.Context, commit FillCommit) error

	// GetTradeByIdempotencyKey returns a previously committed trade for
	// the key, or ErrNotFound.
	GetTradeByIdempotencyKey(ctx context.Context, key string) (*model.Trade, error)

	// GetTradesByListing returns all trades against a listing.
	GetTradesByListing(ctx context.Context, listingID string) ([]model.Trade, error)

	// GetTradesByInvestor returns all trades where the investor was buyer
	// or seller.
	GetTradesByInvestor(ctx context.Context, investorID string) ([]model.Trade, error)
}
