// Package model defines the core domain types shared across the marketplace engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Share counts are whole units and use int64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus is the lifecycle state of a sell listing.
// Sold, Expired, and Cancelled are terminal: a listing never leaves them.
type ListingStatus string

const (
	StatusActive          ListingStatus = "active"
	StatusPartiallyFilled ListingStatus = "partially_filled"
	StatusSold            ListingStatus = "sold"
	StatusExpired         ListingStatus = "expired"
	StatusCancelled       ListingStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ListingStatus) Terminal() bool {
	return s == StatusSold || s == StatusExpired || s == StatusCancelled
}

// Open reports whether the listing can still accept fills.
func (s ListingStatus) Open() bool {
	return s == StatusActive || s == StatusPartiallyFilled
}

// Asset is one tokenized luxury asset (jet, yacht, car) with a fixed
// share supply. ReferencePrice is display-only: trades always settle at
// the listing's fixed price.
type Asset struct {
	ID             string          `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Category       string          `json:"category" db:"category"` // "jet", "yacht", "car"
	TotalShares    int64           `json:"total_shares" db:"total_shares"`
	ReferencePrice decimal.Decimal `json:"reference_price" db:"reference_price"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// HoldingPosition is one investor's aggregate stake in one asset.
// A position with TotalShares == 0 is logically empty but retained for
// audit history; positions are zeroed, never deleted.
type HoldingPosition struct {
	InvestorID     string          `json:"investor_id" db:"investor_id"`
	AssetID        string          `json:"asset_id" db:"asset_id"`
	TotalShares    int64           `json:"total_shares" db:"total_shares"`
	TotalCostBasis decimal.Decimal `json:"total_cost_basis" db:"total_cost_basis"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// AveragePrice returns TotalCostBasis / TotalShares, or zero for an
// empty position (average price is undefined at zero shares).
func (p HoldingPosition) AveragePrice() decimal.Decimal {
	if p.TotalShares <= 0 {
		return decimal.Zero
	}
	return p.TotalCostBasis.Div(decimal.NewFromInt(p.TotalShares))
}

// Listing is a seller's open offer to sell a bounded quantity of shares
// of one asset at a fixed unit price.
// Invariant: 0 <= SharesRemaining <= SharesOffered, and Status is Sold
// iff SharesRemaining == 0.
type Listing struct {
	ID              string          `json:"id" db:"id"`
	SellerID        string          `json:"seller_id" db:"seller_id"`
	AssetID         string          `json:"asset_id" db:"asset_id"`
	SharesOffered   int64           `json:"shares_offered" db:"shares_offered"`
	SharesRemaining int64           `json:"shares_remaining" db:"shares_remaining"`
	PricePerShare   decimal.Decimal `json:"price_per_share" db:"price_per_share"`
	Status          ListingStatus   `json:"status" db:"status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at" db:"expires_at"`
}

// Trade is an immutable record of one executed purchase against a
// listing. Once created these are never modified or deleted; they form
// the audit trail behind the holdings ledger.
type Trade struct {
	ID                  string          `json:"id" db:"id"`
	ListingID           string          `json:"listing_id" db:"listing_id"`
	AssetID             string          `json:"asset_id" db:"asset_id"`
	SellerID            string          `json:"seller_id" db:"seller_id"`
	BuyerID             string          `json:"buyer_id" db:"buyer_id"`
	SharesTraded        int64           `json:"shares_traded" db:"shares_traded"`
	PricePerShare       decimal.Decimal `json:"price_per_share" db:"price_per_share"`
	TotalAmount         decimal.Decimal `json:"total_amount" db:"total_amount"`
	PlatformFee         decimal.Decimal `json:"platform_fee" db:"platform_fee"`
	SellerProceeds      decimal.Decimal `json:"seller_proceeds" db:"seller_proceeds"`
	IdempotencyKey      string          `json:"idempotency_key" db:"idempotency_key"`
	SettlementReference string          `json:"settlement_reference" db:"settlement_reference"`
	ExecutedAt          time.Time       `json:"executed_at" db:"executed_at"`
}

// PositionView is a display projection of one holding: average price,
// ownership share of total supply, and unrealized P/L against the
// asset's reference price.
type PositionView struct {
	InvestorID     string          `json:"investor_id"`
	AssetID        string          `json:"asset_id"`
	AssetName      string          `json:"asset_name"`
	TotalShares    int64           `json:"total_shares"`
	TotalCostBasis decimal.Decimal `json:"total_cost_basis"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	OwnershipPct   decimal.Decimal `json:"ownership_pct"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	MarketValue    decimal.Decimal `json:"market_value"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
}

// Portfolio aggregates all of an investor's positions with totals.
type Portfolio struct {
	InvestorID string          `json:"investor_id"`
	Positions  []PositionView  `json:"positions"`
	TotalValue decimal.Decimal `json:"total_value"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	TotalPnL   decimal.Decimal `json:"total_pnl"`
}
