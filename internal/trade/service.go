// Package trade provides the HTTP handlers and business logic for the
// fractional-share marketplace: creating and cancelling listings,
// executing trades, and querying portfolios and trade history.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aerolux/marketplace-engine/internal/fees"
	"github.com/aerolux/marketplace-engine/internal/ledger"
	"github.com/aerolux/marketplace-engine/internal/listing"
	"github.com/aerolux/marketplace-engine/internal/metrics"
	"github.com/aerolux/marketplace-engine/internal/model"
	"github.com/aerolux/marketplace-engine/internal/settlement"
	"github.com/aerolux/marketplace-engine/internal/store"
)

// ErrInconsistentCommit is returned when the fill's atomic unit of work
// failed after the external transfer already settled. It signals a
// datastore bug, not a user error, and must reach operators.
var ErrInconsistentCommit = errors.New("trade: fill commit failed after settlement")

// Service handles marketplace operations. A mutex serializes the
// mutating paths (create/cancel listing, execute trade) so free-share
// checks and fills never interleave (single-instance). The store's
// conditional fill commit is the backstop for horizontal scaling.
type Service struct {
	store    store.Store
	executor settlement.TransferExecutor
	fees     *fees.Policy
	mu       sync.Mutex
	wsHub    *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new marketplace service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, executor settlement.TransferExecutor, policy *fees.Policy, hub *WSHub) *Service {
	if policy == nil {
		policy = fees.DefaultPolicy()
	}
	return &Service{
		store:    st,
		executor: executor,
		fees:     policy,
		wsHub:    hub,
	}
}

// --- Request/Response types ---

// CreateAssetRequest is the JSON body for asset registration.
// InitialOwnerID, when set, seeds the full share supply into that
// investor's position at the reference price.
type CreateAssetRequest struct {
	Name           string          `json:"name"`
	Category       string          `json:"category"` // "jet", "yacht", "car"
	TotalShares    int64           `json:"total_shares"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	InitialOwnerID string          `json:"initial_owner_id,omitempty"`
}

// UpdatePriceRequest is the JSON body for reference price updates.
type UpdatePriceRequest struct {
	ReferencePrice decimal.Decimal `json:"reference_price"`
}

// CreateListingRequest is the JSON body for POST /listings.
type CreateListingRequest struct {
	SellerID      string          `json:"seller_id"`
	AssetID       string          `json:"asset_id"`
	SharesOffered int64           `json:"shares_offered"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	ExpiresInDays int             `json:"expires_in_days"`
}

// TradeRequest is the JSON body for POST /trades.
// IdempotencyKey lets a caller safely retry after a timeout: a repeated
// key returns the original trade without settling twice.
type TradeRequest struct {
	ListingID       string `json:"listing_id"`
	BuyerID         string `json:"buyer_id"`
	SharesRequested int64  `json:"shares_requested"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

// TradeResponse is the JSON body returned from POST /trades.
type TradeResponse struct {
	Trade    model.Trade     `json:"trade"`
	Listing  ListingSummary  `json:"listing"`
	Position PositionSummary `json:"position"`
}

// ListingSummary is the post-fill listing snapshot included in trade
// responses — the authoritative state, not a client-side guess.
type ListingSummary struct {
	ID              string              `json:"id"`
	Status          model.ListingStatus `json:"status"`
	SharesRemaining int64               `json:"shares_remaining"`
}

// PositionSummary is the buyer's position snapshot after the fill.
type PositionSummary struct {
	TotalShares    int64           `json:"total_shares"`
	TotalCostBasis decimal.Decimal `json:"total_cost_basis"`
	AveragePrice   decimal.Decimal `json:"average_price"`
}

// --- Asset handlers ---

// CreateAsset handles POST /api/v1/assets
func (s *Service) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Category == "" {
		writeError(w, "name and category are required", http.StatusBadRequest)
		return
	}
	if req.TotalShares <= 0 {
		writeError(w, "total_shares must be positive", http.StatusBadRequest)
		return
	}
	if req.ReferencePrice.IsNegative() {
		writeError(w, "reference_price must not be negative", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	asset := &model.Asset{
		ID:             uuid.New().String(),
		Name:           req.Name,
		Category:       req.Category,
		TotalShares:    req.TotalShares,
		ReferencePrice: req.ReferencePrice,
		CreatedAt:      now,
	}

	// Seed the initial allocation so conservation holds from day one:
	// the full supply sits with the initial owner until traded. The seed
	// commits with the asset in one unit of work.
	var seed *model.HoldingPosition
	if req.InitialOwnerID != "" {
		seed = &model.HoldingPosition{
			InvestorID:     req.InitialOwnerID,
			AssetID:        asset.ID,
			TotalShares:    req.TotalShares,
			TotalCostBasis: req.ReferencePrice.Mul(decimal.NewFromInt(req.TotalShares)),
			UpdatedAt:      now,
		}
	}

	if err := s.store.CreateAsset(r.Context(), asset, seed); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("asset created",
		"id", asset.ID,
		"name", asset.Name,
		"category", asset.Category,
		"total_shares", asset.TotalShares,
	)

	writeJSON(w, http.StatusCreated, asset)
}

// GetAsset handles GET /api/v1/assets/{assetID}
func (s *Service) GetAsset(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")

	asset, err := s.store.GetAsset(r.Context(), assetID)
	if err != nil {
		writeError(w, "asset not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// ListAssets handles GET /api/v1/assets
func (s *Service) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.store.ListAssets(r.Context())
	if err != nil {
		writeError(w, "failed to list assets", http.StatusInternalServerError)
		return
	}
	if assets == nil {
		assets = []model.Asset{}
	}
	writeJSON(w, http.StatusOK, assets)
}

// UpdateReferencePrice handles PUT /api/v1/assets/{assetID}/price
// This is the reference price feed: display-only, never consulted for
// trade pricing.
func (s *Service) UpdateReferencePrice(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")

	var req UpdatePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ReferencePrice.LessThanOrEqual(decimal.Zero) {
		writeError(w, "reference_price must be positive", http.StatusBadRequest)
		return
	}

	if err := s.store.UpdateReferencePrice(r.Context(), assetID, req.ReferencePrice); err != nil {
		writeError(w, "asset not found", http.StatusNotFound)
		return
	}

	slog.Info("reference price updated", "asset", assetID, "price", req.ReferencePrice.String())
	w.WriteHeader(http.StatusNoContent)
}

// --- Listing handlers ---

// CreateListing handles POST /api/v1/listings
// The free-share check runs under the service mutex so two listings can
// never both claim the same shares.
func (s *Service) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SellerID == "" || req.AssetID == "" {
		writeError(w, "seller_id and asset_id are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepExpired(ctx)

	asset, err := s.store.GetAsset(ctx, req.AssetID)
	if err != nil {
		writeError(w, "asset not found", http.StatusNotFound)
		return
	}

	pos, err := s.store.GetPosition(ctx, req.SellerID, req.AssetID)
	if err != nil {
		writeError(w, "failed to load holdings", http.StatusInternalServerError)
		return
	}

	reserved, err := s.reservedShares(ctx, req.SellerID, req.AssetID, "")
	if err != nil {
		writeError(w, "failed to load open listings", http.StatusInternalServerError)
		return
	}

	free := ledger.FreeShares(pos.TotalShares, reserved)
	l, err := listing.New(req.SellerID, req.AssetID, req.SharesOffered,
		req.PricePerShare, req.ExpiresInDays, free, time.Now().UTC())
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	if err := s.store.CreateListing(ctx, l); err != nil {
		writeError(w, "failed to create listing", http.StatusInternalServerError)
		return
	}

	metrics.ListingsCreated.WithLabelValues(asset.Category).Inc()
	metrics.ActiveListings.Inc()

	slog.Info("listing created",
		"id", l.ID,
		"seller", l.SellerID,
		"asset", l.AssetID,
		"shares", l.SharesOffered,
		"price", l.PricePerShare.String(),
		"expires_at", l.ExpiresAt,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:            "listing_created",
			ListingID:       l.ID,
			AssetID:         l.AssetID,
			Status:          string(l.Status),
			SharesRemaining: l.SharesRemaining,
			PricePerShare:   l.PricePerShare.String(),
		})
	}

	writeJSON(w, http.StatusCreated, l)
}

// GetListing handles GET /api/v1/listings/{listingID}
func (s *Service) GetListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.sweepExpired(ctx)

	l, err := s.store.GetListing(ctx, chi.URLParam(r, "listingID"))
	if err != nil {
		writeError(w, "listing not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// ListListings handles GET /api/v1/listings
// Optional filters: ?asset_id=, ?seller_id=, ?open=true.
func (s *Service) ListListings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.sweepExpired(ctx)

	openOnly := r.URL.Query().Get("open") == "true"
	listings, err := s.store.ListListings(ctx,
		r.URL.Query().Get("asset_id"), r.URL.Query().Get("seller_id"), openOnly)
	if err != nil {
		writeError(w, "failed to list listings", http.StatusInternalServerError)
		return
	}
	if listings == nil {
		listings = []model.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

// CancelListing handles DELETE /api/v1/listings/{listingID}?requester_id=
// The remaining shares become free to list again immediately; holdings
// were only ever reserved, never decremented.
func (s *Service) CancelListing(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingID")
	requesterID := r.URL.Query().Get("requester_id")
	if requesterID == "" {
		writeError(w, "requester_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepExpired(ctx)

	l, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		writeError(w, "listing not found", http.StatusNotFound)
		return
	}

	cancelled, err := listing.Cancel(*l, requesterID)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	if err := s.store.UpdateListing(ctx, &cancelled); err != nil {
		writeError(w, "failed to cancel listing", http.StatusInternalServerError)
		return
	}

	metrics.ActiveListings.Dec()

	slog.Info("listing cancelled",
		"id", cancelled.ID,
		"seller", cancelled.SellerID,
		"shares_released", cancelled.SharesRemaining,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:            "listing_cancelled",
			ListingID:       cancelled.ID,
			AssetID:         cancelled.AssetID,
			Status:          string(cancelled.Status),
			SharesRemaining: cancelled.SharesRemaining,
		})
	}

	writeJSON(w, http.StatusOK, cancelled)
}

// --- Trade execution ---

// ExecuteTrade handles POST /api/v1/trades
//
// Validation and fee computation are pure; the external transfer
// executor is invoked exactly once per attempt, before any durable
// mutation; then the listing decrement, both ledger updates, and the
// trade insert commit as one store unit of work.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BuyerID == "" {
		writeError(w, "buyer_id is required", http.StatusBadRequest)
		return
	}
	if req.SharesRequested <= 0 {
		writeError(w, "shares_requested must be positive", http.StatusBadRequest)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	ctx := r.Context()

	// Replay: a retried request with a known key returns the original
	// trade without touching the executor or the stores.
	if prior, err := s.store.GetTradeByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		writeJSON(w, http.StatusOK, s.tradeResponse(ctx, prior))
		return
	}

	// Serialize trade execution.
	s.mu.Lock()
	defer s.mu.Unlock()

	// A same-key attempt may have committed while this request waited on
	// the lock (a client retrying after a timeout lands here); check
	// again before settling anything.
	if prior, err := s.store.GetTradeByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		writeJSON(w, http.StatusOK, s.tradeResponse(ctx, prior))
		return
	}

	trade, err := s.executeOnce(ctx, req)
	if errors.Is(err, store.ErrConflict) {
		// One bounded retry: re-read listing state and reattempt. The
		// executor replays the same idempotency key, so value cannot
		// move twice.
		trade, err = s.executeOnce(ctx, req)
	}
	if err != nil {
		if errors.Is(err, settlement.ErrSettlementFailed) {
			metrics.SettlementFailures.Inc()
		}
		if errors.Is(err, listing.ErrOverfill) {
			metrics.OverfillRejections.Inc()
		}
		if errors.Is(err, ErrInconsistentCommit) {
			slog.Error("fill commit failed after settlement", "err", err,
				"listing", req.ListingID, "buyer", req.BuyerID, "key", req.IdempotencyKey)
		}
		writeError(w, err.Error(), statusForError(err))
		return
	}

	asset, aerr := s.store.GetAsset(ctx, trade.AssetID)
	category := "unknown"
	if aerr == nil {
		category = asset.Category
	}
	metrics.TradesTotal.WithLabelValues(category).Inc()
	metrics.TradeLatency.Observe(time.Since(start).Seconds())

	slog.Info("trade executed",
		"trade_id", trade.ID,
		"listing", trade.ListingID,
		"buyer", trade.BuyerID,
		"seller", trade.SellerID,
		"shares", trade.SharesTraded,
		"total", trade.TotalAmount.String(),
		"fee", trade.PlatformFee.String(),
		"settlement_ref", trade.SettlementReference,
	)

	writeJSON(w, http.StatusOK, s.tradeResponse(ctx, trade))
}

// executeOnce runs one fill attempt: validate against current listing
// state, settle externally, commit atomically. Caller holds the mutex.
func (s *Service) executeOnce(ctx context.Context, req TradeRequest) (*model.Trade, error) {
	now := time.Now().UTC()

	l, err := s.store.GetListing(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if l.Status.Terminal() {
		return nil, listing.ErrInvalidState
	}
	if expired, ok := listing.Expire(*l, now); ok {
		// Opportunistic sweep of this listing before rejecting.
		if uerr := s.store.UpdateListing(ctx, &expired); uerr == nil {
			metrics.ListingsExpired.Inc()
			metrics.ActiveListings.Dec()
		}
		return nil, listing.ErrExpired
	}

	updated, err := listing.ReduceOnFill(*l, req.SharesRequested)
	if err != nil {
		return nil, err
	}

	totalAmount := fees.GrossAmount(req.SharesRequested, l.PricePerShare)
	platformFee := s.fees.ComputeFee(totalAmount)
	proceeds := s.fees.ProceedsAfterFee(totalAmount)

	sellerPos, err := s.store.GetPosition(ctx, l.SellerID, l.AssetID)
	if err != nil {
		return nil, err
	}
	buyerPos, err := s.store.GetPosition(ctx, req.BuyerID, l.AssetID)
	if err != nil {
		return nil, err
	}

	newSellerPos, err := ledger.ApplySale(*sellerPos, req.SharesRequested, now)
	if err != nil {
		return nil, err
	}
	newBuyerPos, err := ledger.ApplyPurchase(*buyerPos, req.SharesRequested, totalAmount, now)
	if err != nil {
		return nil, err
	}

	// External boundary: settle before any durable mutation.
	ref, err := s.executor.Execute(ctx, settlement.TransferRequest{
		IdempotencyKey: req.IdempotencyKey,
		PayerID:        req.BuyerID,
		PayeeID:        l.SellerID,
		TotalAmount:    totalAmount,
		SellerProceeds: proceeds,
		PlatformFee:    platformFee,
	})
	if err != nil {
		return nil, err
	}

	trade := &model.Trade{
		ID:                  uuid.New().String(),
		ListingID:           l.ID,
		AssetID:             l.AssetID,
		SellerID:            l.SellerID,
		BuyerID:             req.BuyerID,
		SharesTraded:        req.SharesRequested,
		PricePerShare:       l.PricePerShare,
		TotalAmount:         totalAmount,
		PlatformFee:         platformFee,
		SellerProceeds:      proceeds,
		IdempotencyKey:      req.IdempotencyKey,
		SettlementReference: ref,
		ExecutedAt:          now,
	}

	err = s.store.ApplyFill(ctx, store.FillCommit{
		Listing:             &updated,
		PrevSharesRemaining: l.SharesRemaining,
		SellerPosition:      &newSellerPos,
		BuyerPosition:       &newBuyerPos,
		Trade:               trade,
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrConflict):
		return nil, err
	case errors.Is(err, store.ErrDuplicate):
		// The key already settled through another path; replay the
		// stored trade rather than reporting a partial commit.
		prior, gerr := s.store.GetTradeByIdempotencyKey(ctx, req.IdempotencyKey)
		if gerr != nil {
			return nil, errors.Join(ErrInconsistentCommit, err)
		}
		return prior, nil
	default:
		// Value moved but the unit of work did not commit.
		return nil, errors.Join(ErrInconsistentCommit, err)
	}

	if updated.Status == model.StatusSold {
		metrics.ActiveListings.Dec()
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:            "trade_executed",
			ListingID:       updated.ID,
			AssetID:         updated.AssetID,
			Status:          string(updated.Status),
			SharesRemaining: updated.SharesRemaining,
			PricePerShare:   updated.PricePerShare.String(),
			SharesTraded:    trade.SharesTraded,
		})
	}

	return trade, nil
}

// tradeResponse assembles the authoritative post-fill snapshot.
func (s *Service) tradeResponse(ctx context.Context, t *model.Trade) TradeResponse {
	resp := TradeResponse{Trade: *t}

	if l, err := s.store.GetListing(ctx, t.ListingID); err == nil {
		resp.Listing = ListingSummary{
			ID:              l.ID,
			Status:          l.Status,
			SharesRemaining: l.SharesRemaining,
		}
	}
	if p, err := s.store.GetPosition(ctx, t.BuyerID, t.AssetID); err == nil {
		resp.Position = PositionSummary{
			TotalShares:    p.TotalShares,
			TotalCostBasis: p.TotalCostBasis,
			AveragePrice:   p.AveragePrice(),
		}
	}
	return resp
}

// --- History and portfolio handlers ---

// GetListingTrades handles GET /api/v1/listings/{listingID}/trades
func (s *Service) GetListingTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.store.GetTradesByListing(r.Context(), chi.URLParam(r, "listingID"))
	if err != nil {
		writeError(w, "failed to get trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetInvestorTrades handles GET /api/v1/investors/{investorID}/trades
func (s *Service) GetInvestorTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.store.GetTradesByInvestor(r.Context(), chi.URLParam(r, "investorID"))
	if err != nil {
		writeError(w, "failed to get trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetPortfolio handles GET /api/v1/investors/{investorID}/portfolio
// Unrealized P/L is marked against each asset's reference price; trades
// themselves never use it.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	investorID := chi.URLParam(r, "investorID")
	ctx := r.Context()

	positions, err := s.store.ListPositionsByInvestor(ctx, investorID)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}

	portfolio := model.Portfolio{
		InvestorID: investorID,
		Positions:  []model.PositionView{},
		TotalValue: decimal.Zero,
		TotalCost:  decimal.Zero,
		TotalPnL:   decimal.Zero,
	}

	for _, p := range positions {
		if p.TotalShares == 0 {
			continue // zeroed positions are audit history, not holdings
		}

		view := model.PositionView{
			InvestorID:     p.InvestorID,
			AssetID:        p.AssetID,
			TotalShares:    p.TotalShares,
			TotalCostBasis: p.TotalCostBasis,
			AveragePrice:   p.AveragePrice(),
		}

		if asset, err := s.store.GetAsset(ctx, p.AssetID); err == nil {
			view.AssetName = asset.Name
			view.ReferencePrice = asset.ReferencePrice
			view.MarketValue = asset.ReferencePrice.Mul(decimal.NewFromInt(p.TotalShares))
			view.UnrealizedPnL = view.MarketValue.Sub(p.TotalCostBasis)
			if pct, err := fees.OwnershipPercentage(p.TotalShares, asset.TotalShares); err == nil {
				view.OwnershipPct = pct
			}
		}

		portfolio.Positions = append(portfolio.Positions, view)
		portfolio.TotalValue = portfolio.TotalValue.Add(view.MarketValue)
		portfolio.TotalCost = portfolio.TotalCost.Add(p.TotalCostBasis)
		portfolio.TotalPnL = portfolio.TotalPnL.Add(view.UnrealizedPnL)
	}

	writeJSON(w, http.StatusOK, portfolio)
}

// --- Expiry sweep ---

// SweepExpired transitions every open listing past its expiry. Exposed
// for the background ticker in main; also runs lazily before reads and
// mutations. Idempotent. Takes the service mutex so the ticker never
// interleaves with an in-flight fill or listing mutation.
func (s *Service) SweepExpired(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepExpired(ctx)
}

func (s *Service) sweepExpired(ctx context.Context) {
	swept, err := s.store.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		slog.Warn("expiry sweep failed", "err", err)
		return
	}
	for _, l := range swept {
		metrics.ListingsExpired.Inc()
		metrics.ActiveListings.Dec()
		slog.Info("listing expired", "id", l.ID, "shares_released", l.SharesRemaining)
		if s.wsHub != nil {
			s.wsHub.Broadcast(WSMessage{
				Type:            "listing_expired",
				ListingID:       l.ID,
				AssetID:         l.AssetID,
				Status:          string(l.Status),
				SharesRemaining: l.SharesRemaining,
			})
		}
	}
}

// --- Helpers ---

// reservedShares sums shares_remaining across the seller's open listings
// for one asset, excluding excludeListingID. Derived from listing state
// on every call — there is no separate locked-shares counter to drift.
func (s *Service) reservedShares(ctx context.Context, sellerID, assetID, excludeListingID string) (int64, error) {
	open, err := s.store.ListListings(ctx, assetID, sellerID, true)
	if err != nil {
		return 0, err
	}
	var reserved int64
	for _, l := range open {
		if l.ID == excludeListingID {
			continue
		}
		reserved += l.SharesRemaining
	}
	return reserved, nil
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, listing.ErrInvalidQuantity),
		errors.Is(err, listing.ErrInvalidPrice),
		errors.Is(err, listing.ErrInvalidExpiry),
		errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, fees.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, listing.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, listing.ErrInsufficientShares),
		errors.Is(err, ledger.ErrInsufficientShares),
		errors.Is(err, listing.ErrInvalidState),
		errors.Is(err, listing.ErrExpired),
		errors.Is(err, listing.ErrOverfill),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, settlement.ErrSettlementFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
