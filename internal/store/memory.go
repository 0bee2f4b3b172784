package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aerolux/marketplace-engine/internal/listing"
	"github.com/aerolux/marketplace-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	assets    map[string]*model.Asset
	listings  map[string]*model.Listing
	positions map[string]*model.HoldingPosition // key: investorID + "/" + assetID
	trades    []model.Trade
	byIdemKey map[string]int // idempotency key → index into trades
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:    make(map[string]*model.Asset),
		listings:  make(map[string]*model.Listing),
		positions: make(map[string]*model.HoldingPosition),
		byIdemKey: make(map[string]int),
	}
}

func posKey(investorID, assetID string) string {
	return investorID + "/" + assetID
}

// --- Assets ---

func (s *MemoryStore) CreateAsset(_ context.Context, a *model.Asset, seed *model.HoldingPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[a.ID]; ok {
		return fmt.Errorf("%w: asset %s", ErrDuplicate, a.ID)
	}
	cp := *a
	s.assets[a.ID] = &cp
	if seed != nil {
		pcp := *seed
		s.positions[posKey(seed.InvestorID, seed.AssetID)] = &pcp
	}
	return nil
}

func (s *MemoryStore) GetAsset(_ context.Context, id string) (*model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[id]
	if !ok {
		return nil, fmt.Errorf("%w: asset %s", ErrNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAssets(_ context.Context) ([]model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets := make([]model.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		assets = append(assets, *a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].CreatedAt.Before(assets[j].CreatedAt) })
	return assets, nil
}

func (s *MemoryStore) UpdateReferencePrice(_ context.Context, assetID string, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[assetID]
	if !ok {
		return fmt.Errorf("%w: asset %s", ErrNotFound, assetID)
	}
	a.ReferencePrice = price
	return nil
}

// --- Listings ---

func (s *MemoryStore) CreateListing(_ context.Context, l *model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[l.ID]; ok {
		return fmt.Errorf("%w: listing %s", ErrDuplicate, l.ID)
	}
	cp := *l
	s.listings[l.ID] = &cp
	return nil
}

func (s *MemoryStore) GetListing(_ context.Context, id string) (*model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, fmt.Errorf("%w: listing %s", ErrNotFound, id)
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) ListListings(_ context.Context, assetID, sellerID string, openOnly bool) ([]model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Listing
	for _, l := range s.listings {
		if assetID != "" && l.AssetID != assetID {
			continue
		}
		if sellerID != "" && l.SellerID != sellerID {
			continue
		}
		if openOnly && !l.Status.Open() {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateListing(_ context.Context, l *model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[l.ID]; !ok {
		return fmt.Errorf("%w: listing %s", ErrNotFound, l.ID)
	}
	cp := *l
	s.listings[l.ID] = &cp
	return nil
}

func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time) ([]model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept []model.Listing
	for id, l := range s.listings {
		if expired, ok := listing.Expire(*l, now); ok {
			s.listings[id] = &expired
			swept = append(swept, expired)
		}
	}
	return swept, nil
}

// --- Positions ---

func (s *MemoryStore) GetPosition(_ context.Context, investorID, assetID string) (*model.HoldingPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getPositionLocked(investorID, assetID), nil
}

// getPositionLocked returns a copy of the stored position, or a zeroed
// position when none exists. Caller must hold at least the read lock.
func (s *MemoryStore) getPositionLocked(investorID, assetID string) *model.HoldingPosition {
	if p, ok := s.positions[posKey(investorID, assetID)]; ok {
		cp := *p
		return &cp
	}
	return &model.HoldingPosition{
		InvestorID:     investorID,
		AssetID:        assetID,
		TotalCostBasis: decimal.Zero,
	}
}

func (s *MemoryStore) UpsertPosition(_ context.Context, p *model.HoldingPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.positions[posKey(p.InvestorID, p.AssetID)] = &cp
	return nil
}

func (s *MemoryStore) ListPositionsByInvestor(_ context.Context, investorID string) ([]model.HoldingPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.HoldingPosition
	for _, p := range s.positions {
		if p.InvestorID == investorID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

func (s *MemoryStore) ListPositionsByAsset(_ context.Context, assetID string) ([]model.HoldingPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.HoldingPosition
	for _, p := range s.positions {
		if p.AssetID == assetID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvestorID < out[j].InvestorID })
	return out, nil
}

// --- Trade settlement ---

// ApplyFill persists the whole fill under one lock: the open-status
// check, the compare-and-swap guard on shares_remaining, the listing
// update, both positions, and the trade insert all happen atomically
// with respect to other store calls. A listing that went terminal since
// the engine read it is ErrConflict, never a fill.
func (s *MemoryStore) ApplyFill(_ context.Context, commit FillCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.listings[commit.Listing.ID]
	if !ok {
		return fmt.Errorf("%w: listing %s", ErrNotFound, commit.Listing.ID)
	}
	if !current.Status.Open() {
		return fmt.Errorf("%w: listing %s is %s", ErrConflict, commit.Listing.ID, current.Status)
	}
	if current.SharesRemaining != commit.PrevSharesRemaining {
		return fmt.Errorf("%w: listing %s shares_remaining moved", ErrConflict, commit.Listing.ID)
	}
	if _, ok := s.byIdemKey[commit.Trade.IdempotencyKey]; ok {
		return fmt.Errorf("%w: idempotency key %s", ErrDuplicate, commit.Trade.IdempotencyKey)
	}

	lcp := *commit.Listing
	s.listings[lcp.ID] = &lcp

	sp := *commit.SellerPosition
	s.positions[posKey(sp.InvestorID, sp.AssetID)] = &sp
	bp := *commit.BuyerPosition
	s.positions[posKey(bp.InvestorID, bp.AssetID)] = &bp

	s.trades = append(s.trades, *commit.Trade)
	if commit.Trade.IdempotencyKey != "" {
		s.byIdemKey[commit.Trade.IdempotencyKey] = len(s.trades) - 1
	}
	return nil
}

func (s *MemoryStore) GetTradeByIdempotencyKey(_ context.Context, key string) (*model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byIdemKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: trade for key %s", ErrNotFound, key)
	}
	cp := s.trades[idx]
	return &cp, nil
}

func (s *MemoryStore) GetTradesByListing(_ context.Context, listingID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Trade
	for _, t := range s.trades {
		if t.ListingID == listingID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetTradesByInvestor(_ context.Context, investorID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Trade
	for _, t := range s.trades {
		if t.BuyerID == investorID || t.SellerID == investorID {
			out = append(out, t)
		}
	}
	return out, nil
}
