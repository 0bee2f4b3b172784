package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/aerolux/marketplace-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the display-heavy reads: assets, single listings, and investor
// positions. Writes go to the primary store and invalidate the cache.
// Mutating paths always read through to the primary, so cache staleness
// only ever affects display.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAsset(ctx context.Context, a *model.Asset, seed *model.HoldingPosition) error {
	if err := s.primary.CreateAsset(ctx, a, seed); err != nil {
		return err
	}
	s.cacheAsset(ctx, a)
	if seed != nil {
		s.rdb.Del(ctx, positionsKey(seed.InvestorID))
	}
	return nil
}

func (s *CachedStore) UpdateReferencePrice(ctx context.Context, assetID string, price decimal.Decimal) error {
	if err := s.primary.UpdateReferencePrice(ctx, assetID, price); err != nil {
		return err
	}
	s.rdb.Del(ctx, assetKey(assetID))
	return nil
}

func (s *CachedStore) CreateListing(ctx context.Context, l *model.Listing) error {
	if err := s.primary.CreateListing(ctx, l); err != nil {
		return err
	}
	s.cacheListing(ctx, l)
	return nil
}

func (s *CachedStore) UpdateListing(ctx context.Context, l *model.Listing) error {
	if err := s.primary.UpdateListing(ctx, l); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, listingKey(l.ID))
	return nil
}

func (s *CachedStore) SweepExpired(ctx context.Context, now time.Time) ([]model.Listing, error) {
	swept, err := s.primary.SweepExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, l := range swept {
		s.rdb.Del(ctx, listingKey(l.ID))
	}
	return swept, nil
}

func (s *CachedStore) UpsertPosition(ctx context.Context, p *model.HoldingPosition) error {
	if err := s.primary.UpsertPosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionsKey(p.InvestorID))
	return nil
}

func (s *CachedStore) ApplyFill(ctx context.Context, commit FillCommit) error {
	if err := s.primary.ApplyFill(ctx, commit); err != nil {
		return err
	}
	s.rdb.Del(ctx,
		listingKey(commit.Listing.ID),
		positionsKey(commit.SellerPosition.InvestorID),
		positionsKey(commit.BuyerPosition.InvestorID),
	)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	data, err := s.rdb.Get(ctx, assetKey(id)).Bytes()
	if err == nil {
		var a model.Asset
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheAsset(ctx, a)
	return a, nil
}

func (s *CachedStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	data, err := s.rdb.Get(ctx, listingKey(id)).Bytes()
	if err == nil {
		var l model.Listing
		if json.Unmarshal(data, &l) == nil {
			return &l, nil
		}
	}

	l, err := s.primary.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheListing(ctx, l)
	return l, nil
}

func (s *CachedStore) ListPositionsByInvestor(ctx context.Context, investorID string) ([]model.HoldingPosition, error) {
	data, err := s.rdb.Get(ctx, positionsKey(investorID)).Bytes()
	if err == nil {
		var positions []model.HoldingPosition
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListPositionsByInvestor(ctx, investorID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(investorID), data, s.ttl)
	}
	return positions, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAssets(ctx context.Context) ([]model.Asset, error) {
	return s.primary.ListAssets(ctx)
}

func (s *CachedStore) ListListings(ctx context.Context, assetID, sellerID string, openOnly bool) ([]model.Listing, error) {
	return s.primary.ListListings(ctx, assetID, sellerID, openOnly)
}

// GetPosition backs the free-share check on the mutating path, so it is
// never served from cache.
func (s *CachedStore) GetPosition(ctx context.Context, investorID, assetID string) (*model.HoldingPosition, error) {
	return s.primary.GetPosition(ctx, investorID, assetID)
}

func (s *CachedStore) ListPositionsByAsset(ctx context.Context, assetID string) ([]model.HoldingPosition, error) {
	return s.primary.ListPositionsByAsset(ctx, assetID)
}

func (s *CachedStore) GetTradeByIdempotencyKey(ctx context.Context, key string) (*model.Trade, error) {
	return s.primary.GetTradeByIdempotencyKey(ctx, key)
}

func (s *CachedStore) GetTradesByListing(ctx context.Context, listingID string) ([]model.Trade, error) {
	return s.primary.GetTradesByListing(ctx, listingID)
}

func (s *CachedStore) GetTradesByInvestor(ctx context.Context, investorID string) ([]model.Trade, error) {
	return s.primary.GetTradesByInvestor(ctx, investorID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheAsset(ctx context.Context, a *model.Asset) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, assetKey(a.ID), data, s.ttl)
	}
}

func (s *CachedStore) cacheListing(ctx context.Context, l *model.Listing) {
	if data, err := json.Marshal(l); err == nil {
		s.rdb.Set(ctx, listingKey(l.ID), data, s.ttl)
	}
}

func assetKey(id string) string      { return fmt.Sprintf("asset:%s", id) }
func listingKey(id string) string    { return fmt.Sprintf("listing:%s", id) }
func positionsKey(uid string) string { return fmt.Sprintf("positions:%s", uid) }
