package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aerolux/marketplace-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openListing(id string, remaining int64) *model.Listing {
	status := model.StatusActive
	if remaining < 60 {
		status = model.StatusPartiallyFilled
	}
	return &model.Listing{
		ID:              id,
		SellerID:        "seller1",
		AssetID:         "asset1",
		SharesOffered:   60,
		SharesRemaining: remaining,
		PricePerShare:   d(1000),
		Status:          status,
		CreatedAt:       now,
		ExpiresAt:       now.AddDate(0, 0, 30),
	}
}

// fill builds a commit reducing the listing by `shares`, the way the
// engine would after a settled trade.
func fill(l model.Listing, shares int64, key string) FillCommit {
	updated := l
	updated.SharesRemaining -= shares
	if updated.SharesRemaining == 0 {
		updated.Status = model.StatusSold
	} else {
		updated.Status = model.StatusPartiallyFilled
	}
	return FillCommit{
		Listing:             &updated,
		PrevSharesRemaining: l.SharesRemaining,
		SellerPosition: &model.HoldingPosition{
			InvestorID: "seller1", AssetID: l.AssetID,
			TotalShares: 100 - shares, TotalCostBasis: d(float64(100-shares) * 1000), UpdatedAt: now,
		},
		BuyerPosition: &model.HoldingPosition{
			InvestorID: "buyer1", AssetID: l.AssetID,
			TotalShares: shares, TotalCostBasis: d(float64(shares) * 1000), UpdatedAt: now,
		},
		Trade: &model.Trade{
			ID: "trd-" + key, ListingID: l.ID, AssetID: l.AssetID,
			SellerID: "seller1", BuyerID: "buyer1", SharesTraded: shares,
			PricePerShare: d(1000), TotalAmount: d(float64(shares) * 1000),
			PlatformFee: d(float64(shares) * 25), SellerProceeds: d(float64(shares) * 975),
			IdempotencyKey: key, SettlementReference: "stl-" + key, ExecutedAt: now,
		},
	}
}

func seedListing(t *testing.T, s *MemoryStore, l *model.Listing) {
	t.Helper()
	if err := s.CreateListing(context.Background(), l); err != nil {
		t.Fatalf("failed to seed listing: %v", err)
	}
}

func TestApplyFill_Commits(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedListing(t, s, openListing("lst1", 60))

	if err := s.ApplyFill(ctx, fill(*openListing("lst1", 60), 20, "k1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l, err := s.GetListing(ctx, "lst1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.SharesRemaining != 40 || l.Status != model.StatusPartiallyFilled {
		t.Errorf("expected 40 remaining partially_filled, got %d %s", l.SharesRemaining, l.Status)
	}

	buyer, _ := s.GetPosition(ctx, "buyer1", "asset1")
	if buyer.TotalShares != 20 {
		t.Errorf("expected buyer to hold 20 shares, got %d", buyer.TotalShares)
	}

	tr, err := s.GetTradeByIdempotencyKey(ctx, "k1")
	if err != nil {
		t.Fatalf("trade not recorded: %v", err)
	}
	if tr.SharesTraded != 20 {
		t.Errorf("expected 20 shares traded, got %d", tr.SharesTraded)
	}
}

func TestApplyFill_StaleSharesRemaining(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedListing(t, s, openListing("lst1", 60))

	// Commit built against a stale read (40 observed, 60 stored).
	err := s.ApplyFill(ctx, fill(*openListing("lst1", 40), 20, "k1"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	l, _ := s.GetListing(ctx, "lst1")
	if l.SharesRemaining != 60 {
		t.Errorf("listing must be untouched, got %d remaining", l.SharesRemaining)
	}
}

func TestApplyFill_ClosedListing(t *testing.T) {
	// A listing that went terminal after the engine read it must reject
	// the commit even when the observed shares_remaining still matches,
	// and must never transition back to an open status.
	for _, status := range []model.ListingStatus{model.StatusCancelled, model.StatusExpired} {
		s := NewMemoryStore()
		ctx := context.Background()

		closed := openListing("lst1", 40)
		closed.Status = status
		seedListing(t, s, closed)

		stale := openListing("lst1", 40)
		err := s.ApplyFill(ctx, fill(*stale, 20, "k1"))
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict against %s listing, got %v", status, err)
		}

		l, _ := s.GetListing(ctx, "lst1")
		if l.Status != status {
			t.Errorf("status must stay %s, got %s", status, l.Status)
		}
		if l.SharesRemaining != 40 {
			t.Errorf("shares must be untouched, got %d", l.SharesRemaining)
		}
		if _, err := s.GetTradeByIdempotencyKey(ctx, "k1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("no trade may be recorded, got %v", err)
		}
	}
}

func TestApplyFill_DuplicateIdempotencyKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedListing(t, s, openListing("lst1", 60))

	if err := s.ApplyFill(ctx, fill(*openListing("lst1", 60), 20, "k1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := s.ApplyFill(ctx, fill(*openListing("lst1", 40), 10, "k1"))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	l, _ := s.GetListing(ctx, "lst1")
	if l.SharesRemaining != 40 {
		t.Errorf("duplicate key must not fill again, got %d remaining", l.SharesRemaining)
	}
}

func TestCreateAsset_SeedsInitialPosition(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	asset := &model.Asset{
		ID: "asset1", Name: "Gulfstream G650", Category: "jet",
		TotalShares: 100, ReferencePrice: d(1000), CreatedAt: now,
	}
	seed := &model.HoldingPosition{
		InvestorID: "sponsor1", AssetID: "asset1",
		TotalShares: 100, TotalCostBasis: d(100000), UpdatedAt: now,
	}
	if err := s.CreateAsset(ctx, asset, seed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos, _ := s.GetPosition(ctx, "sponsor1", "asset1")
	if pos.TotalShares != 100 {
		t.Errorf("sponsor should hold the full supply, got %d", pos.TotalShares)
	}

	// Duplicate asset rejects without touching the seeded position.
	if err := s.CreateAsset(ctx, asset, seed); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateAsset_NilSeed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	asset := &model.Asset{
		ID: "asset1", Name: "Azimut Grande 35M", Category: "yacht",
		TotalShares: 1000, ReferencePrice: d(25000), CreatedAt: now,
	}
	if err := s.CreateAsset(ctx, asset, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos, _ := s.GetPosition(ctx, "anyone", "asset1")
	if pos.TotalShares != 0 {
		t.Errorf("expected zeroed position, got %d shares", pos.TotalShares)
	}
}

func TestSweepExpired_TransitionsPastDue(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	due := openListing("lst-due", 5)
	due.ExpiresAt = now.Add(-time.Hour)
	seedListing(t, s, due)
	seedListing(t, s, openListing("lst-fresh", 60))

	swept, err := s.SweepExpired(ctx, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(swept) != 1 || swept[0].ID != "lst-due" {
		t.Fatalf("expected exactly lst-due swept, got %v", swept)
	}

	l, _ := s.GetListing(ctx, "lst-due")
	if l.Status != model.StatusExpired {
		t.Errorf("expected expired, got %s", l.Status)
	}
	fresh, _ := s.GetListing(ctx, "lst-fresh")
	if fresh.Status != model.StatusActive {
		t.Errorf("fresh listing must stay active, got %s", fresh.Status)
	}

	// Second sweep finds nothing.
	again, _ := s.SweepExpired(ctx, now)
	if len(again) != 0 {
		t.Errorf("second sweep must be empty, got %v", again)
	}
}
