package listing

import (
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

func openListing(remaining int64) model.Listing {
	status := model.StatusActive
	if remaining < 60 {
		status = model.StatusPartiallyFilled
	}
	return model.Listing{
		ID:              "lst1",
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

// --- Creation tests ---

func TestNew_Valid(t *testing.T) {
	l, err := New("seller1", "asset1", 60, d(1000), 30, 100, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Status != model.StatusActive {
		t.Errorf("expected active, got %s", l.Status)
	}
	if l.SharesRemaining != 60 {
		t.Errorf("expected 60 remaining, got %d", l.SharesRemaining)
	}
	if !l.ExpiresAt.Equal(now.AddDate(0, 0, 30)) {
		t.Errorf("unexpected expiry: %s", l.ExpiresAt)
	}
	if l.ID == "" {
		t.Error("expected non-empty listing id")
	}
}

func TestNew_ZeroShares(t *testing.T) {
	_, err := New("seller1", "asset1", 0, d(1000), 30, 100, now)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestNew_ZeroPrice(t *testing.T) {
	_, err := New("seller1", "asset1", 10, decimal.Zero, 30, 100, now)
	if !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestNew_ExpiryOutOfRange(t *testing.T) {
	if _, err := New("seller1", "asset1", 10, d(1000), 0, 100, now); !errors.Is(err, ErrInvalidExpiry) {
		t.Errorf("expected ErrInvalidExpiry for 0 days, got %v", err)
	}
	if _, err := New("seller1", "asset1", 10, d(1000), 91, 100, now); !errors.Is(err, ErrInvalidExpiry) {
		t.Errorf("expected ErrInvalidExpiry for 91 days, got %v", err)
	}
	if _, err := New("seller1", "asset1", 10, d(1000), 90, 100, now); err != nil {
		t.Errorf("90 days should be allowed, got %v", err)
	}
}

func TestNew_ExceedsFreeShares(t *testing.T) {
	_, err := New("seller1", "asset1", 50, d(1000), 30, 40, now)
	if !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("expected ErrInsufficientShares, got %v", err)
	}
}

// --- Cancel tests ---

func TestCancel_BySeller(t *testing.T) {
	l, err := Cancel(openListing(15), "seller1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Status != model.StatusCancelled {
		t.Errorf("expected cancelled, got %s", l.Status)
	}
	if l.SharesRemaining != 15 {
		t.Errorf("shares remaining should be untouched, got %d", l.SharesRemaining)
	}
}

func TestCancel_NotOwner(t *testing.T) {
	_, err := Cancel(openListing(15), "intruder")
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
}

func TestCancel_TerminalStates(t *testing.T) {
	for _, status := range []model.ListingStatus{model.StatusSold, model.StatusExpired, model.StatusCancelled} {
		l := openListing(0)
		l.Status = status
		if _, err := Cancel(l, "seller1"); !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState for %s, got %v", status, err)
		}
	}
}

// --- Fill tests ---

func TestReduceOnFill_Partial(t *testing.T) {
	l, err := ReduceOnFill(openListing(60), 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.SharesRemaining != 40 {
		t.Errorf("expected 40 remaining, got %d", l.SharesRemaining)
	}
	if l.Status != model.StatusPartiallyFilled {
		t.Errorf("expected partially_filled, got %s", l.Status)
	}
}

func TestReduceOnFill_Exhausts(t *testing.T) {
	l, err := ReduceOnFill(openListing(40), 40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.SharesRemaining != 0 {
		t.Errorf("expected 0 remaining, got %d", l.SharesRemaining)
	}
	if l.Status != model.StatusSold {
		t.Errorf("expected sold, got %s", l.Status)
	}
}

func TestReduceOnFill_Overfill(t *testing.T) {
	_, err := ReduceOnFill(openListing(40), 45)
	if !errors.Is(err, ErrOverfill) {
		t.Errorf("expected ErrOverfill, got %v", err)
	}
}

func TestReduceOnFill_Terminal(t *testing.T) {
	l := openListing(0)
	l.Status = model.StatusSold
	if _, err := ReduceOnFill(l, 1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestReduceOnFill_ZeroShares(t *testing.T) {
	_, err := ReduceOnFill(openListing(40), 0)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

// --- Expiry tests ---

func TestExpire_PastDue(t *testing.T) {
	l := openListing(5)
	l.ExpiresAt = now.Add(-time.Hour)
	expired, ok := Expire(l, now)
	if !ok {
		t.Fatal("expected listing to expire")
	}
	if expired.Status != model.StatusExpired {
		t.Errorf("expected expired, got %s", expired.Status)
	}
}

func TestExpire_NotYetDue(t *testing.T) {
	l := openListing(5)
	if _, ok := Expire(l, now); ok {
		t.Error("listing before expiry should not expire")
	}
}

func TestExpire_TerminalIsIdempotent(t *testing.T) {
	l := openListing(5)
	l.ExpiresAt = now.Add(-time.Hour)
	expired, _ := Expire(l, now)

	// A second sweep must not re-transition.
	again, ok := Expire(expired, now)
	if ok {
		t.Error("expired listing should not expire twice")
	}
	if again.Status != model.StatusExpired {
		t.Errorf("status should stay expired, got %s", again.Status)
	}

	cancelled := openListing(5)
	cancelled.Status = model.StatusCancelled
	cancelled.ExpiresAt = now.Add(-time.Hour)
	if _, ok := Expire(cancelled, now); ok {
		t.Error("cancelled listing should never expire")
	}
}
