package ledger

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

func position(shares int64, costBasis float64) model.HoldingPosition {
	return model.HoldingPosition{
		InvestorID:     "inv1",
		AssetID:        "asset1",
		TotalShares:    shares,
		TotalCostBasis: d(costBasis),
	}
}

// --- Purchase tests ---

func TestApplyPurchase_FirstBuy(t *testing.T) {
	pos, err := ApplyPurchase(position(0, 0), 20, d(20000), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.TotalShares != 20 {
		t.Errorf("expected 20 shares, got %d", pos.TotalShares)
	}
	if !pos.AveragePrice().Equal(d(1000)) {
		t.Errorf("expected average price 1000, got %s", pos.AveragePrice())
	}
}

func TestApplyPurchase_WeightedAverage(t *testing.T) {
	// 10 @ 1000 then 30 @ 2000 → average = (10000 + 60000) / 40 = 1750.
	pos, err := ApplyPurchase(position(0, 0), 10, d(10000), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos, err = ApplyPurchase(pos, 30, d(60000), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.TotalShares != 40 {
		t.Errorf("expected 40 shares, got %d", pos.TotalShares)
	}
	if !pos.AveragePrice().Equal(d(1750)) {
		t.Errorf("expected average price 1750, got %s", pos.AveragePrice())
	}
}

func TestApplyPurchase_ZeroShares(t *testing.T) {
	_, err := ApplyPurchase(position(0, 0), 0, d(100), now)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestApplyPurchase_NegativeShares(t *testing.T) {
	_, err := ApplyPurchase(position(10, 1000), -5, d(100), now)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestApplyPurchase_NegativeCost(t *testing.T) {
	_, err := ApplyPurchase(position(0, 0), 5, d(-100), now)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity for negative cost, got %v", err)
	}
}

// --- Sale tests ---

func TestApplySale_AveragePreserved(t *testing.T) {
	// Own 20 @ 1000 average; sell 10 → 10 shares left, basis halves,
	// average unchanged.
	pos, err := ApplySale(position(20, 20000), 10, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.TotalShares != 10 {
		t.Errorf("expected 10 shares, got %d", pos.TotalShares)
	}
	if !pos.TotalCostBasis.Equal(d(10000)) {
		t.Errorf("expected cost basis 10000, got %s", pos.TotalCostBasis)
	}
	if !pos.AveragePrice().Equal(d(1000)) {
		t.Errorf("expected average price 1000, got %s", pos.AveragePrice())
	}
}

func TestApplySale_FullPositionZeroesBasis(t *testing.T) {
	pos, err := ApplySale(position(7, 12345.67), 7, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.TotalShares != 0 {
		t.Errorf("expected 0 shares, got %d", pos.TotalShares)
	}
	if !pos.TotalCostBasis.IsZero() {
		t.Errorf("expected zero cost basis, got %s", pos.TotalCostBasis)
	}
	if !pos.AveragePrice().IsZero() {
		t.Errorf("average price of empty position should read zero, got %s", pos.AveragePrice())
	}
}

func TestApplySale_Oversell(t *testing.T) {
	_, err := ApplySale(position(5, 5000), 6, now)
	if !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("expected ErrInsufficientShares, got %v", err)
	}
}

func TestApplySale_ZeroShares(t *testing.T) {
	_, err := ApplySale(position(5, 5000), 0, now)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestApplySale_UnevenBasisStaysProportional(t *testing.T) {
	// 3 shares at total cost 100: selling 1 leaves 2/3 of the basis.
	pos, err := ApplySale(position(3, 100), 1, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := d(100).Mul(decimal.NewFromInt(2)).Div(decimal.NewFromInt(3))
	tolerance := d(0.0000001)
	if pos.TotalCostBasis.Sub(want).Abs().GreaterThan(tolerance) {
		t.Errorf("expected cost basis ≈ %s, got %s", want, pos.TotalCostBasis)
	}
}

// --- Free shares ---

func TestFreeShares(t *testing.T) {
	tests := []struct {
		total, reserved, want int64
	}{
		{100, 0, 100},
		{100, 60, 40},
		{100, 100, 0},
		{100, 150, 0}, // clamped, never negative
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := FreeShares(tt.total, tt.reserved); got != tt.want {
			t.Errorf("FreeShares(%d, %d) = %d, want %d", tt.total, tt.reserved, got, tt.want)
		}
	}
}
