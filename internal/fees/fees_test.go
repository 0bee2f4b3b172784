package fees

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- Constructor tests ---

func TestNewPolicy_Valid(t *testing.T) {
	p, err := NewPolicy(d(0.025))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Rate().Equal(d(0.025)) {
		t.Errorf("expected rate=0.025, got %s", p.Rate())
	}
}

func TestNewPolicy_NegativeRate(t *testing.T) {
	_, err := NewPolicy(d(-0.01))
	if !errors.Is(err, ErrInvalidRate) {
		t.Errorf("expected ErrInvalidRate for negative rate, got %v", err)
	}
}

func TestNewPolicy_RateOfOne(t *testing.T) {
	_, err := NewPolicy(d(1))
	if !errors.Is(err, ErrInvalidRate) {
		t.Errorf("expected ErrInvalidRate for rate=1, got %v", err)
	}
}

func TestNewPolicy_ZeroRateAllowed(t *testing.T) {
	p, err := NewPolicy(decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.ComputeFee(d(1000)).IsZero() {
		t.Errorf("zero-rate fee should be zero, got %s", p.ComputeFee(d(1000)))
	}
}

// --- Fee computation tests ---

func TestComputeFee_StandardRate(t *testing.T) {
	p := DefaultPolicy()
	// 2.5% of 20,000 = 500 (the canonical 20-share-at-$1000 trade).
	fee := p.ComputeFee(d(20000))
	if !fee.Equal(d(500)) {
		t.Errorf("expected fee=500, got %s", fee)
	}
}

func TestComputeFee_RoundsHalfUp(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		total float64
		want  float64
	}{
		{10.20, 0.26}, // 0.255 rounds up to 0.26
		{10.00, 0.25}, // 0.25 exact
		{10.01, 0.25}, // 0.25025 rounds down
		{0.01, 0.00},  // 0.00025 rounds down to zero
		{100, 2.50},
	}
	for _, tt := range tests {
		fee := p.ComputeFee(d(tt.total))
		if !fee.Equal(d(tt.want)) {
			t.Errorf("ComputeFee(%v) = %s, want %v", tt.total, fee, tt.want)
		}
	}
}

func TestComputeFee_Idempotent(t *testing.T) {
	p := DefaultPolicy()
	first := p.ComputeFee(d(1234.56))
	second := p.ComputeFee(d(1234.56))
	if !first.Equal(second) {
		t.Errorf("fee not deterministic: %s vs %s", first, second)
	}
}

func TestProceedsAfterFee_ReconstructsTotal(t *testing.T) {
	p := DefaultPolicy()

	totals := []float64{20000, 10.20, 0.01, 99999.99, 1}
	for _, total := range totals {
		fee := p.ComputeFee(d(total))
		proceeds := p.ProceedsAfterFee(d(total))
		if !proceeds.Add(fee).Equal(d(total)) {
			t.Errorf("proceeds+fee != total for %v: %s + %s", total, proceeds, fee)
		}
	}
}

func TestProceedsAfterFee_CanonicalTrade(t *testing.T) {
	p := DefaultPolicy()
	proceeds := p.ProceedsAfterFee(d(20000))
	if !proceeds.Equal(d(19500)) {
		t.Errorf("expected proceeds=19500, got %s", proceeds)
	}
}

// --- Ownership percentage tests ---

func TestOwnershipPercentage_Basic(t *testing.T) {
	pct, err := OwnershipPercentage(20, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pct.Equal(d(20)) {
		t.Errorf("expected 20%%, got %s", pct)
	}
}

func TestOwnershipPercentage_Fractional(t *testing.T) {
	pct, err := OwnershipPercentage(1, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pct.Equal(d(33.3333)) {
		t.Errorf("expected 33.3333%%, got %s", pct)
	}
}

func TestOwnershipPercentage_ZeroSupply(t *testing.T) {
	_, err := OwnershipPercentage(10, 0)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero supply, got %v", err)
	}
}

func TestOwnershipPercentage_NegativeSupply(t *testing.T) {
	_, err := OwnershipPercentage(10, -5)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for negative supply, got %v", err)
	}
}

// --- Gross amount ---

func TestGrossAmount(t *testing.T) {
	total := GrossAmount(20, d(1000))
	if !total.Equal(d(20000)) {
		t.Errorf("expected 20000, got %s", total)
	}
}
