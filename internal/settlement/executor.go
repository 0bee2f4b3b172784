// Package settlement defines the boundary to the external transfer
// executor — the system that actually moves value (fiat or on-chain)
// for a trade — and a mock implementation for development and tests.
//
// The engine treats the executor as opaque, possibly slow, and
// at-least-once retryable: every request carries an idempotency key so a
// retried call after a timeout can be detected and answered with the
// original result instead of settling twice.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrSettlementFailed is returned when the executor declines or errors.
// No ledger or listing mutation has occurred when this is returned; the
// caller may retry with the same idempotency key.
var ErrSettlementFailed = errors.New("settlement: transfer executor failed")

// TransferRequest describes one value movement: the buyer pays
// TotalAmount, the seller receives SellerProceeds, and the platform
// keeps PlatformFee.
type TransferRequest struct {
	IdempotencyKey string
	PayerID        string
	PayeeID        string
	TotalAmount    decimal.Decimal
	SellerProceeds decimal.Decimal
	PlatformFee    decimal.Decimal
}

// TransferExecutor finalizes value movement for a trade and returns an
// opaque settlement reference. Implementations must honor the
// idempotency key: a repeated request must not move value twice.
type TransferExecutor interface {
	Execute(ctx context.Context, req TransferRequest) (settlementReference string, err error)
}

// MockExecutor is an in-process TransferExecutor for development and
// tests. It succeeds deterministically, caches results per idempotency
// key, and can be forced to fail via FailNext.
type MockExecutor struct {
	mu       sync.Mutex
	settled  map[string]string // idempotency key → settlement reference
	failNext bool
}

// NewMockExecutor creates a mock executor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{settled: make(map[string]string)}
}

// FailNext makes the next non-replayed Execute call fail once.
func (m *MockExecutor) FailNext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = true
}

// Execute settles the transfer. A request whose idempotency key was seen
// before replays the original settlement reference without moving value
// again.
func (m *MockExecutor) Execute(ctx context.Context, req TransferRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	if req.TotalAmount.LessThanOrEqual(decimal.Zero) {
		return "", fmt.Errorf("%w: non-positive amount %s", ErrSettlementFailed, req.TotalAmount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ref, ok := m.settled[req.IdempotencyKey]; ok {
		return ref, nil
	}
	if m.failNext {
		m.failNext = false
		return "", fmt.Errorf("%w: transfer declined", ErrSettlementFailed)
	}

	ref := "stl-" + uuid.New().String()
	if req.IdempotencyKey != "" {
		m.settled[req.IdempotencyKey] = ref
	}
	return ref, nil
}
