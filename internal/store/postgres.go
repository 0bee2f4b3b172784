package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aerolux/marketplace-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Assets ---

func (s *PostgresStore) CreateAsset(ctx context.Context, a *model.Asset, seed *model.HoldingPosition) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin asset tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO assets (id, name, category, total_shares, reference_price, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		a.ID, a.Name, a.Category, a.TotalShares, a.ReferencePrice.String(), a.CreatedAt,
	); err != nil {
		return err
	}
	if seed != nil {
		if _, err := tx.Exec(ctx, upsertPositionSQL,
			seed.InvestorID, seed.AssetID, seed.TotalShares,
			seed.TotalCostBasis.String(), seed.UpdatedAt); err != nil {
			return fmt.Errorf("seed initial position: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	var a model.Asset
	var refPrice string

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, category, total_shares, reference_price::TEXT, created_at
		 FROM assets WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &a.Category, &a.TotalShares, &refPrice, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: asset %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}

	a.ReferencePrice, _ = decimal.NewFromString(refPrice)
	return &a, nil
}

func (s *PostgresStore) ListAssets(ctx context.Context) ([]model.Asset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, category, total_shares, reference_price::TEXT, created_at
		 FROM assets ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		var a model.Asset
		var refPrice string
		if err := rows.Scan(&a.ID, &a.Name, &a.Category, &a.TotalShares, &refPrice, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ReferencePrice, _ = decimal.NewFromString(refPrice)
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (s *PostgresStore) UpdateReferencePrice(ctx context.Context, assetID string, price decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE assets SET reference_price = $2::NUMERIC WHERE id = $1`,
		assetID, price.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: asset %s", ErrNotFound, assetID)
	}
	return nil
}

// --- Listings ---

func (s *PostgresStore) CreateListing(ctx context.Context, l *model.Listing) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO listings (id, seller_id, asset_id, shares_offered, shares_remaining,
		                       price_per_share, status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9)`,
		l.ID, l.SellerID, l.AssetID, l.SharesOffered, l.SharesRemaining,
		l.PricePerShare.String(), string(l.Status), l.CreatedAt, l.ExpiresAt,
	)
	return err
}

const listingColumns = `id, seller_id, asset_id, shares_offered, shares_remaining,
       price_per_share::TEXT, status, created_at, expires_at`

func scanListing(row pgx.Row) (*model.Listing, error) {
	var l model.Listing
	var price, status string

	err := row.Scan(&l.ID, &l.SellerID, &l.AssetID, &l.SharesOffered, &l.SharesRemaining,
		&price, &status, &l.CreatedAt, &l.ExpiresAt)
	if err != nil {
		return nil, err
	}
	l.PricePerShare, _ = decimal.NewFromString(price)
	l.Status = model.ListingStatus(status)
	return &l, nil
}

func (s *PostgresStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: listing %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get listing %s: %w", id, err)
	}
	return l, nil
}

func (s *PostgresStore) ListListings(ctx context.Context, assetID, sellerID string, openOnly bool) ([]model.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE 1=1`
	var args []any

	if assetID != "" {
		args = append(args, assetID)
		query += fmt.Sprintf(" AND asset_id = $%d", len(args))
	}
	if sellerID != "" {
		args = append(args, sellerID)
		query += fmt.Sprintf(" AND seller_id = $%d", len(args))
	}
	if openOnly {
		query += ` AND status IN ('active', 'partially_filled')`
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (s *PostgresStore) UpdateListing(ctx context.Context, l *model.Listing) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET shares_remaining = $2, status = $3 WHERE id = $1`,
		l.ID, l.SharesRemaining, string(l.Status),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: listing %s", ErrNotFound, l.ID)
	}
	return nil
}

func (s *PostgresStore) SweepExpired(ctx context.Context, now time.Time) ([]model.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE listings SET status = 'expired'
		 WHERE status IN ('active', 'partially_filled') AND expires_at < $1
		 RETURNING `+listingColumns, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var swept []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		swept = append(swept, *l)
	}
	return swept, rows.Err()
}

// --- Positions ---

func (s *PostgresStore) GetPosition(ctx context.Context, investorID, assetID string) (*model.HoldingPosition, error) {
	var p model.HoldingPosition
	var costBasis string

	err := s.pool.QueryRow(ctx,
		`SELECT investor_id, asset_id, total_shares, total_cost_basis::TEXT, updated_at
		 FROM positions WHERE investor_id = $1 AND asset_id = $2`, investorID, assetID).
		Scan(&p.InvestorID, &p.AssetID, &p.TotalShares, &costBasis, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Missing position reads as zeroed, never as an error.
		return &model.HoldingPosition{
			InvestorID:     investorID,
			AssetID:        assetID,
			TotalCostBasis: decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s/%s: %w", investorID, assetID, err)
	}

	p.TotalCostBasis, _ = decimal.NewFromString(costBasis)
	return &p, nil
}

func (s *PostgresStore) UpsertPosition(ctx context.Context, p *model.HoldingPosition) error {
	_, err := s.pool.Exec(ctx, upsertPositionSQL,
		p.InvestorID, p.AssetID, p.TotalShares, p.TotalCostBasis.String(), p.UpdatedAt,
	)
	return err
}

const upsertPositionSQL = `
	INSERT INTO positions (investor_id, asset_id, total_shares, total_cost_basis, updated_at)
	VALUES ($1, $2, $3, $4::NUMERIC, $5)
	ON CONFLICT (investor_id, asset_id)
	DO UPDATE SET total_shares = $3, total_cost_basis = $4::NUMERIC, updated_at = $5`

func (s *PostgresStore) ListPositionsByInvestor(ctx context.Context, investorID string) ([]model.HoldingPosition, error) {
	return s.listPositions(ctx,
		`SELECT investor_id, asset_id, total_shares, total_cost_basis::TEXT, updated_at
		 FROM positions WHERE investor_id = $1 ORDER BY asset_id`, investorID)
}

func (s *PostgresStore) ListPositionsByAsset(ctx context.Context, assetID string) ([]model.HoldingPosition, error) {
	return s.listPositions(ctx,
		`SELECT investor_id, asset_id, total_shares, total_cost_basis::TEXT, updated_at
		 FROM positions WHERE asset_id = $1 ORDER BY investor_id`, assetID)
}

func (s *PostgresStore) listPositions(ctx context.Context, query string, arg any) ([]model.HoldingPosition, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.HoldingPosition
	for rows.Next() {
		var p model.HoldingPosition
		var costBasis string
		if err := rows.Scan(&p.InvestorID, &p.AssetID, &p.TotalShares, &costBasis, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.TotalCostBasis, _ = decimal.NewFromString(costBasis)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// --- Trade settlement ---

// ApplyFill runs the four sub-updates in one transaction. The listing
// decrement is guarded by the observed shares_remaining value and an
// open-status check: if another fill committed first, or the listing was
// cancelled or expired in between, the guard matches no row, the
// transaction rolls back, and ErrConflict tells the engine to re-read
// and reattempt. The re-read then sees the terminal state and rejects.
func (s *PostgresStore) ApplyFill(ctx context.Context, commit FillCommit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fill tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE listings SET shares_remaining = $2, status = $3
		 WHERE id = $1 AND shares_remaining = $4
		   AND status IN ('active', 'partially_filled')`,
		commit.Listing.ID, commit.Listing.SharesRemaining,
		string(commit.Listing.Status), commit.PrevSharesRemaining,
	)
	if err != nil {
		return fmt.Errorf("fill listing update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: listing %s moved or closed", ErrConflict, commit.Listing.ID)
	}

	for _, p := range []*model.HoldingPosition{commit.SellerPosition, commit.BuyerPosition} {
		if _, err := tx.Exec(ctx, upsertPositionSQL,
			p.InvestorID, p.AssetID, p.TotalShares, p.TotalCostBasis.String(), p.UpdatedAt); err != nil {
			return fmt.Errorf("fill position upsert %s/%s: %w", p.InvestorID, p.AssetID, err)
		}
	}

	t := commit.Trade
	if _, err := tx.Exec(ctx,
		`INSERT INTO trades (id, listing_id, asset_id, seller_id, buyer_id, shares_traded,
		                     price_per_share, total_amount, platform_fee, seller_proceeds,
		                     idempotency_key, settlement_reference, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11, $12, $13)`,
		t.ID, t.ListingID, t.AssetID, t.SellerID, t.BuyerID, t.SharesTraded,
		t.PricePerShare.String(), t.TotalAmount.String(), t.PlatformFee.String(),
		t.SellerProceeds.String(), t.IdempotencyKey, t.SettlementReference, t.ExecutedAt,
	); err != nil {
		return fmt.Errorf("fill trade insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit fill tx: %w", err)
	}
	return nil
}

const tradeColumns = `id, listing_id, asset_id, seller_id, buyer_id, shares_traded,
       price_per_share::TEXT, total_amount::TEXT, platform_fee::TEXT, seller_proceeds::TEXT,
       idempotency_key, settlement_reference, executed_at`

func scanTrade(row pgx.Row) (*model.Trade, error) {
	var t model.Trade
	var price, total, fee, proceeds string

	err := row.Scan(&t.ID, &t.ListingID, &t.AssetID, &t.SellerID, &t.BuyerID, &t.SharesTraded,
		&price, &total, &fee, &proceeds,
		&t.IdempotencyKey, &t.SettlementReference, &t.ExecutedAt)
	if err != nil {
		return nil, err
	}
	t.PricePerShare, _ = decimal.NewFromString(price)
	t.TotalAmount, _ = decimal.NewFromString(total)
	t.PlatformFee, _ = decimal.NewFromString(fee)
	t.SellerProceeds, _ = decimal.NewFromString(proceeds)
	return &t, nil
}

func (s *PostgresStore) GetTradeByIdempotencyKey(ctx context.Context, key string) (*model.Trade, error) {
	t, err := scanTrade(s.pool.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE idempotency_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: trade for key %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get trade by key: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) GetTradesByListing(ctx context.Context, listingID string) ([]model.Trade, error) {
	return s.listTrades(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE listing_id = $1 ORDER BY executed_at`, listingID)
}

func (s *PostgresStore) GetTradesByInvestor(ctx context.Context, investorID string) ([]model.Trade, error) {
	return s.listTrades(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE buyer_id = $1 OR seller_id = $1 ORDER BY executed_at`, investorID)
}

func (s *PostgresStore) listTrades(ctx context.Context, query string, arg any) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}
