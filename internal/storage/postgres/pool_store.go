package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/finbase/exchange-core/internal/types"
)

// PoolStore implements storage.PoolStore using PostgreSQL
type PoolStore struct {
	pool *pgxpool.Pool
}

// NewPoolStore creates a PostgreSQL-backed pool store
func NewPoolStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

func (s *PoolStore) Save(p *types.LiquidityPool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO liquidity_pools (id, base, quote, base_reserve, quote_reserve, total_shares, fee_rate, active, settlement_account_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Base, p.Quote, p.BaseReserve, p.QuoteReserve, p.TotalShares,
		p.FeeRate, p.Active, p.SettlementAccountID, p.CreatedAt,
	)
	return err
}

func (s *PoolStore) Get(poolID uuid.UUID) (*types.LiquidityPool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		SELECT id, base, quote, base_reserve, quote_reserve, total_shares, fee_rate, active, settlement_account_id, created_at
		FROM liquidity_pools
		WHERE id = $1
	`
	var p types.LiquidityPool
	err := s.pool.QueryRow(ctx, query, poolID).Scan(
		&p.ID, &p.Base, &p.Quote, &p.BaseReserve, &p.QuoteReserve,
		&p.TotalShares, &p.FeeRate, &p.Active, &p.SettlementAccountID, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrPoolNotFound, poolID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PoolStore) Update(p *types.LiquidityPool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		UPDATE liquidity_pools
		SET base_reserve = $2, quote_reserve = $3, total_shares = $4, active = $5
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, p.ID, p.BaseReserve, p.QuoteReserve, p.TotalShares, p.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", types.ErrPoolNotFound, p.ID)
	}
	return nil
}

func (s *PoolStore) Active() ([]*types.LiquidityPool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `
		SELECT id, base, quote, base_reserve, quote_reserve, total_shares, fee_rate, active, settlement_account_id, created_at
		FROM liquidity_pools
		WHERE active = TRUE
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []*types.LiquidityPool
	for rows.Next() {
		var p types.LiquidityPool
		err := rows.Scan(
			&p.ID, &p.Base, &p.Quote, &p.BaseReserve, &p.QuoteReserve,
			&p.TotalShares, &p.FeeRate, &p.Active, &p.SettlementAccountID, &p.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		pools = append(pools, &p)
	}
	return pools, rows.Err()
}

func (s *PoolStore) Provider(poolID, accountID uuid.UUID) (*types.LiquidityProvider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		SELECT pool_id, account_id, shares
		FROM liquidity_providers
		WHERE pool_id = $1 AND account_id = $2
	`
	var lp types.LiquidityProvider
	err := s.pool.QueryRow(ctx, query, poolID, accountID).Scan(&lp.PoolID, &lp.AccountID, &lp.Shares)
	if errors.Is(err, pgx.ErrNoRows) {
		return &types.LiquidityProvider{
			PoolID:    poolID,
			AccountID: accountID,
			Shares:    decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &lp, nil
}

func (s *PoolStore) UpdateProvider(lp *types.LiquidityProvider) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if lp.Shares.IsZero() {
		_, err := s.pool.Exec(ctx,
			`DELETE FROM liquidity_providers WHERE pool_id = $1 AND account_id = $2`,
			lp.PoolID, lp.AccountID)
		return err
	}

	query := `
		INSERT INTO liquidity_providers (pool_id, account_id, shares)
		VALUES ($1, $2, $3)
		ON CONFLICT (pool_id, account_id) DO UPDATE SET shares = EXCLUDED.shares
	`
	_, err := s.pool.Exec(ctx, query, lp.PoolID, lp.AccountID, lp.Shares)
	return err
}

func (s *PoolStore) Close() error {
	return nil
}
