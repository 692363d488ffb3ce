package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunMigrations creates the order, trade, pool and saga log tables if they
// do not exist yet.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	schema := `
		CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			account_id UUID NOT NULL,
			base TEXT NOT NULL,
			quote TEXT NOT NULL,
			side TEXT NOT NULL,
			kind TEXT NOT NULL,
			price NUMERIC(36, 18) NOT NULL DEFAULT 0,
			amount NUMERIC(36, 18) NOT NULL,
			remaining NUMERIC(36, 18) NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_orders_open
			ON orders (base, quote, side, created_at)
			WHERE status IN ('open', 'partially_filled');
		CREATE INDEX IF NOT EXISTS idx_orders_account ON orders (account_id);

		CREATE TABLE IF NOT EXISTS trades (
			id UUID PRIMARY KEY,
			base TEXT NOT NULL,
			quote TEXT NOT NULL,
			buy_order_id UUID NOT NULL,
			sell_order_id UUID NOT NULL,
			price NUMERIC(36, 18) NOT NULL,
			amount NUMERIC(36, 18) NOT NULL,
			maker_fee NUMERIC(36, 18) NOT NULL,
			taker_fee NUMERIC(36, 18) NOT NULL,
			correlation_id UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_pair_time
			ON trades (base, quote, created_at DESC);

		CREATE TABLE IF NOT EXISTS liquidity_pools (
			id UUID PRIMARY KEY,
			base TEXT NOT NULL,
			quote TEXT NOT NULL,
			base_reserve NUMERIC(36, 18) NOT NULL DEFAULT 0,
			quote_reserve NUMERIC(36, 18) NOT NULL DEFAULT 0,
			total_shares NUMERIC(36, 18) NOT NULL DEFAULT 0,
			fee_rate NUMERIC(10, 8) NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			settlement_account_id UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS liquidity_providers (
			pool_id UUID NOT NULL,
			account_id UUID NOT NULL,
			shares NUMERIC(36, 18) NOT NULL DEFAULT 0,
			PRIMARY KEY (pool_id, account_id)
		);

		CREATE TABLE IF NOT EXISTS saga_log (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL,
			step TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_saga_log_order ON saga_log (order_id, created_at);
	`

	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
