package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresLedger implements Ledger on PostgreSQL. Lock takes a row-level
// FOR UPDATE lock on the (account, asset) balance row, which is the single
// mutual-exclusion boundary against concurrent over-commitment.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger creates a ledger backed by the given pool and ensures
// its tables exist.
func NewPostgresLedger(ctx context.Context, pool *pgxpool.Pool) (*PostgresLedger, error) {
	if err := migrateLedger(ctx, pool); err != nil {
		return nil, fmt.Errorf("ledger migration failed: %w", err)
	}
	return &PostgresLedger{pool: pool}, nil
}

func migrateLedger(ctx context.Context, pool *pgxpool.Pool) error {
	schema := `
		CREATE TABLE IF NOT EXISTS ledger_balances (
			account_id UUID NOT NULL,
			asset TEXT NOT NULL,
			balance NUMERIC(36, 18) NOT NULL DEFAULT 0,
			PRIMARY KEY (account_id, asset)
		);
		CREATE TABLE IF NOT EXISTS ledger_locks (
			id UUID PRIMARY KEY,
			account_id UUID NOT NULL,
			asset TEXT NOT NULL,
			amount NUMERIC(36, 18) NOT NULL,
			reason TEXT NOT NULL,
			reference_id UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_locks_account
			ON ledger_locks (account_id, asset);
		CREATE TABLE IF NOT EXISTS ledger_transfers (
			tx_id UUID PRIMARY KEY,
			from_account UUID NOT NULL,
			to_account UUID NOT NULL,
			asset TEXT NOT NULL,
			amount NUMERIC(36, 18) NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	_, err := pool.Exec(ctx, schema)
	return err
}

func (l *PostgresLedger) Lock(ctx context.Context, accountID uuid.UUID, asset string, amount decimal.Decimal, reason string, refID uuid.UUID) (uuid.UUID, error) {
	if !amount.IsPositive() {
		return uuid.Nil, fmt.Errorf("lock amount must be positive, got %s", amount)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback(ctx)

	// Pessimistic: hold the balance row until the lock row is written.
	var balance decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT balance FROM ledger_balances
		WHERE account_id = $1 AND asset = $2
		FOR UPDATE
	`, accountID, asset).Scan(&balance)
	if err == pgx.ErrNoRows {
		balance = decimal.Zero
	} else if err != nil {
		return uuid.Nil, err
	}

	var locked decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_locks
		WHERE account_id = $1 AND asset = $2
	`, accountID, asset).Scan(&locked)
	if err != nil {
		return uuid.Nil, err
	}

	available := balance.Sub(locked)
	if available.LessThan(amount) {
		return uuid.Nil, &InsufficientBalanceError{
			AccountID: accountID,
			Asset:     asset,
			Required:  amount,
			Available: available,
		}
	}

	lockID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_locks (id, account_id, asset, amount, reason, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, lockID, accountID, asset, amount, reason, refID)
	if err != nil {
		return uuid.Nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, err
	}
	return lockID, nil
}

func (l *PostgresLedger) Release(ctx context.Context, lockID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Deleting a missing row affects zero rows, which keeps release idempotent.
	_, err := l.pool.Exec(ctx, `DELETE FROM ledger_locks WHERE id = $1`, lockID)
	return err
}

func (l *PostgresLedger) Transfer(ctx context.Context, from, to uuid.UUID, asset string, amount decimal.Decimal, txID uuid.UUID, metadata map[string]string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("transfer amount must be positive, got %s", amount)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Idempotency on tx id: a conflicting insert means the transfer already
	// applied and the rest of the transaction is skipped.
	tag, err := tx.Exec(ctx, `
		INSERT INTO ledger_transfers (tx_id, from_account, to_account, asset, amount, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tx_id) DO NOTHING
	`, txID, from, to, asset, amount, metadata)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	var balance decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT balance FROM ledger_balances
		WHERE account_id = $1 AND asset = $2
		FOR UPDATE
	`, from, asset).Scan(&balance)
	if err == pgx.ErrNoRows {
		balance = decimal.Zero
	} else if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return &InsufficientBalanceError{
			AccountID: from,
			Asset:     asset,
			Required:  amount,
			Available: balance,
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE ledger_balances SET balance = balance - $3
		WHERE account_id = $1 AND asset = $2
	`, from, asset, amount)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_balances (account_id, asset, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, asset) DO UPDATE SET balance = ledger_balances.balance + EXCLUDED.balance
	`, to, asset, amount)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (l *PostgresLedger) Available(ctx context.Context, accountID uuid.UUID, asset string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var available decimal.Decimal
	err := l.pool.QueryRow(ctx, `
		SELECT COALESCE((
			SELECT balance FROM ledger_balances WHERE account_id = $1 AND asset = $2
		), 0) - COALESCE((
			SELECT SUM(amount) FROM ledger_locks WHERE account_id = $1 AND asset = $2
		), 0)
	`, accountID, asset).Scan(&available)
	if err != nil {
		return decimal.Zero, err
	}
	return available, nil
}
