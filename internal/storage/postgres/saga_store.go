package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finbase/exchange-core/internal/types"
)

// SagaStore implements storage.SagaStore using PostgreSQL
type SagaStore struct {
	pool *pgxpool.Pool
}

// NewSagaStore creates a PostgreSQL-backed saga log
func NewSagaStore(pool *pgxpool.Pool) *SagaStore {
	return &SagaStore{pool: pool}
}

func (s *SagaStore) Append(entry *types.SagaLogEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO saga_log (id, order_id, step, outcome, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query,
		entry.ID, entry.OrderID, entry.Step, entry.Outcome, entry.Detail, entry.CreatedAt)
	return err
}

func (s *SagaStore) ByOrder(orderID uuid.UUID) ([]*types.SagaLogEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `
		SELECT id, order_id, step, outcome, detail, created_at
		FROM saga_log
		WHERE order_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*types.SagaLogEntry
	for rows.Next() {
		var e types.SagaLogEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Step, &e.Outcome, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *SagaStore) Close() error {
	return nil
}
