package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finbase/exchange-core/internal/types"
)

// OrderStore implements storage.OrderStore using PostgreSQL
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a PostgreSQL-backed order store
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

func (s *OrderStore) Save(order *types.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO orders (id, account_id, base, quote, side, kind, price, amount, remaining, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.pool.Exec(ctx, query,
		order.ID, order.AccountID, order.Pair.Base, order.Pair.Quote,
		order.Side, order.Kind, order.Price, order.Amount, order.Remaining,
		order.Status, order.CreatedAt,
	)
	return err
}

func (s *OrderStore) Get(orderID uuid.UUID) (*types.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		SELECT id, account_id, base, quote, side, kind, price, amount, remaining, status, created_at
		FROM orders
		WHERE id = $1
	`
	order, err := scanOrder(s.pool.QueryRow(ctx, query, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrOrderNotFound, orderID)
	}
	return order, err
}

func (s *OrderStore) Update(order *types.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		UPDATE orders
		SET remaining = $2, status = $3
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, order.ID, order.Remaining, order.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", types.ErrOrderNotFound, order.ID)
	}
	return nil
}

func (s *OrderStore) OpenByPairSide(pair types.Pair, side types.Side) ([]*types.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `
		SELECT id, account_id, base, quote, side, kind, price, amount, remaining, status, created_at
		FROM orders
		WHERE base = $1 AND quote = $2 AND side = $3
		  AND status IN ('open', 'partially_filled')
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, pair.Base, pair.Quote, side)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

func (s *OrderStore) ByAccount(accountID uuid.UUID) ([]*types.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `
		SELECT id, account_id, base, quote, side, kind, price, amount, remaining, status, created_at
		FROM orders
		WHERE account_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

func (s *OrderStore) Close() error {
	return nil
}

func scanOrder(row pgx.Row) (*types.Order, error) {
	var order types.Order
	err := row.Scan(
		&order.ID, &order.AccountID, &order.Pair.Base, &order.Pair.Quote,
		&order.Side, &order.Kind, &order.Price, &order.Amount, &order.Remaining,
		&order.Status, &order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func scanOrders(rows pgx.Rows) ([]*types.Order, error) {
	var orders []*types.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
