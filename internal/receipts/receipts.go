// Package receipts issues exactly one human-readable receipt per
// completed order. The number derives from the order's committed
// sequence, so retries always produce the same receipt.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailcore/checkout-engine/internal/orders"
)

// Number formats a receipt number, e.g. DR-2026000042.
func Number(year int, seq int64) string {
	return fmt.Sprintf("DR-%d%06d", year, seq)
}

type Service struct {
	DB *pgxpool.Pool
}

// EnsureReceipt creates the order's receipt if it does not exist yet
// and returns it either way. Safe to call any number of times.
func (s *Service) EnsureReceipt(ctx context.Context, orderID string) (*orders.Receipt, error) {
	var seq int64
	var createdAt time.Time
	err := s.DB.QueryRow(ctx, `SELECT seq, created_at FROM orders WHERE id = $1`, orderID).
		Scan(&seq, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	_, err = s.DB.Exec(ctx, `
		INSERT INTO receipts (id, order_id, receipt_number)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id) DO NOTHING`,
		uuid.NewString(), orderID, Number(createdAt.Year(), seq))
	if err != nil {
		return nil, err
	}

	var rc orders.Receipt
	err = s.DB.QueryRow(ctx, `
		SELECT id, order_id, receipt_number, created_at
		FROM receipts WHERE order_id = $1`, orderID).
		Scan(&rc.ID, &rc.OrderID, &rc.ReceiptNumber, &rc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rc, nil
}
