package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements StockLedger on the products table. Reserve is a
// single conditional UPDATE so two concurrent reserves can never both
// pass the availability check; release and finalize take a row lock.
type Postgres struct {
	DB  *pgxpool.Pool
	Log *slog.Logger
}

func (l *Postgres) Reserve(ctx context.Context, productID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}

	var available int
	err := l.DB.QueryRow(ctx, `
		UPDATE products
		SET reserved = reserved + $2, updated_at = now()
		WHERE id = $1 AND on_hand - reserved >= $2
		RETURNING on_hand - reserved`, productID, qty).Scan(&available)
	if err == nil {
		return available, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, storeErr("reserve", err)
	}

	// Condition failed: unknown product or not enough stock.
	err = l.DB.QueryRow(ctx, `SELECT on_hand - reserved FROM products WHERE id = $1`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, storeErr("reserve", err)
	}
	return 0, &InsufficientStockError{ProductID: productID, Available: available}
}

func (l *Postgres) Release(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	var prev, cur int
	err := l.DB.QueryRow(ctx, `
		WITH prev AS (
			SELECT reserved FROM products WHERE id = $1 FOR UPDATE
		)
		UPDATE products p
		SET reserved = GREATEST(p.reserved - $2, 0), updated_at = now()
		FROM prev
		WHERE p.id = $1
		RETURNING prev.reserved, p.reserved`, productID, qty).Scan(&prev, &cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProductNotFound
	}
	if err != nil {
		return storeErr("release", err)
	}
	if prev < qty {
		l.Log.Warn("release clamped beyond reserved",
			slog.String("product_id", productID),
			slog.Int("qty", qty),
			slog.Int("was_reserved", prev))
	}
	return nil
}

func (l *Postgres) Finalize(ctx context.Context, productID string, qty int) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storeErr("finalize", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := FinalizeInTx(ctx, tx, productID, qty); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("finalize", err)
	}
	return nil
}

// FinalizeInTx runs the finalize decrement inside a caller-owned
// transaction, so checkout can finalize every line and insert the
// order as one atomic step.
func FinalizeInTx(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	var reserved int
	err := tx.QueryRow(ctx, `SELECT reserved FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProductNotFound
	}
	if err != nil {
		return storeErr("finalize", err)
	}
	if reserved < qty {
		return fmt.Errorf("product %s: %w", productID, ErrInsufficientReservation)
	}

	_, err = tx.Exec(ctx, `
		UPDATE products
		SET on_hand = on_hand - $2, reserved = reserved - $2, updated_at = now()
		WHERE id = $1`, productID, qty)
	if err != nil {
		return storeErr("finalize", err)
	}
	return nil
}

func (l *Postgres) Available(ctx context.Context, productID string) (int, error) {
	var available int
	err := l.DB.QueryRow(ctx, `SELECT on_hand - reserved FROM products WHERE id = $1`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, storeErr("available", err)
	}
	return available, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
