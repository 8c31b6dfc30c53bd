package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	DB *pgxpool.Pool
}

func (s *Postgres) Upsert(ctx context.Context, sessionID, productID string, qty int, ttl time.Duration) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO reservations (session_id, product_id, qty, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, product_id)
		DO UPDATE SET qty = reservations.qty + EXCLUDED.qty, expires_at = EXCLUDED.expires_at`,
		sessionID, productID, qty, time.Now().Add(ttl))
	if err != nil {
		return storeErr("upsert", err)
	}
	return nil
}

func (s *Postgres) Decrement(ctx context.Context, sessionID, productID string, qty int) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storeErr("decrement", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var remaining int
	err = tx.QueryRow(ctx, `
		UPDATE reservations SET qty = qty - $3
		WHERE session_id = $1 AND product_id = $2
		RETURNING qty`, sessionID, productID, qty).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already consumed or expired; nothing to do.
		return tx.Commit(ctx)
	}
	if err != nil {
		return storeErr("decrement", err)
	}
	if remaining <= 0 {
		if _, err := tx.Exec(ctx, `
			DELETE FROM reservations WHERE session_id = $1 AND product_id = $2`,
			sessionID, productID); err != nil {
			return storeErr("decrement", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("decrement", err)
	}
	return nil
}

func (s *Postgres) Touch(ctx context.Context, sessionID, productID string, ttl time.Duration) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE reservations SET expires_at = $3
		WHERE session_id = $1 AND product_id = $2`, sessionID, productID, time.Now().Add(ttl))
	if err != nil {
		return storeErr("touch", err)
	}
	return nil
}

func (s *Postgres) ListExpired(ctx context.Context, now time.Time) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT session_id, product_id, qty, created_at, expires_at
		FROM reservations WHERE expires_at < $1`, now)
	if err != nil {
		return nil, storeErr("list expired", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Postgres) BySession(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT session_id, product_id, qty, created_at, expires_at
		FROM reservations WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, storeErr("by session", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Postgres) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.DB.Exec(ctx, `DELETE FROM reservations WHERE session_id = $1`, sessionID); err != nil {
		return storeErr("delete session", err)
	}
	return nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SessionID, &e.ProductID, &e.Qty, &e.CreatedAt, &e.ExpiresAt); err != nil {
			return nil, storeErr("scan", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
