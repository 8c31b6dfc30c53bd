// Package reservation keeps the durable record of active stock
// reservations per (session, product). The ledger's reserved counter
// stays authoritative for stock; these rows exist so abandoned carts
// can be reconciled and expired.
package reservation

import (
	"context"
	"errors"
	"time"
)

var ErrStoreUnavailable = errors.New("reservation store unavailable")

type Entry struct {
	SessionID string
	ProductID string
	Qty       int
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt.Before(now)
}

// Store operations are atomic per (session, product) key.
//
// Upsert adds qty to the entry (creating it) and resets the expiry.
// Decrement subtracts qty and deletes the entry when it reaches zero.
// Touch extends the expiry on cart activity without changing qty.
// ListExpired returns entries whose expiry has elapsed at now.
type Store interface {
	Upsert(ctx context.Context, sessionID, productID string, qty int, ttl time.Duration) error
	Decrement(ctx context.Context, sessionID, productID string, qty int) error
	Touch(ctx context.Context, sessionID, productID string, ttl time.Duration) error
	ListExpired(ctx context.Context, now time.Time) ([]Entry, error)
	BySession(ctx context.Context, sessionID string) ([]Entry, error)
	DeleteSession(ctx context.Context, sessionID string) error
}
