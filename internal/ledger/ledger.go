// Package ledger is the source of truth for per-product stock. Every
// mutation of the on_hand/reserved pair goes through one of its
// implementations as a single atomic read-modify-write; callers never
// get to fetch-compute-write stock themselves.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrProductNotFound         = errors.New("product not found")
	ErrInvalidQuantity         = errors.New("quantity must be positive")
	ErrInsufficientReservation = errors.New("insufficient reservation")

	// ErrStoreUnavailable wraps transient backing-store failures so
	// callers can retry with backoff.
	ErrStoreUnavailable = errors.New("stock store unavailable")
)

// InsufficientStockError reports a failed reserve together with the
// quantity still purchasable, so the caller can tell the shopper.
type InsufficientStockError struct {
	ProductID string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: %d available", e.ProductID, e.Available)
}

// StockLedger exposes the atomic stock primitives.
//
//   - Reserve claims qty units if on_hand-reserved >= qty and returns
//     the new available count; otherwise it returns
//     *InsufficientStockError carrying the unchanged available count.
//   - Release returns qty units to the available pool, clamped at
//     zero reserved. Releasing more than is reserved is not an error;
//     the clamp is logged as a consistency warning.
//   - Finalize converts a reservation into a permanent decrement of
//     both reserved and on_hand. Only checkout commit calls it.
//   - Available reads on_hand-reserved.
//
// All operations on the same product are linearizable.
type StockLedger interface {
	Reserve(ctx context.Context, productID string, qty int) (available int, err error)
	Release(ctx context.Context, productID string, qty int) error
	Finalize(ctx context.Context, productID string, qty int) error
	Available(ctx context.Context, productID string) (int, error)
}
