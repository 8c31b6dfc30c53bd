package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/retailcore/checkout-engine/internal/ledger"
	"github.com/retailcore/checkout-engine/internal/orders"
	"github.com/retailcore/checkout-engine/internal/reservation"
)

var (
	ErrLineNotFound = errors.New("cart line not found")

	// ErrDeltaExceedsLine rejects a decrease larger than the line.
	ErrDeltaExceedsLine = errors.New("decrease exceeds line quantity")
)

// ProductCatalog is the read-only product view owned by inventory
// management; the cart only snapshots name and price from it.
type ProductCatalog interface {
	GetProduct(ctx context.Context, productID string) (*orders.Product, error)
}

// Service is a thin state machine over the ledger: reserve before a
// line grows, release before it shrinks, never the other way around.
// Mutations are sequential per session; the ledger linearizes
// cross-session races per product.
type Service struct {
	Ledger       ledger.StockLedger
	Reservations reservation.Store
	Lines        LineStore
	Catalog      ProductCatalog
	TTL          time.Duration
	Log          *slog.Logger

	sfg singleflight.Group
}

// Get rehydrates the session's cart from the durable store.
// Singleflight keeps a burst of reads for one session to one fetch.
func (s *Service) Get(ctx context.Context, sessionID string) ([]Line, error) {
	v, err, _ := s.sfg.Do(sessionID, func() (interface{}, error) {
		return s.Lines.Get(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Line), nil
}

// AddOrIncrease reserves delta units and then grows the cart line. On
// InsufficientStock the cart is left untouched.
func (s *Service) AddOrIncrease(ctx context.Context, sessionID, productID string, delta int) ([]Line, error) {
	if delta <= 0 {
		return nil, ledger.ErrInvalidQuantity
	}

	lines, err := s.Lines.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.retry(ctx, func() error {
		_, err := s.Ledger.Reserve(ctx, productID, delta)
		return err
	}); err != nil {
		return nil, err
	}

	idx := findLine(lines, productID)
	if idx >= 0 {
		lines[idx].Qty += delta
	} else {
		p, err := s.Catalog.GetProduct(ctx, productID)
		if err != nil {
			s.undoReserve(ctx, productID, delta)
			return nil, err
		}
		lines = append(lines, Line{
			ProductID:  productID,
			Name:       p.Name,
			PriceCents: p.PriceCents,
			Qty:        delta,
		})
	}

	// The reservation row goes in before the line save: once it
	// exists, expiry can reclaim the reserved stock no matter where
	// the call fails afterwards.
	if err := s.retry(ctx, func() error {
		return s.Reservations.Upsert(ctx, sessionID, productID, delta, s.TTL)
	}); err != nil {
		s.undoReserve(ctx, productID, delta)
		return nil, err
	}

	if err := s.retry(ctx, func() error {
		return s.Lines.Save(ctx, sessionID, lines)
	}); err != nil {
		// Roll the row back before releasing; if the rollback fails
		// the row stays put and expiry performs the release instead.
		if derr := s.Reservations.Decrement(ctx, sessionID, productID, delta); derr != nil {
			s.Log.Warn("rollback decrement failed, expiry will release",
				slog.String("session_id", sessionID),
				slog.String("product_id", productID),
				slog.String("err", derr.Error()))
		} else {
			s.undoReserve(ctx, productID, delta)
		}
		return nil, err
	}
	s.touchAll(ctx, sessionID)
	return lines, nil
}

// Decrease releases delta units and shrinks the line, removing it at
// zero. Delta must not exceed the current line quantity.
func (s *Service) Decrease(ctx context.Context, sessionID, productID string, delta int) ([]Line, error) {
	if delta <= 0 {
		return nil, ledger.ErrInvalidQuantity
	}

	lines, err := s.Lines.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	idx := findLine(lines, productID)
	if idx < 0 {
		return nil, ErrLineNotFound
	}
	if delta > lines[idx].Qty {
		return nil, ErrDeltaExceedsLine
	}

	if err := s.retry(ctx, func() error {
		return s.Ledger.Release(ctx, productID, delta)
	}); err != nil {
		return nil, err
	}

	lines[idx].Qty -= delta
	if lines[idx].Qty == 0 {
		lines = append(lines[:idx], lines[idx+1:]...)
	}
	// A failure past the release leaves the stored line bigger than
	// what is reserved. That is safe: checkout re-validates per line
	// and reports the product as no longer held, never oversells.
	if err := s.retry(ctx, func() error {
		return s.Lines.Save(ctx, sessionID, lines)
	}); err != nil {
		return nil, err
	}

	if err := s.retry(ctx, func() error {
		return s.Reservations.Decrement(ctx, sessionID, productID, delta)
	}); err != nil {
		return nil, err
	}
	s.touchAll(ctx, sessionID)
	return lines, nil
}

// Remove drops the whole line, releasing everything it had reserved.
func (s *Service) Remove(ctx context.Context, sessionID, productID string) ([]Line, error) {
	lines, err := s.Lines.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	idx := findLine(lines, productID)
	if idx < 0 {
		return nil, ErrLineNotFound
	}
	return s.Decrease(ctx, sessionID, productID, lines[idx].Qty)
}

// Clear wipes the session's lines and reservations without touching
// the ledger. Checkout calls it after finalize; the sweeper path goes
// through Release instead.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := s.Lines.Delete(ctx, sessionID); err != nil {
		return err
	}
	return s.Reservations.DeleteSession(ctx, sessionID)
}

// undoReserve compensates a reserve whose follow-up work failed.
func (s *Service) undoReserve(ctx context.Context, productID string, qty int) {
	if err := s.Ledger.Release(ctx, productID, qty); err != nil {
		s.Log.Error("compensating release failed",
			slog.String("product_id", productID),
			slog.Int("qty", qty),
			slog.String("err", err.Error()))
	}
}

// touchAll extends every reservation of the session; any cart activity
// counts as the shopper still being there.
func (s *Service) touchAll(ctx context.Context, sessionID string) {
	entries, err := s.Reservations.BySession(ctx, sessionID)
	if err != nil {
		s.Log.Warn("touch skipped", slog.String("session_id", sessionID), slog.String("err", err.Error()))
		return
	}
	for _, e := range entries {
		if err := s.Reservations.Touch(ctx, sessionID, e.ProductID, s.TTL); err != nil {
			s.Log.Warn("touch failed",
				slog.String("session_id", sessionID),
				slog.String("product_id", e.ProductID),
				slog.String("err", err.Error()))
		}
	}
}

// retry runs fn with bounded backoff while the backing store reports a
// transient failure. Other errors return immediately.
func (s *Service) retry(ctx context.Context, fn func() error) error {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !transient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%v: %w", err, ctx.Err())
		case <-time.After(time.Duration(50<<i) * time.Millisecond):
		}
	}
	return err
}

func transient(err error) bool {
	return errors.Is(err, ledger.ErrStoreUnavailable) ||
		errors.Is(err, reservation.ErrStoreUnavailable) ||
		errors.Is(err, ErrStoreUnavailable)
}

func findLine(lines []Line, productID string) int {
	for i, l := range lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}
