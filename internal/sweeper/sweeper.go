// Package sweeper releases reservations whose TTL elapsed without a
// checkout, so abandoned carts cannot strand inventory.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/retailcore/checkout-engine/internal/events"
	"github.com/retailcore/checkout-engine/internal/kafka"
	"github.com/retailcore/checkout-engine/internal/ledger"
	"github.com/retailcore/checkout-engine/internal/reservation"
)

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Sweeper struct {
	Ledger       ledger.StockLedger
	Reservations reservation.Store
	Producer     Publisher // optional
	Interval     time.Duration
	ServiceName  string
	Log          *slog.Logger
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx, time.Now()); err != nil {
				s.Log.Error("sweep failed", slog.String("err", err.Error()))
			} else if n > 0 {
				s.Log.Info("released expired reservations", slog.Int("count", n))
			}
		}
	}
}

// Sweep releases every reservation expired at now and removes its
// record. A reservation consumed by a concurrent checkout between
// listing and release is harmless: release clamps at zero and the
// decrement of a missing row is a no-op.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.Reservations.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, e := range expired {
		if err := s.Ledger.Release(ctx, e.ProductID, e.Qty); err != nil {
			s.Log.Error("release failed",
				slog.String("session_id", e.SessionID),
				slog.String("product_id", e.ProductID),
				slog.String("err", err.Error()))
			continue
		}
		if err := s.Reservations.Decrement(ctx, e.SessionID, e.ProductID, e.Qty); err != nil {
			s.Log.Error("reservation decrement failed",
				slog.String("session_id", e.SessionID),
				slog.String("product_id", e.ProductID),
				slog.String("err", err.Error()))
			continue
		}
		s.publishReleased(e)
		released++
	}
	return released, nil
}

func (s *Sweeper) publishReleased(e reservation.Entry) {
	if s.Producer == nil {
		return
	}
	env := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     events.EventStockReleased,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: e.SessionID,
		Payload: kafka.MustMarshal(events.StockReleasedPayload{
			SessionID: e.SessionID,
			ProductID: e.ProductID,
			Qty:       e.Qty,
			Reason:    "RESERVATION_EXPIRED",
		}),
	}
	s.Producer.Publish(events.PartitionKey(e.SessionID), kafka.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(events.EventStockReleased)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
