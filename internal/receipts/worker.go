package receipts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/retailcore/checkout-engine/internal/events"
	"github.com/retailcore/checkout-engine/internal/kafka"
	"github.com/retailcore/checkout-engine/internal/orders"
	"github.com/retailcore/checkout-engine/internal/redisx"
)

// Issuer is what the worker needs from the receipt service.
type Issuer interface {
	EnsureReceipt(ctx context.Context, orderID string) (*orders.Receipt, error)
}

// Worker re-issues receipts from sale.completed events. Checkout
// already tries inline; this path covers orders whose inline attempt
// failed, since the sale stands regardless.
type Worker struct {
	Issuer Issuer
	Redis  *redis.Client
	Log    *slog.Logger
}

// HandleSaleCompleted is mounted as the consumer handler.
func (w *Worker) HandleSaleCompleted(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != events.EventSaleCompleted {
		return nil
	}

	// Best-effort dedup; EnsureReceipt is idempotent anyway.
	if w.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "receipts", env.EventID)
		if seen, _ := redisx.Exists(ctx, w.Redis, dkey); seen {
			return nil
		}
		_ = w.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	p, err := kafka.UnwrapPayload[events.SaleCompletedPayload](env.Payload)
	if err != nil {
		return err
	}

	rc, err := w.Issuer.EnsureReceipt(ctx, p.OrderID)
	if err != nil {
		return err // no commit, redelivered
	}
	w.Log.Info("receipt ensured",
		slog.String("order_id", p.OrderID),
		slog.String("receipt_number", rc.ReceiptNumber))
	return nil
}
