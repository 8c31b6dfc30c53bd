// Package checkout converts a cart into a permanent order. The sale
// itself is all-or-nothing; receipt generation and event publishing
// happen after commit and never undo it.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/retailcore/checkout-engine/internal/cart"
	"github.com/retailcore/checkout-engine/internal/events"
	"github.com/retailcore/checkout-engine/internal/kafka"
	"github.com/retailcore/checkout-engine/internal/orders"
	"github.com/retailcore/checkout-engine/internal/redisx"
)

var (
	ErrEmptyCart = errors.New("cart is empty, nothing to checkout")

	// ErrReceiptGeneration is a warning, not a failure: the sale is
	// final and the receipt can be re-issued later from the order id.
	ErrReceiptGeneration = errors.New("receipt generation failed")
)

// Cart is the slice of the cart service checkout needs.
type Cart interface {
	Get(ctx context.Context, sessionID string) ([]cart.Line, error)
	Clear(ctx context.Context, sessionID string) error
}

// SaleStore persists the order atomically with the reservation
// finalize of every line.
type SaleStore interface {
	CreateSale(ctx context.Context, in orders.SaleInput) (*orders.Order, bool, error)
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	GetOrderByExternalID(ctx context.Context, externalID string) (*orders.Order, error)
}

type ReceiptIssuer interface {
	EnsureReceipt(ctx context.Context, orderID string) (*orders.Receipt, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Orchestrator struct {
	Cart        Cart
	Sales       SaleStore
	Receipts    ReceiptIssuer
	Producer    Publisher
	Redis       *redis.Client // optional idempotency fast path
	TaxRateBps  int
	ServiceName string
	Log         *slog.Logger
}

// Result carries the order plus the receipt when it could be issued.
// ReceiptErr is set instead of failing the checkout when issuing
// failed; the order stands either way.
type Result struct {
	Order      *orders.Order
	Receipt    *orders.Receipt
	ReceiptErr error
	Replayed   bool
}

// Checkout finalizes every reservation of the session's cart and
// persists the order in one transaction, then issues the receipt,
// publishes the sale event and clears the cart. externalID is the
// caller's idempotency key; a replay returns the already-committed
// order without touching stock.
func (o *Orchestrator) Checkout(ctx context.Context, sessionID, paymentMethod, externalID string) (*Result, error) {
	if externalID == "" {
		// No idempotency key from the caller; each attempt is its own sale.
		externalID = uuid.NewString()
	} else if existing, err := o.replay(ctx, externalID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	lines, err := o.Cart.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	in := orders.SaleInput{
		ExternalID:    externalID,
		SessionID:     sessionID,
		PaymentMethod: paymentMethod,
		TaxRateBps:    o.TaxRateBps,
	}
	for _, l := range lines {
		in.Lines = append(in.Lines, orders.SaleLine{
			ProductID:  l.ProductID,
			Name:       l.Name,
			Qty:        l.Qty,
			PriceCents: l.PriceCents,
		})
	}

	ord, existed, err := o.Sales.CreateSale(ctx, in)
	if err != nil {
		return nil, err
	}

	res := &Result{Order: ord, Replayed: existed}
	if !existed {
		o.publishSale(ord)
	}
	o.rememberIdem(ctx, externalID, ord.ID)

	if rc, rerr := o.Receipts.EnsureReceipt(ctx, ord.ID); rerr != nil {
		o.Log.Warn("receipt generation failed",
			slog.String("order_id", ord.ID),
			slog.String("err", rerr.Error()))
		res.ReceiptErr = fmt.Errorf("%w: %v", ErrReceiptGeneration, rerr)
	} else {
		res.Receipt = rc
	}

	if err := o.Cart.Clear(ctx, sessionID); err != nil {
		// Stock is already finalized; stray reservations fall to the sweeper.
		o.Log.Warn("cart clear failed",
			slog.String("session_id", sessionID),
			slog.String("err", err.Error()))
	}
	return res, nil
}

// replay serves an already-committed external id without any stock or
// cart mutation. The Redis key maps external id to order id as a fast
// path; the orders table stays authoritative on a cold cache.
func (o *Orchestrator) replay(ctx context.Context, externalID string) (*Result, error) {
	var ord *orders.Order
	var err error
	if o.Redis != nil {
		key := fmt.Sprintf(redisx.KeyIdemCheckout, externalID)
		if orderID, rerr := o.Redis.Get(ctx, key).Result(); rerr == nil && orderID != "" {
			ord, err = o.Sales.GetOrder(ctx, orderID)
		}
	}
	if ord == nil {
		ord, err = o.Sales.GetOrderByExternalID(ctx, externalID)
	}
	if errors.Is(err, orders.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	res := &Result{Order: ord, Replayed: true}
	if rc, rerr := o.Receipts.EnsureReceipt(ctx, ord.ID); rerr == nil {
		res.Receipt = rc
	} else {
		res.ReceiptErr = fmt.Errorf("%w: %v", ErrReceiptGeneration, rerr)
	}
	return res, nil
}

func (o *Orchestrator) publishSale(ord *orders.Order) {
	if o.Producer == nil {
		return
	}
	items := make([]events.SaleItem, 0, len(ord.Items))
	for _, it := range ord.Items {
		items = append(items, events.SaleItem{
			ProductID:  it.ProductID,
			Qty:        it.Qty,
			PriceCents: it.PriceCents,
		})
	}
	env := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     events.EventSaleCompleted,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      o.ServiceName,
		CorrelationID: ord.ID,
		Payload: kafka.MustMarshal(events.SaleCompletedPayload{
			OrderID:       ord.ID,
			SessionID:     ord.SessionID,
			PaymentMethod: ord.PaymentMethod,
			TotalCents:    ord.TotalCents,
			Items:         items,
		}),
	}
	o.Producer.Publish(events.PartitionKey(ord.ID), kafka.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(events.EventSaleCompleted)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (o *Orchestrator) rememberIdem(ctx context.Context, externalID, orderID string) {
	if o.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyIdemCheckout, externalID)
	_ = o.Redis.Set(ctx, key, orderID, redisx.TTLIdempotency).Err()
}
