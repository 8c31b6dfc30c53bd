package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/retailcore/checkout-engine/internal/ledger"
	"github.com/retailcore/checkout-engine/internal/orders"
	"github.com/retailcore/checkout-engine/internal/receipts"
)

// fakeSales mirrors the Postgres sale transaction on top of the
// memory ledger: finalize all lines or none, then record the order.
type fakeSales struct {
	mu     sync.Mutex
	led    *ledger.Memory
	seq    int64
	byID   map[string]*orders.Order
	byExt  map[string]*orders.Order
	failed error // forced CreateSale failure when set
}

func newFakeSales(led *ledger.Memory) *fakeSales {
	return &fakeSales{
		led:   led,
		byID:  make(map[string]*orders.Order),
		byExt: make(map[string]*orders.Order),
	}
}

func (f *fakeSales) CreateSale(ctx context.Context, in orders.SaleInput) (*orders.Order, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.byExt[in.ExternalID]; ok {
		return existing, true, nil
	}
	if f.failed != nil {
		return nil, false, f.failed
	}

	batch := make(map[string]int, len(in.Lines))
	for _, l := range in.Lines {
		batch[l.ProductID] = l.Qty
	}
	if err := f.led.FinalizeAll(ctx, batch); err != nil {
		if errors.Is(err, ledger.ErrInsufficientReservation) {
			for _, l := range in.Lines {
				if f.led.Reserved(l.ProductID) < l.Qty {
					return nil, false, &orders.StaleReservationError{ProductID: l.ProductID}
				}
			}
		}
		return nil, false, err
	}

	subtotal := 0
	var items []orders.OrderItem
	for _, l := range in.Lines {
		subtotal += l.PriceCents * l.Qty
		items = append(items, orders.OrderItem{
			ProductID:     l.ProductID,
			Name:          l.Name,
			Qty:           l.Qty,
			PriceCents:    l.PriceCents,
			SubtotalCents: l.PriceCents * l.Qty,
		})
	}
	tax := subtotal * in.TaxRateBps / 10000
	f.seq++
	ord := &orders.Order{
		ID:            uuid.NewString(),
		Seq:           f.seq,
		ExternalID:    in.ExternalID,
		SessionID:     in.SessionID,
		Status:        orders.StatusCompleted,
		PaymentMethod: in.PaymentMethod,
		SubtotalCents: subtotal,
		TaxCents:      tax,
		TotalCents:    subtotal + tax,
		CreatedAt:     time.Now(),
		Items:         items,
	}
	f.byID[ord.ID] = ord
	f.byExt[ord.ExternalID] = ord
	return ord, false, nil
}

func (f *fakeSales) GetOrder(_ context.Context, orderID string) (*orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ord, ok := f.byID[orderID]; ok {
		return ord, nil
	}
	return nil, orders.ErrOrderNotFound
}

func (f *fakeSales) GetOrderByExternalID(_ context.Context, externalID string) (*orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ord, ok := f.byExt[externalID]; ok {
		return ord, nil
	}
	return nil, orders.ErrOrderNotFound
}

// fakeReceipts issues idempotently like the Postgres service.
type fakeReceipts struct {
	mu      sync.Mutex
	fail    bool
	issued  map[string]*orders.Receipt
	issueCt int
}

func newFakeReceipts() *fakeReceipts {
	return &fakeReceipts{issued: make(map[string]*orders.Receipt)}
}

func (f *fakeReceipts) EnsureReceipt(_ context.Context, orderID string) (*orders.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("receipt store down")
	}
	if rc, ok := f.issued[orderID]; ok {
		return rc, nil
	}
	f.issueCt++
	rc := &orders.Receipt{
		ID:            uuid.NewString(),
		OrderID:       orderID,
		ReceiptNumber: receipts.Number(time.Now().Year(), int64(f.issueCt)),
		CreatedAt:     time.Now(),
	}
	f.issued[orderID] = rc
	return rc, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []kafkago.Message
}

func (f *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, kafkago.Message{Key: key, Value: value, Headers: headers})
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}
