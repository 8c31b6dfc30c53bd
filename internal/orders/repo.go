package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailcore/checkout-engine/internal/ledger"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrReceiptNotFound = errors.New("receipt not found")
)

// StaleReservationError aborts a checkout whose reservation was
// released or expired before commit. The whole sale rolls back.
type StaleReservationError struct {
	ProductID string
}

func (e *StaleReservationError) Error() string {
	return fmt.Sprintf("stale reservation for product %s", e.ProductID)
}

func (e *StaleReservationError) Unwrap() error { return ledger.ErrInsufficientReservation }

// SaleLine is a cart line at the moment of checkout: quantity plus the
// snapshotted unit price.
type SaleLine struct {
	ProductID  string
	Name       string
	Qty        int
	PriceCents int
}

type SaleInput struct {
	ExternalID    string
	SessionID     string
	PaymentMethod string
	Lines         []SaleLine
	TaxRateBps    int
}

type Repo struct{ DB *pgxpool.Pool }

// CreateSale commits a cart into a permanent order in one transaction:
// finalize every line's reservation, then insert the order and its
// items. Any finalize failure rolls the whole sale back. Idempotent
// via external_id; a replay returns the existing order untouched.
func (r *Repo) CreateSale(ctx context.Context, in SaleInput) (*Order, bool, error) {
	if existing, err := r.GetOrderByExternalID(ctx, in.ExternalID); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, ErrOrderNotFound) {
		return nil, false, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	subtotal := 0
	for _, l := range in.Lines {
		if err := ledger.FinalizeInTx(ctx, tx, l.ProductID, l.Qty); err != nil {
			if errors.Is(err, ledger.ErrInsufficientReservation) {
				return nil, false, &StaleReservationError{ProductID: l.ProductID}
			}
			return nil, false, err
		}
		subtotal += l.PriceCents * l.Qty
	}

	tax := subtotal * in.TaxRateBps / 10000
	ord := &Order{
		ID:            uuid.NewString(),
		ExternalID:    in.ExternalID,
		SessionID:     in.SessionID,
		Status:        StatusPending,
		PaymentMethod: in.PaymentMethod,
		SubtotalCents: subtotal,
		TaxCents:      tax,
		TotalCents:    subtotal + tax,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, external_id, session_id, status, payment_method, subtotal_cents, tax_cents, total_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq, created_at`,
		ord.ID, ord.ExternalID, ord.SessionID, ord.Status, ord.PaymentMethod,
		ord.SubtotalCents, ord.TaxCents, ord.TotalCents).Scan(&ord.Seq, &ord.CreatedAt)
	if err != nil {
		return nil, false, err
	}

	for _, l := range in.Lines {
		item := OrderItem{
			OrderID:       ord.ID,
			ProductID:     l.ProductID,
			Name:          l.Name,
			Qty:           l.Qty,
			PriceCents:    l.PriceCents,
			SubtotalCents: l.PriceCents * l.Qty,
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, name, qty, price_cents, subtotal_cents)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			item.OrderID, item.ProductID, item.Name, item.Qty, item.PriceCents, item.SubtotalCents); err != nil {
			return nil, false, err
		}
		ord.Items = append(ord.Items, item)
	}

	if err := setStatus(ctx, tx, ord, StatusCompleted); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return ord, false, nil
}

func setStatus(ctx context.Context, tx pgx.Tx, ord *Order, to Status) error {
	if !CanTransition(ord.Status, to) {
		return fmt.Errorf("order %s: invalid status transition %s -> %s", ord.ID, ord.Status, to)
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, ord.ID, to); err != nil {
		return err
	}
	ord.Status = to
	return nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT id, seq, external_id, session_id, status, payment_method,
		       subtotal_cents, tax_cents, total_cents, created_at
		FROM orders WHERE id = $1`, orderID)
	return r.scanOrder(ctx, row)
}

func (r *Repo) GetOrderByExternalID(ctx context.Context, externalID string) (*Order, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT id, seq, external_id, session_id, status, payment_method,
		       subtotal_cents, tax_cents, total_cents, created_at
		FROM orders WHERE external_id = $1`, externalID)
	return r.scanOrder(ctx, row)
}

func (r *Repo) scanOrder(ctx context.Context, row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Seq, &o.ExternalID, &o.SessionID, &o.Status, &o.PaymentMethod,
		&o.SubtotalCents, &o.TaxCents, &o.TotalCents, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, name, qty, price_cents, subtotal_cents
		FROM order_items WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Qty, &it.PriceCents, &it.SubtotalCents); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

func (r *Repo) GetReceipt(ctx context.Context, orderID string) (*Receipt, error) {
	var rc Receipt
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_id, receipt_number, created_at
		FROM receipts WHERE order_id = $1`, orderID).
		Scan(&rc.ID, &rc.OrderID, &rc.ReceiptNumber, &rc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, sku, name, price_cents, on_hand, reserved, created_at, updated_at
		FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.OnHand, &p.Reserved, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, sku, name, price_cents, on_hand, reserved, created_at, updated_at
		FROM products WHERE id = $1`, productID).
		Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.OnHand, &p.Reserved, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
