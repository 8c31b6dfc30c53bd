package orders

import "time"

type Product struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	PriceCents int       `json:"price_cents"`
	OnHand     int       `json:"on_hand"`
	Reserved   int       `json:"reserved"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Available is the number purchasable right now.
func (p Product) Available() int { return p.OnHand - p.Reserved }

// Order is immutable once created, except for the status transition.
type Order struct {
	ID            string      `json:"id"`
	Seq           int64       `json:"-"`
	ExternalID    string      `json:"external_id"`
	SessionID     string      `json:"session_id"`
	Status        Status      `json:"status"`
	PaymentMethod string      `json:"payment_method"`
	SubtotalCents int         `json:"subtotal_cents"`
	TaxCents      int         `json:"tax_cents"`
	TotalCents    int         `json:"total_cents"`
	CreatedAt     time.Time   `json:"created_at"`
	Items         []OrderItem `json:"items,omitempty"`
}

// OrderItem snapshots product, price and quantity at commit time.
type OrderItem struct {
	ID            int64  `json:"-"`
	OrderID       string `json:"-"`
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	Qty           int    `json:"qty"`
	PriceCents    int    `json:"price_cents"`
	SubtotalCents int    `json:"subtotal_cents"`
}

type Receipt struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id"`
	ReceiptNumber string    `json:"receipt_number"`
	CreatedAt     time.Time `json:"created_at"`
}
