package events

import (
	"encoding/json"
	"time"
)

const (
	EventSaleCompleted = "SaleCompleted"
	EventStockReleased = "StockReleased"
)

// Envelope wraps every published event. correlation_id is the order id
// for sale events and the session id for stock events.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type SaleItem struct {
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

type SaleCompletedPayload struct {
	OrderID       string     `json:"order_id"`
	SessionID     string     `json:"session_id"`
	PaymentMethod string     `json:"payment_method"`
	TotalCents    int        `json:"total_cents"`
	Items         []SaleItem `json:"items"`
}

// StockReleasedPayload records stock the sweeper returned to the
// available pool when a reservation expired.
type StockReleasedPayload struct {
	SessionID string `json:"session_id"`
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	Reason    string `json:"reason"` // e.g. RESERVATION_EXPIRED
}
