package redisx

import "time"

const (
	// Durable cart lines per session: cart:{session_id} -> CartLine[] JSON.
	KeyCartLines = "cart:%s"

	// Idempotency fast path for checkout: idem:checkout:{external_id} -> order_id.
	KeyIdemCheckout = "idem:checkout:%s"

	// Dedup for event consumers: dedup:{service}:{event_id}.
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
