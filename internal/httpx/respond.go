package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/retailcore/checkout-engine/internal/cart"
	"github.com/retailcore/checkout-engine/internal/checkout"
	"github.com/retailcore/checkout-engine/internal/ledger"
	"github.com/retailcore/checkout-engine/internal/orders"
	"github.com/retailcore/checkout-engine/internal/reservation"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps core errors onto HTTP statuses. Conflicts (409)
// mean the shopper should re-validate against current availability.
func writeError(w http.ResponseWriter, err error) {
	var ise *ledger.InsufficientStockError
	if errors.As(err, &ise) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "insufficient stock",
			"product_id": ise.ProductID,
			"available":  ise.Available,
		})
		return
	}
	var stale *orders.StaleReservationError
	if errors.As(err, &stale) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "stale reservation",
			"product_id": stale.ProductID,
		})
		return
	}

	switch {
	case errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, cart.ErrDeltaExceedsLine),
		errors.Is(err, checkout.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ledger.ErrProductNotFound),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrReceiptNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ledger.ErrStoreUnavailable),
		errors.Is(err, reservation.ErrStoreUnavailable),
		errors.Is(err, cart.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable, retry later"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
