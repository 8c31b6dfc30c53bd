package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/retailcore/checkout-engine/internal/checkout"
	"github.com/retailcore/checkout-engine/internal/orders"
)

type CheckoutHandler struct {
	Orchestrator *checkout.Orchestrator
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/checkout/{sessionID}", h.checkout)
}

type checkoutReq struct {
	PaymentMethod string `json:"payment_method"`
	ExternalID    string `json:"external_id"`
}

type checkoutResp struct {
	Order    *orders.Order   `json:"order"`
	Receipt  *orders.Receipt `json:"receipt,omitempty"`
	Warning  string          `json:"warning,omitempty"`
	Replayed bool            `json:"replayed,omitempty"`
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.PaymentMethod == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing payment_method"})
		return
	}

	res, err := h.Orchestrator.Checkout(r.Context(), sessionID, req.PaymentMethod, req.ExternalID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := checkoutResp{Order: res.Order, Receipt: res.Receipt, Replayed: res.Replayed}
	if res.ReceiptErr != nil {
		resp.Warning = res.ReceiptErr.Error()
	}
	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, resp)
}
