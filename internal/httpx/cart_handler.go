package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/retailcore/checkout-engine/internal/cart"
)

type CartHandler struct {
	Cart *cart.Service
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Get("/cart/{sessionID}", h.getCart)
	r.Post("/cart/{sessionID}/items", h.addItem)
	r.Patch("/cart/{sessionID}/items/{productID}", h.decreaseItem)
	r.Delete("/cart/{sessionID}/items/{productID}", h.removeItem)
}

type addItemReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type decreaseItemReq struct {
	Qty int `json:"qty"`
}

type cartResp struct {
	SessionID     string      `json:"session_id"`
	Lines         []cart.Line `json:"lines"`
	SubtotalCents int         `json:"subtotal_cents"`
}

func cartBody(sessionID string, lines []cart.Line) cartResp {
	if lines == nil {
		lines = []cart.Line{}
	}
	return cartResp{SessionID: sessionID, Lines: lines, SubtotalCents: cart.Total(lines)}
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	lines, err := h.Cart.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartBody(sessionID, lines))
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var req addItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing product_id"})
		return
	}

	lines, err := h.Cart.AddOrIncrease(r.Context(), sessionID, req.ProductID, req.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartBody(sessionID, lines))
}

func (h *CartHandler) decreaseItem(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	productID := chi.URLParam(r, "productID")
	var req decreaseItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	lines, err := h.Cart.Decrease(r.Context(), sessionID, productID, req.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartBody(sessionID, lines))
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	productID := chi.URLParam(r, "productID")

	lines, err := h.Cart.Remove(r.Context(), sessionID, productID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartBody(sessionID, lines))
}
