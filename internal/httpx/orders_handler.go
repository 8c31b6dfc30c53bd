package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/retailcore/checkout-engine/internal/orders"
)

// OrderQueries is the read surface the UI layer consumes.
type OrderQueries interface {
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	GetReceipt(ctx context.Context, orderID string) (*orders.Receipt, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
	GetProduct(ctx context.Context, productID string) (*orders.Product, error)
}

type OrdersHandler struct {
	Queries OrderQueries
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/receipt", h.getReceipt)
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ord, err := h.Queries.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ord)
}

func (h *OrdersHandler) getReceipt(w http.ResponseWriter, r *http.Request) {
	rc, err := h.Queries.GetReceipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Queries.ListProducts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if ps == nil {
		ps = []orders.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Queries.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
