package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-b2b-orders/internal/orders"
	"github.com/ariefcatur/go-b2b-orders/internal/pagination"
)

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cursor, err := pagination.ParseCursor(q.Get("cursor"))
	if err != nil {
		writeFail(w, http.StatusBadRequest, orders.CodeValidation, "invalid cursor", nil)
		return
	}
	limit := pagination.ParseLimit(q.Get("limit"))

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	page, err := h.Engine.ListProducts(ctx, orders.ProductFilter{Search: q.Get("search")}, cursor, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writePage(w, page, limit)
}

func (h *OrdersHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeFail(w, http.StatusBadRequest, orders.CodeValidation, "invalid product id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Engine.GetProduct(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, p)
}
