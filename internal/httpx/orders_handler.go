package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-b2b-orders/internal/orders"
	"github.com/ariefcatur/go-b2b-orders/internal/pagination"
	"github.com/ariefcatur/go-b2b-orders/internal/redisx"
)

// OrderEngine is the part of *orders.Engine the HTTP layer drives.
type OrderEngine interface {
	CreateOrder(ctx context.Context, customerID int64, items []orders.ItemInput) (orders.Order, error)
	ConfirmOrder(ctx context.Context, orderID int64, key string) (orders.Order, error)
	CancelOrder(ctx context.Context, orderID int64) (orders.Order, error)
	GetOrder(ctx context.Context, id int64) (orders.Order, error)
	ListOrders(ctx context.Context, f orders.OrderFilter, cursor int64, limit int) (pagination.Page[orders.Order], error)
	GetProduct(ctx context.Context, id int64) (orders.Product, error)
	ListProducts(ctx context.Context, f orders.ProductFilter, cursor int64, limit int) (pagination.Page[orders.Product], error)
}

type StatusCache interface {
	Get(ctx context.Context, orderID int64, load redisx.StatusLoader) (redisx.StatusEntry, bool, error)
	Set(ctx context.Context, orderID int64, e redisx.StatusEntry) (bool, error)
	Invalidate(ctx context.Context, orderID int64) error
}

type OrdersHandler struct {
	Engine OrderEngine
	Cache  StatusCache
	Log    *zap.Logger
}

const idempotencyHeader = "Idempotency-Key"

var validate = validator.New()

type CreateOrderReq struct {
	CustomerID int64              `json:"customer_id" validate:"required,gt=0"`
	Items      []orders.ItemInput `json:"items" validate:"required,min=1,dive"`
}

type ConfirmOrderReq struct {
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,max=255"`
}

type StatusResp struct {
	OrderID   int64     `json:"order_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	Cached    bool      `json:"cached"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Post("/orders/{id}/confirm", h.confirmOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
}

func (h *OrdersHandler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

// decodeBody decodes JSON and runs struct validation. An empty body is allowed when
// optional is set.
func decodeBody(r *http.Request, v any, optional bool) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return fmt.Errorf("invalid json: %w", err)
		}
	}
	return validate.Struct(v)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		writeFail(w, http.StatusBadRequest, orders.CodeValidation, "validation failed", fields)
		return
	}
	writeFail(w, http.StatusBadRequest, orders.CodeValidation, err.Error(), nil)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := decodeBody(r, &req, false); err != nil {
		writeBadRequest(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.CreateOrder(ctx, req.CustomerID, req.Items)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, o)
}

func (h *OrdersHandler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeFail(w, http.StatusBadRequest, orders.CodeValidation, "invalid order id", nil)
		return
	}
	var req ConfirmOrderReq
	if err := decodeBody(r, &req, true); err != nil {
		writeBadRequest(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key == "" {
		key = req.IdempotencyKey
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.ConfirmOrder(ctx, id, key)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.refreshStatus(ctx, o)
	writeData(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeFail(w, http.StatusBadRequest, orders.CodeValidation, "invalid order id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.CancelOrder(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.refreshStatus(ctx, o)
	writeData(w, http.StatusOK, o)
}

// refreshStatus writes the committed status into the cache. A read-through fill that
// loaded the old status earlier cannot overwrite it; if Redis refuses the write the
// entry is dropped instead.
func (h *OrdersHandler) refreshStatus(ctx context.Context, o orders.Order) {
	if h.Cache == nil {
		return
	}
	entry := redisx.StatusEntry{Status: string(o.Status), Rank: o.Status.Rank(), UpdatedAt: time.Now().UTC()}
	_, err := h.Cache.Set(ctx, o.ID, entry)
	if err == nil {
		return
	}
	h.log().Warn("status cache write failed", zap.Int64("order_id", o.ID), zap.Error(err))
	if err := h.Cache.Invalidate(ctx, o.ID); err != nil {
		h.log().Warn("status cache invalidate failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeFail(w, http.StatusBadRequest, orders.CodeValidation, "invalid order id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Engine.GetOrder(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeFail(w, http.StatusBadRequest, orders.CodeValidation, "invalid order id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache, 2) fallback DB
	load := func(ctx context.Context) (redisx.StatusEntry, error) {
		o, err := h.Engine.GetOrder(ctx, id)
		if err != nil {
			return redisx.StatusEntry{}, err
		}
		return redisx.StatusEntry{Status: string(o.Status), Rank: o.Status.Rank()}, nil
	}
	var (
		entry redisx.StatusEntry
		hit   bool
	)
	if h.Cache != nil {
		entry, hit, err = h.Cache.Get(ctx, id, load)
	} else {
		entry, err = load(ctx)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, StatusResp{OrderID: id, Status: entry.Status, UpdatedAt: entry.UpdatedAt, Cached: hit})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cursor, err := pagination.ParseCursor(q.Get("cursor"))
	if err != nil {
		writeFail(w, http.StatusBadRequest, orders.CodeValidation, "invalid cursor", nil)
		return
	}
	limit := pagination.ParseLimit(q.Get("limit"))

	f := orders.OrderFilter{Status: orders.Status(strings.ToUpper(strings.TrimSpace(q.Get("status"))))}
	if f.From, err = parseTime(q.Get("from")); err != nil {
		writeFail(w, http.StatusBadRequest, orders.CodeValidation, "invalid from: use RFC3339", nil)
		return
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		writeFail(w, http.StatusBadRequest, orders.CodeValidation, "invalid to: use RFC3339", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	page, err := h.Engine.ListOrders(ctx, f, cursor, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writePage(w, page, limit)
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
