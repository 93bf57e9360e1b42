package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-b2b-orders/internal/pagination"
)

const (
	// DefaultCancelGrace is how long after creation a CONFIRMED order may still be canceled.
	DefaultCancelGrace = 10 * time.Minute
	// DefaultKeyTTL stamps idempotency_keys.expires_at.
	DefaultKeyTTL = 24 * time.Hour
	// MaxLineQty is the largest quantity one order line can hold (order_items.qty is INTEGER).
	MaxLineQty = math.MaxInt32
)

// CustomerValidator answers whether a customer exists and is active.
// A non-nil error means the answer is unknown.
type CustomerValidator interface {
	Exists(ctx context.Context, customerID int64) (bool, error)
}

// Engine runs order create / confirm / cancel, each in one local transaction.
type Engine struct {
	db          DB
	customers   CustomerValidator
	log         *zap.Logger
	events      EventSink
	now         func() time.Time
	fixedClock  bool
	cancelGrace time.Duration
	keyTTL      time.Duration
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithEvents registers the sink told about committed status changes.
func WithEvents(s EventSink) Option {
	return func(e *Engine) {
		if s != nil {
			e.events = s
		}
	}
}

// WithClock replaces the app clock. It also replaces the database clock the cancel grace
// window is measured with, so tests can pin both.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now, e.fixedClock = now, true
		}
	}
}

func WithCancelGrace(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.cancelGrace = d
		}
	}
}

func WithKeyTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.keyTTL = d
		}
	}
}

func NewEngine(db DB, customers CustomerValidator, opts ...Option) *Engine {
	e := &Engine{
		db:          db,
		customers:   customers,
		log:         zap.NewNop(),
		events:      nopSink{},
		now:         time.Now,
		cancelGrace: DefaultCancelGrace,
		keyTTL:      DefaultKeyTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// mergeItems validates the request and sums quantities per product.
// The returned ids are ascending.
func mergeItems(customerID int64, items []ItemInput) (qty map[int64]int, ids []int64, err error) {
	if customerID <= 0 {
		return nil, nil, validationError("valid customer id is required")
	}
	if len(items) == 0 {
		return nil, nil, validationError("order must contain at least one item")
	}
	qty = make(map[int64]int, len(items))
	for _, it := range items {
		if it.ProductID <= 0 {
			return nil, nil, validationError("invalid product id %d", it.ProductID)
		}
		if it.Qty <= 0 {
			return nil, nil, validationError("invalid qty for product %d", it.ProductID)
		}
		prev, seen := qty[it.ProductID]
		if !seen {
			ids = append(ids, it.ProductID)
		}
		// both operands are <= MaxLineQty here, so the compare cannot overflow
		if it.Qty > MaxLineQty || prev > MaxLineQty-it.Qty {
			return nil, nil, validationError("qty for product %d exceeds %d", it.ProductID, MaxLineQty)
		}
		qty[it.ProductID] = prev + it.Qty
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return qty, ids, nil
}

// lineSubtotal multiplies price by qty; ok is false when the product does not fit in int64.
func lineSubtotal(priceCents int64, qty int) (int64, bool) {
	if priceCents < 0 || qty < 0 {
		return 0, false
	}
	if qty != 0 && priceCents > math.MaxInt64/int64(qty) {
		return 0, false
	}
	return priceCents * int64(qty), true
}

// CreateOrder persists a CREATED order and decrements stock for every line, or writes nothing.
//
// The customer check runs before the transaction opens; a customer changed between the
// check and the commit is not detected.
func (e *Engine) CreateOrder(ctx context.Context, customerID int64, items []ItemInput) (Order, error) {
	qty, ids, err := mergeItems(customerID, items)
	if err != nil {
		return Order{}, err
	}

	ok, err := e.customers.Exists(ctx, customerID)
	if err != nil {
		e.log.Warn("customer check failed", zap.Int64("customer_id", customerID), zap.Error(err))
		return Order{}, newError(CodeUpstreamUnavailable, "unable to validate customer: "+err.Error(), nil)
	}
	if !ok {
		return Order{}, newError(CodeNotFound, fmt.Sprintf("customer %d not found or inactive", customerID), nil)
	}

	var order Order
	err = inTx(ctx, e.db, func(tx pgx.Tx) error {
		ledger := StockLedger{Q: tx}
		products, missing, err := ledger.LockProducts(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}
		if len(missing) > 0 {
			return productsNotFound(missing)
		}

		lines := make([]OrderItem, 0, len(ids))
		var total int64
		for _, id := range ids {
			p, want := products[id], qty[id]
			if p.Stock < want {
				return insufficientStock(StockShortfall{ProductID: id, Name: p.Name, Available: p.Stock, Requested: want})
			}
			subtotal, ok := lineSubtotal(p.PriceCents, want)
			if !ok || total > math.MaxInt64-subtotal {
				return validationError("order total overflows for product %d", id)
			}
			total += subtotal
			lines = append(lines, OrderItem{
				ProductID:      id,
				ProductName:    p.Name,
				ProductSKU:     p.SKU,
				Qty:            want,
				UnitPriceCents: p.PriceCents,
				SubtotalCents:  subtotal,
			})
		}

		repo := OrderRepo{Q: tx}
		orderID, createdAt, err := repo.Insert(ctx, customerID, total)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := repo.InsertItems(ctx, orderID, lines); err != nil {
			return err
		}

		for _, it := range lines {
			ok, err := ledger.Decrement(ctx, it.ProductID, it.Qty)
			if err != nil {
				return fmt.Errorf("decrement stock product=%d: %w", it.ProductID, err)
			}
			if !ok {
				return concurrentStockUpdate(it.ProductID)
			}
		}

		order = Order{
			ID:         orderID,
			CustomerID: customerID,
			Status:     StatusCreated,
			TotalCents: total,
			CreatedAt:  createdAt,
			Items:      lines,
		}
		return nil
	})
	if err != nil {
		e.logFailure("create order", err, zap.Int64("customer_id", customerID))
		return Order{}, err
	}

	e.log.Debug("order created", zap.Int64("order_id", order.ID), zap.Int64("total_cents", order.TotalCents))
	e.events.OrderChanged(ctx, order)
	return order, nil
}

// GetOrder reads one order with its items.
func (e *Engine) GetOrder(ctx context.Context, id int64) (Order, error) {
	if id <= 0 {
		return Order{}, validationError("invalid order id")
	}
	o, err := OrderRepo{Q: e.db}.Get(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, orderNotFound(id)
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order %d: %w", id, err)
	}
	return o, nil
}

// ListOrders pages through orders by ascending id.
func (e *Engine) ListOrders(ctx context.Context, f OrderFilter, cursor int64, limit int) (pagination.Page[Order], error) {
	if f.Status != "" && !f.Status.Valid() {
		return pagination.Page[Order]{}, validationError("invalid status %q", f.Status)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return pagination.Page[Order]{}, validationError("from must not be after to")
	}
	if cursor < 0 {
		return pagination.Page[Order]{}, validationError("invalid cursor")
	}

	repo := OrderRepo{Q: e.db}
	page, err := pagination.Load(cursor, limit, func(cursor int64, n int) ([]Order, error) {
		return repo.List(ctx, f, cursor, n)
	}, func(o Order) int64 { return o.ID })
	if err != nil {
		return pagination.Page[Order]{}, fmt.Errorf("list orders: %w", err)
	}
	return page, nil
}

// logFailure logs business rejections at info and everything else at error.
func (e *Engine) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	var oe *Error
	if errors.As(err, &oe) {
		e.log.Info(op+" rejected", append(fields, zap.String("code", oe.Code))...)
		return
	}
	e.log.Error(op+" failed", fields...)
}
