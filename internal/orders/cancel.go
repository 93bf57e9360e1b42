package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// CancelOrder cancels a CREATED order, or a CONFIRMED one within the grace window, and
// restocks every line in the same transaction. Canceling a CANCELED order returns it unchanged.
func (e *Engine) CancelOrder(ctx context.Context, orderID int64) (Order, error) {
	if orderID <= 0 {
		return Order{}, validationError("invalid order id")
	}

	var (
		out     Order
		changed bool
	)
	err := inTx(ctx, e.db, func(tx pgx.Tx) error {
		repo := OrderRepo{Q: tx}
		o, err := repo.Lock(ctx, orderID)
		if errors.Is(err, pgx.ErrNoRows) {
			return orderNotFound(orderID)
		}
		if err != nil {
			return fmt.Errorf("lock order %d: %w", orderID, err)
		}
		// sudah ordered by product_id, jadi restock juga ascending
		if o.Items, err = repo.Items(ctx, orderID); err != nil {
			return fmt.Errorf("load items order=%d: %w", orderID, err)
		}

		if o.Status == StatusCanceled {
			out = o
			return nil
		}
		if o.Status == StatusConfirmed {
			now, err := e.dbNow(ctx, tx)
			if err != nil {
				return fmt.Errorf("read database clock: %w", err)
			}
			if elapsed := now.Sub(o.CreatedAt); elapsed > e.cancelGrace {
				return newError(CodeCancellationWindowExpired,
					fmt.Sprintf("confirmed orders can only be canceled within %s of creation", e.cancelGrace),
					CurrentStatus{OrderID: orderID, Status: o.Status})
			}
		}
		if !CanTransition(o.Status, StatusCanceled) {
			return invalidTransition(orderID, o.Status, "canceled")
		}

		ok, err := repo.CompareAndSetStatus(ctx, orderID, o.Status, StatusCanceled)
		if err != nil {
			return fmt.Errorf("cancel order %d: %w", orderID, err)
		}
		if !ok {
			return newError(CodeConcurrentModification, "concurrent status change detected", nil)
		}

		ledger := StockLedger{Q: tx}
		for _, it := range o.Items {
			ok, err := ledger.Restock(ctx, it.ProductID, it.Qty)
			if err != nil {
				return fmt.Errorf("restock product=%d: %w", it.ProductID, err)
			}
			if !ok {
				return concurrentStockUpdate(it.ProductID)
			}
		}

		o.Status = StatusCanceled
		out, changed = o, true
		return nil
	})
	if err != nil {
		e.logFailure("cancel order", err, zap.Int64("order_id", orderID))
		return Order{}, err
	}
	if changed {
		e.events.OrderChanged(ctx, out)
	}
	return out, nil
}

// dbNow reads the database clock, the same one created_at is stamped with.
func (e *Engine) dbNow(ctx context.Context, q Querier) (time.Time, error) {
	if e.fixedClock {
		return e.now(), nil
	}
	var now time.Time
	err := q.QueryRow(ctx, `SELECT clock_timestamp()`).Scan(&now)
	return now, err
}
