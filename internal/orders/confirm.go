package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const maxKeyLength = 255

// ConfirmOrder moves a CREATED order to CONFIRMED at most once per idempotency key.
// Every call with the same key observes the same outcome.
func (e *Engine) ConfirmOrder(ctx context.Context, orderID int64, key string) (Order, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Order{}, validationError("idempotency key required")
	}
	if len(key) > maxKeyLength {
		return Order{}, validationError("idempotency key longer than %d characters", maxKeyLength)
	}
	if orderID <= 0 {
		return Order{}, validationError("invalid order id")
	}

	tx, err := e.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, fmt.Errorf("begin confirm: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order, failure, changed, err := e.confirmTx(ctx, tx, orderID, key)
	if err != nil {
		e.logFailure("confirm order", err, zap.Int64("order_id", orderID), zap.String("idempotency_key", key))
		return Order{}, err
	}
	// failure != nil: the key was marked FAILED; that row is the only write and must persist.
	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("commit confirm: %w", err)
	}
	if failure != nil {
		e.logFailure("confirm order", failure, zap.Int64("order_id", orderID), zap.String("idempotency_key", key))
		return Order{}, failure
	}
	if changed {
		e.events.OrderChanged(ctx, order)
	}
	return order, nil
}

// confirmTx returns either the order, a failure that has been recorded on the key
// (commit, then surface it), or an error that must roll everything back.
// changed is true only when this call moved the order to CONFIRMED.
func (e *Engine) confirmTx(ctx context.Context, tx pgx.Tx, orderID int64, key string) (o Order, failure *Error, changed bool, err error) {
	expires := e.now().Add(e.keyTTL)
	keys := IdempotencyStore{Q: tx}

	row, created, err := keys.RegisterOrFetch(ctx, key, TargetOrder, orderID, expires)
	if err != nil {
		return Order{}, nil, false, fmt.Errorf("register idempotency key: %w", err)
	}
	if !row.matches(TargetOrder, orderID) {
		return Order{}, nil, false, newError(CodeInvalidKeyReuse,
			"idempotency key already used for a different operation",
			map[string]any{"target_type": row.TargetType, "target_id": row.TargetID})
	}

	switch row.Status {
	case KeyCompleted, KeyFailed:
		snap, err := DecodeSnapshot(row.ResponseBody)
		if err != nil {
			return Order{}, nil, false, fmt.Errorf("replay key %q: %w", key, err)
		}
		e.log.Debug("replaying confirmation", zap.String("idempotency_key", key), zap.String("key_status", string(row.Status)))
		o, replayed := snap.Result()
		if replayed != nil {
			return Order{}, nil, false, replayed
		}
		return o, nil, false, nil
	case KeyPending:
		if !created {
			return Order{}, nil, false, newError(CodeOperationInProgress, "operation in progress for this idempotency key", nil)
		}
	default:
		return Order{}, nil, false, fmt.Errorf("idempotency key %q has unknown status %q", key, row.Status)
	}

	repo := OrderRepo{Q: tx}
	current, err := repo.Lock(ctx, orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		o, failure, err := e.failKey(ctx, keys, key, orderNotFound(orderID), expires)
		return o, failure, false, err
	}
	if err != nil {
		return Order{}, nil, false, fmt.Errorf("lock order %d: %w", orderID, err)
	}

	switch current.Status {
	case StatusCreated:
		ok, err := repo.CompareAndSetStatus(ctx, orderID, StatusCreated, StatusConfirmed)
		if err != nil {
			return Order{}, nil, false, fmt.Errorf("confirm order %d: %w", orderID, err)
		}
		if !ok {
			o, failure, err := e.failKey(ctx, keys, key, newError(CodeConcurrentModification, "concurrent confirmation detected", nil), expires)
			return o, failure, false, err
		}
		current.Status = StatusConfirmed
		o, err := e.completeKey(ctx, repo, keys, key, current, expires)
		return o, nil, err == nil, err

	case StatusConfirmed:
		// Confirmed under another key: this key is a new request against a confirmed order.
		// Confirmed without any key: adopt that outcome as this key's success.
		other, err := keys.CompletedByOtherKey(ctx, key, TargetOrder, orderID)
		if err != nil {
			return Order{}, nil, false, fmt.Errorf("check confirming key: %w", err)
		}
		if other {
			o, failure, err := e.failKey(ctx, keys, key, invalidTransition(orderID, current.Status, "confirmed"), expires)
			return o, failure, false, err
		}
		o, err := e.completeKey(ctx, repo, keys, key, current, expires)
		return o, nil, false, err

	default:
		o, failure, err := e.failKey(ctx, keys, key, invalidTransition(orderID, current.Status, "confirmed"), expires)
		return o, failure, false, err
	}
}

func (e *Engine) completeKey(ctx context.Context, repo OrderRepo, keys IdempotencyStore, key string, o Order, expires time.Time) (Order, error) {
	items, err := repo.Items(ctx, o.ID)
	if err != nil {
		return Order{}, fmt.Errorf("load items order=%d: %w", o.ID, err)
	}
	o.Items = items

	body, err := EncodeSnapshot(successSnapshot(o))
	if err != nil {
		return Order{}, err
	}
	if err := keys.Complete(ctx, key, body, expires); err != nil {
		return Order{}, fmt.Errorf("complete key %q: %w", key, err)
	}
	e.log.Debug("order confirmed", zap.Int64("order_id", o.ID), zap.String("idempotency_key", key))
	return o, nil
}

func (e *Engine) failKey(ctx context.Context, keys IdempotencyStore, key string, failure *Error, expires time.Time) (Order, *Error, error) {
	body, err := EncodeSnapshot(errorSnapshot(failure))
	if err != nil {
		return Order{}, nil, err
	}
	if err := keys.Fail(ctx, key, body, expires); err != nil {
		return Order{}, nil, fmt.Errorf("fail key %q: %w", key, err)
	}
	return Order{}, failure, nil
}
