package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type KeyStatus string

const (
	KeyPending   KeyStatus = "PENDING"
	KeyCompleted KeyStatus = "COMPLETED"
	KeyFailed    KeyStatus = "FAILED"
)

const TargetOrder = "order"

// IdempotencyKey is one row of idempotency_keys. ResponseBody holds an encoded
// ConfirmSnapshot once the key leaves PENDING.
type IdempotencyKey struct {
	KeyValue     string
	TargetType   string
	TargetID     int64
	Status       KeyStatus
	ResponseBody []byte
	ExpiresAt    time.Time
}

func (k IdempotencyKey) matches(targetType string, targetID int64) bool {
	return k.TargetType == targetType && k.TargetID == targetID
}

// IdempotencyStore records the outcome of at-most-once operations.
type IdempotencyStore struct{ Q Querier }

const keyColumns = `key_value, target_type, target_id, status, response_body, expires_at`

func scanKey(row pgx.Row) (IdempotencyKey, error) {
	var (
		k      IdempotencyKey
		status string
	)
	if err := row.Scan(&k.KeyValue, &k.TargetType, &k.TargetID, &status, &k.ResponseBody, &k.ExpiresAt); err != nil {
		return IdempotencyKey{}, err
	}
	k.Status = KeyStatus(status)
	return k, nil
}

// RegisterOrFetch inserts key in PENDING unless it already exists; first writer wins.
// created is true only when this call inserted the row. The returned row is locked
// for the rest of the transaction either way.
func (s IdempotencyStore) RegisterOrFetch(ctx context.Context, key, targetType string, targetID int64, expiresAt time.Time) (row IdempotencyKey, created bool, err error) {
	row, err = scanKey(s.Q.QueryRow(ctx, `
		INSERT INTO idempotency_keys(key_value, target_type, target_id, status, expires_at)
		VALUES ($1, $2, $3, 'PENDING', $4)
		ON CONFLICT (key_value) DO NOTHING
		RETURNING `+keyColumns, key, targetType, targetID, expiresAt))
	if err == nil {
		return row, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyKey{}, false, err
	}

	row, err = scanKey(s.Q.QueryRow(ctx, `SELECT `+keyColumns+` FROM idempotency_keys WHERE key_value=$1 FOR UPDATE`, key))
	if err != nil {
		return IdempotencyKey{}, false, err
	}
	return row, false, nil
}

// Complete finalises a PENDING key with a success snapshot and refreshes its expiry.
func (s IdempotencyStore) Complete(ctx context.Context, key string, body []byte, expiresAt time.Time) error {
	return s.finish(ctx, key, KeyCompleted, body, expiresAt)
}

// Fail finalises a PENDING key with an error snapshot.
func (s IdempotencyStore) Fail(ctx context.Context, key string, body []byte, expiresAt time.Time) error {
	return s.finish(ctx, key, KeyFailed, body, expiresAt)
}

var errKeyNotPending = errors.New("idempotency key is no longer pending")

func (s IdempotencyStore) finish(ctx context.Context, key string, to KeyStatus, body []byte, expiresAt time.Time) error {
	ct, err := s.Q.Exec(ctx, `
		UPDATE idempotency_keys
		   SET status=$2, response_body=$3, expires_at=$4
		 WHERE key_value=$1 AND status='PENDING'`,
		key, string(to), body, expiresAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return errKeyNotPending
	}
	return nil
}

// CompletedByOtherKey reports whether a different key already completed an operation
// on the same target.
func (s IdempotencyStore) CompletedByOtherKey(ctx context.Context, key, targetType string, targetID int64) (bool, error) {
	var exists bool
	err := s.Q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM idempotency_keys
			WHERE target_type=$1 AND target_id=$2 AND status='COMPLETED' AND key_value <> $3
		)`, targetType, targetID, key).Scan(&exists)
	return exists, err
}

// DeleteExpired removes up to limit rows whose expires_at is not after now.
// Retention is owned by an external janitor; the engine never calls this.
func (s IdempotencyStore) DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 100
	}
	ct, err := s.Q.Exec(ctx, `
		DELETE FROM idempotency_keys
		WHERE key_value IN (
			SELECT key_value FROM idempotency_keys
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)`, now, limit)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
