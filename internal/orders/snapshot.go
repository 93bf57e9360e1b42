package orders

import (
	"encoding/json"
	"errors"
	"fmt"
)

type SnapshotKind string

const (
	SnapshotSuccess SnapshotKind = "success"
	SnapshotError   SnapshotKind = "error"
)

// ConfirmSnapshot is the stored outcome of a keyed confirmation. Exactly one of
// Order and Error is set, according to Kind.
type ConfirmSnapshot struct {
	Kind  SnapshotKind   `json:"kind"`
	Order *Order         `json:"order,omitempty"`
	Error *SnapshotFault `json:"error,omitempty"`
}

type SnapshotFault struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

func successSnapshot(o Order) ConfirmSnapshot {
	return ConfirmSnapshot{Kind: SnapshotSuccess, Order: &o}
}

func errorSnapshot(e *Error) ConfirmSnapshot {
	f := &SnapshotFault{Code: e.Code, Message: e.Message}
	if e.Details != nil {
		if b, err := json.Marshal(e.Details); err == nil {
			f.Details = b
		}
	}
	return ConfirmSnapshot{Kind: SnapshotError, Error: f}
}

func EncodeSnapshot(s ConfirmSnapshot) ([]byte, error) {
	return json.Marshal(s)
}

var errBadSnapshot = errors.New("malformed confirm snapshot")

func DecodeSnapshot(b []byte) (ConfirmSnapshot, error) {
	var s ConfirmSnapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return ConfirmSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	switch {
	case s.Kind == SnapshotSuccess && s.Order != nil:
	case s.Kind == SnapshotError && s.Error != nil:
	default:
		return ConfirmSnapshot{}, errBadSnapshot
	}
	return s, nil
}

// Result turns the snapshot back into what the original call returned.
func (s ConfirmSnapshot) Result() (Order, error) {
	if s.Kind == SnapshotSuccess {
		return *s.Order, nil
	}
	e := newError(s.Error.Code, s.Error.Message, nil)
	if len(s.Error.Details) > 0 {
		e.Details = s.Error.Details
	}
	return Order{}, e
}
