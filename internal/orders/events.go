package orders

import (
	"context"
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderCanceled  = "OrderCanceled"
)

const EventVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`
}

// OrderEventPayload is shared by every lifecycle event; Items is set on OrderCreated only.
type OrderEventPayload struct {
	OrderID    int64       `json:"order_id"`
	CustomerID int64       `json:"customer_id"`
	Status     Status      `json:"status"`
	TotalCents int64       `json:"total_cents"`
	Items      []OrderItem `json:"items,omitempty"`
}

// EventSink is told about every status change after its transaction committed.
// Replayed confirmations and no-op cancels are not reported.
type EventSink interface {
	OrderChanged(ctx context.Context, o Order)
}

type nopSink struct{}

func (nopSink) OrderChanged(context.Context, Order) {}

// EventTypeFor maps a resulting status to the event announcing it.
func EventTypeFor(s Status) string {
	switch s {
	case StatusConfirmed:
		return EventOrderConfirmed
	case StatusCanceled:
		return EventOrderCanceled
	default:
		return EventOrderCreated
	}
}

func NewPayload(o Order) OrderEventPayload {
	p := OrderEventPayload{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		TotalCents: o.TotalCents,
	}
	if o.Status == StatusCreated {
		p.Items = o.Items
	}
	return p
}
