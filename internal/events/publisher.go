// Package events announces committed order status changes on Kafka.
package events

import (
	"context"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-b2b-orders/internal/kafka"
	"github.com/ariefcatur/go-b2b-orders/internal/orders"
)

type Producer interface {
	Publish(key, value []byte, headers ...kafkago.Header) error
}

// Publisher implements orders.EventSink. Publishing is best effort: the order is already
// committed, so a failed publish is logged and dropped.
type Publisher struct {
	producer Producer
	service  string
	log      *zap.Logger
	now      func() time.Time
}

func NewPublisher(p Producer, service string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{producer: p, service: service, log: log, now: time.Now}
}

func (p *Publisher) OrderChanged(ctx context.Context, o orders.Order) {
	eventType := orders.EventTypeFor(o.Status)
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  orders.EventVersion,
		OccurredAt:    p.now().UTC(),
		Producer:      p.service,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: strconv.FormatInt(o.ID, 10),
		Payload:       kafkax.MustMarshal(orders.NewPayload(o)),
	}
	err := p.producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev), kafkax.EventHeaders(eventType, orders.EventVersion)...)
	if err != nil {
		p.log.Warn("order event not published",
			zap.Int64("order_id", o.ID), zap.String("event_type", eventType), zap.Error(err))
	}
}
