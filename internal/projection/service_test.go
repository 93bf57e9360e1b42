package projection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/ariefcatur/go-b2b-orders/internal/kafka"
	"github.com/ariefcatur/go-b2b-orders/internal/orders"
	"github.com/ariefcatur/go-b2b-orders/internal/redisx"
)

var occurred = time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)

func eventMessage(eventID, eventType string, status orders.Status) kafkago.Message {
	return eventMessageAt(eventID, eventType, status, occurred)
}

func eventMessageAt(eventID, eventType string, status orders.Status, at time.Time) kafkago.Message {
	env := orders.Envelope{
		EventID:      eventID,
		EventType:    eventType,
		EventVersion: orders.EventVersion,
		OccurredAt:   at,
		Producer:     "order-api",
		Payload:      kafkax.MustMarshal(orders.OrderEventPayload{OrderID: 42, CustomerID: 7, Status: status, TotalCents: 900}),
	}
	return kafkago.Message{Value: kafkax.MustMarshal(env)}
}

func expectStatusWrite(mock redismock.ClientMock, value string, rank int) *redismock.ExpectedCmd {
	return mock.ExpectEvalSha(redisx.SetStatusScript.Hash(), []string{"order_status:42"}, value, rank, time.Minute.Milliseconds())
}

func newService() (*Service, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return &Service{
		Redis:       db,
		Cache:       redisx.NewStatusCache(db, time.Minute, nil),
		ServiceName: "projector",
	}, mock
}

func TestHandleOrderEventProjectsStatusOnce(t *testing.T) {
	s, mock := newService()
	msg := eventMessage("evt-1", orders.EventOrderConfirmed, orders.StatusConfirmed)

	mock.ExpectSetNX("dedup:projector:evt-1", "1", redisx.TTLDedup).SetVal(true)
	expectStatusWrite(mock, `{"status":"CONFIRMED","rank":2,"updated_at":"2024-03-01T09:30:00Z"}`, 2).SetVal(int64(1))
	mock.ExpectSetNX("dedup:projector:evt-1", "1", redisx.TTLDedup).SetVal(false)

	require.NoError(t, s.HandleOrderEvent(context.Background(), msg))
	require.NoError(t, s.HandleOrderEvent(context.Background(), msg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleOrderEventReleasesDedupOnWriteFailure(t *testing.T) {
	s, mock := newService()
	msg := eventMessage("evt-2", orders.EventOrderCanceled, orders.StatusCanceled)

	mock.ExpectSetNX("dedup:projector:evt-2", "1", redisx.TTLDedup).SetVal(true)
	expectStatusWrite(mock, `{"status":"CANCELED","rank":3,"updated_at":"2024-03-01T09:30:00Z"}`, 3).
		SetErr(errors.New("READONLY"))
	mock.ExpectDel("dedup:projector:evt-2").SetVal(1)

	require.Error(t, s.HandleOrderEvent(context.Background(), msg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleOrderEventOutOfOrderKeepsLaterStatus(t *testing.T) {
	s, mock := newService()
	confirmed := eventMessageAt("evt-5", orders.EventOrderConfirmed, orders.StatusConfirmed, occurred.Add(time.Second))
	created := eventMessageAt("evt-4", orders.EventOrderCreated, orders.StatusCreated, occurred)

	mock.ExpectSetNX("dedup:projector:evt-5", "1", redisx.TTLDedup).SetVal(true)
	expectStatusWrite(mock, `{"status":"CONFIRMED","rank":2,"updated_at":"2024-03-01T09:30:01Z"}`, 2).SetVal(int64(1))
	mock.ExpectSetNX("dedup:projector:evt-4", "1", redisx.TTLDedup).SetVal(true)
	expectStatusWrite(mock, `{"status":"CREATED","rank":1,"updated_at":"2024-03-01T09:30:00Z"}`, 1).SetVal(int64(0))

	require.NoError(t, s.HandleOrderEvent(context.Background(), confirmed))
	require.NoError(t, s.HandleOrderEvent(context.Background(), created))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleOrderEventIgnoresForeignAndBrokenMessages(t *testing.T) {
	s, mock := newService()

	require.NoError(t, s.HandleOrderEvent(context.Background(), eventMessage("evt-3", "StockReserved", orders.StatusCreated)))
	require.NoError(t, s.HandleOrderEvent(context.Background(), kafkago.Message{Value: []byte("{")}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
