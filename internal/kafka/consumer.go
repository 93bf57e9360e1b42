package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-b2b-orders/internal/observability"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       messageReader
	workers int
	log     *zap.Logger
	backoff time.Duration
	offsets *offsetTracker
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
		ErrorLogger:    observability.NewErrorPrintfAdapter(log),
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r messageReader, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, log: log, backoff: 200 * time.Millisecond, offsets: newOffsetTracker()}
}

// Start dispatches messages to a worker pool. Messages with the same key always land on
// the same worker, so they are handled in partition order. A failed message is retried
// until it succeeds and offsets are committed only up to the last contiguous handled one.
// It returns nil once ctx is canceled and the workers have drained.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	ids := make([]int, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 4)
		ids[i] = i
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				c.process(ctx, h, m)
			}
		}(lanes[i])
	}
	stop := func() {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
	}

	// sama dengan partisi di producer: key yang sama -> lane yang sama
	router := &kafka.Hash{}
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			// kecilkan noise saat shutdown
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.offsets.track(m)
		select {
		case lanes[router.Balance(m, ids...)] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) {
	fields := []zap.Field{zap.String("topic", m.Topic), zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset)}
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			break
		}
		c.log.Error("handler failed", append(fields, zap.Int("attempt", attempt), zap.Error(err))...)
		// offset tidak di-commit, ulangi setelah backoff
		select {
		case <-time.After(c.backoff):
		case <-ctx.Done():
			return
		}
	}
	if err := c.offsets.done(m, func(upTo kafka.Message) error {
		return c.r.CommitMessages(ctx, upTo)
	}); err != nil {
		c.log.Warn("commit failed", append(fields, zap.Error(err))...)
	}
}

type partitionKey struct {
	topic     string
	partition int
}

// offsetTracker remembers fetched offsets per partition so a commit never passes a
// message that is still being handled.
type offsetTracker struct {
	mu      sync.Mutex
	pending map[partitionKey][]kafka.Message
	handled map[partitionKey]map[int64]bool
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{
		pending: map[partitionKey][]kafka.Message{},
		handled: map[partitionKey]map[int64]bool{},
	}
}

func (t *offsetTracker) track(m kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := partitionKey{m.Topic, m.Partition}
	t.pending[k] = append(t.pending[k], m)
}

// done marks m handled and calls commit with the last message of the handled prefix of
// its partition, if that prefix grew. Commits run under the lock so they stay ordered.
func (t *offsetTracker) done(m kafka.Message, commit func(upTo kafka.Message) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := partitionKey{m.Topic, m.Partition}
	if t.handled[k] == nil {
		t.handled[k] = map[int64]bool{}
	}
	t.handled[k][m.Offset] = true

	q := t.pending[k]
	n := 0
	for n < len(q) && t.handled[k][q[n].Offset] {
		delete(t.handled[k], q[n].Offset)
		n++
	}
	if n == 0 {
		return nil
	}
	last := q[n-1]
	t.pending[k] = q[n:]
	return commit(last)
}
