// Package projection keeps the Redis order status view in step with lifecycle events.
package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-b2b-orders/internal/kafka"
	"github.com/ariefcatur/go-b2b-orders/internal/orders"
	"github.com/ariefcatur/go-b2b-orders/internal/redisx"
)

type Service struct {
	Redis       redis.Cmdable
	Cache       *redisx.StatusCache
	ServiceName string
	Log         *zap.Logger
}

// HandleOrderEvent dipasang sebagai handler consumer.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.log().Warn("skip undecodable event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil // poison message, jangan di-retry
	}
	switch env.EventType {
	case orders.EventOrderCreated, orders.EventOrderConfirmed, orders.EventOrderCanceled:
	default:
		return nil // ignore
	}

	p, err := kafkax.UnwrapPayload[orders.OrderEventPayload](env.Payload)
	if err != nil {
		s.log().Warn("skip event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	// 2) dedup via Redis (pakai event_id)
	dkey := redisx.DedupKey(s.ServiceName, env.EventID)
	first, err := redisx.MarkOnce(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		return nil
	}

	// 3) tulis status; kalau gagal, lepas dedup supaya retry bisa jalan
	entry := redisx.StatusEntry{Status: string(p.Status), Rank: p.Status.Rank(), UpdatedAt: env.OccurredAt}
	applied, err := s.Cache.Set(ctx, p.OrderID, entry)
	if err != nil {
		_ = s.Redis.Del(ctx, dkey).Err()
		return fmt.Errorf("project order %d: %w", p.OrderID, err)
	}
	if !applied {
		// event telat: status yang lebih baru sudah ada di cache
		s.log().Debug("stale status event skipped", zap.Int64("order_id", p.OrderID), zap.String("status", entry.Status))
		return nil
	}
	s.log().Debug("status projected", zap.Int64("order_id", p.OrderID), zap.String("status", entry.Status))
	return nil
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
