package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Service keeps Redis read models in step with the order event log: the
// per-order status cache and per-seller counts of orders by status.
type Service struct {
	Redis       *redis.Client
	ServiceName string
}

type cachedStatus struct {
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// HandleOrderEvent is installed as the consumer handler.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCreated && env.EventType != orders.EventStatusChanged {
		return nil
	}

	ev, err := kafkax.UnwrapPayload[orders.Event](env.Payload)
	if err != nil {
		return err
	}

	// first writer wins; a redelivered event is skipped
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	fresh, err := s.Redis.SetNX(ctx, dkey, "1", redisx.TTLDedup).Result()
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	if err := s.project(ctx, ev); err != nil {
		// let the redelivery through
		_ = s.Redis.Del(ctx, dkey).Err()
		return err
	}

	logging.Log(logging.Fields{Service: s.ServiceName, OrderID: ev.OrderID, SellerID: ev.SellerID,
		Event: ev.Type, Status: string(ev.NewStatus)})
	return nil
}

const casAttempts = 5

// project updates the seller counters and, when the event is newer than what
// is cached, the order's status entry. Events may arrive out of order.
func (s *Service) project(ctx context.Context, ev orders.Event) error {
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, ev.OrderID)
	statsKey := fmt.Sprintf(redisx.KeySellerStats, ev.SellerID)
	status, err := json.Marshal(cachedStatus{Status: ev.NewStatus, UpdatedAt: ev.OccurredAt})
	if err != nil {
		return err
	}

	txf := func(tx *redis.Tx) error {
		fresher, err := newerThanCached(ctx, tx, statusKey, ev.OccurredAt)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if fresher {
				p.Set(ctx, statusKey, status, redisx.TTLStatusCache)
			}
			p.HIncrBy(ctx, statsKey, string(ev.NewStatus), 1)
			if ev.Type == orders.EventStatusChanged && ev.OldStatus != "" {
				p.HIncrBy(ctx, statsKey, string(ev.OldStatus), -1)
			}
			return nil
		})
		return err
	}

	for i := 0; i < casAttempts; i++ {
		err = s.Redis.Watch(ctx, txf, statusKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func newerThanCached(ctx context.Context, tx *redis.Tx, key string, at time.Time) (bool, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	var cur cachedStatus
	if err := json.Unmarshal(raw, &cur); err != nil {
		return true, nil
	}
	return at.After(cur.UpdatedAt), nil
}
