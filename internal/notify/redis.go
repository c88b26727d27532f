package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// RedisBroker publishes events on per-seller Redis channels and, while Run is
// active, forwards every seller channel into the local Hub. Each API instance
// runs one broker so subscribers connected anywhere see every event.
type RedisBroker struct {
	Redis   *redis.Client
	Hub     *Hub
	Service string

	// Reconnect backoff bounds; zero values mean 200ms and 10s.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func (b *RedisBroker) Publish(ctx context.Context, sellerID int64, ev orders.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.Redis.Publish(ctx, redisx.SellerChannel(sellerID), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run forwards Redis messages to the Hub until ctx is done. A failed or
// dropped subscription is retried with exponential backoff.
func (b *RedisBroker) Run(ctx context.Context) error {
	minWait, maxWait := b.MinBackoff, b.MaxBackoff
	if minWait <= 0 {
		minWait = 200 * time.Millisecond
	}
	if maxWait < minWait {
		maxWait = 10 * time.Second
	}

	wait := minWait
	for {
		err := b.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// subscribed and later dropped: start over from the short wait
			wait = minWait
			err = errors.New("subscription closed")
		}
		logging.Err(logging.Fields{Service: b.Service, Message: fmt.Sprintf("redis bridge down, retrying in %s", wait)}, err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		if wait *= 2; wait > maxWait {
			wait = maxWait
		}
	}
}

// listen returns nil once an established subscription ends.
func (b *RedisBroker) listen(ctx context.Context) error {
	ps := b.Redis.PSubscribe(ctx, redisx.PatternSellerOrders)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.forward(ctx, msg)
		}
	}
}

func (b *RedisBroker) forward(ctx context.Context, msg *redis.Message) {
	sellerID, ok := redisx.SellerFromChannel(msg.Channel)
	if !ok {
		return
	}
	var ev orders.Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		logging.Err(logging.Fields{Service: b.Service, SellerID: sellerID, Message: "bad event on " + msg.Channel}, err)
		return
	}
	_ = b.Hub.Publish(ctx, sellerID, ev)
}
