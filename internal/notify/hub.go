// Package notify delivers order events to the subscribers of a seller's
// stream: in-process fan-out, a Redis bridge between API instances and a
// Kafka event log for downstream consumers.
package notify

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

const DefaultBuffer = 16

type subscriber struct {
	ch chan orders.Event
}

// Hub fans events out to the subscribers registered in this process.
// A subscriber whose buffer is full misses the event.
type Hub struct {
	Buffer int

	mu     sync.RWMutex
	subs   map[int64]map[*subscriber]struct{}
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{Buffer: buffer, subs: map[int64]map[*subscriber]struct{}{}}
}

// Subscribe registers for sellerID's events. The returned channel is closed
// once cancel is called or ctx is done; events published before Subscribe
// are never delivered.
func (h *Hub) Subscribe(ctx context.Context, sellerID int64) (<-chan orders.Event, func()) {
	s := &subscriber{ch: make(chan orders.Event, h.Buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	group := h.subs[sellerID]
	if group == nil {
		group = map[*subscriber]struct{}{}
		h.subs[sellerID] = group
	}
	group[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	stop := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(stop)
			h.remove(sellerID, s)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return s.ch, cancel
}

func (h *Hub) remove(sellerID int64, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.subs[sellerID]
	if _, ok := group[s]; !ok {
		return
	}
	delete(group, s)
	if len(group) == 0 {
		delete(h.subs, sellerID)
	}
	close(s.ch)
}

func (h *Hub) Publish(_ context.Context, sellerID int64, ev orders.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[sellerID] {
		select {
		case s.ch <- ev:
		default:
		}
	}
	return nil
}

// Close ends every subscription by closing its channel. Later subscriptions
// get an already closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, group := range h.subs {
		for s := range group {
			close(s.ch)
		}
		delete(h.subs, id)
	}
}

// Subscribers reports how many subscribers sellerID currently has.
func (h *Hub) Subscribers(sellerID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sellerID])
}
