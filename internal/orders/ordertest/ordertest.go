// Package ordertest provides in-memory collaborators for exercising the
// orders service without Postgres.
package ordertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/google/uuid"
)

// Store is an in-memory orders.Store. Order numbers and receipt codes are
// unique, as they are in the database.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	nextItem int64
	orders   map[int64]orders.Order
	numbers  map[uuid.UUID]bool
	receipts map[string]bool

	// FailCreate, when set, is returned by CreateOrder before anything is stored.
	FailCreate error
	Now        func() time.Time
}

func NewStore() *Store {
	return &Store{
		orders:   map[int64]orders.Order{},
		numbers:  map[uuid.UUID]bool{},
		receipts: map[string]bool{},
	}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Store) CreateOrder(_ context.Context, o *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailCreate != nil {
		return s.FailCreate
	}
	if s.numbers[o.OrderNumber] || s.receipts[o.ReceiptCode] {
		return orders.ErrDuplicateIdentifier
	}

	s.nextID++
	o.ID = s.nextID
	o.CreatedAt = s.now()
	o.UpdatedAt = o.CreatedAt
	for i := range o.Items {
		s.nextItem++
		o.Items[i].ID = s.nextItem
		o.Items[i].OrderID = o.ID
	}
	s.numbers[o.OrderNumber] = true
	s.receipts[o.ReceiptCode] = true
	s.orders[o.ID] = clone(*o)
	return nil
}

func (s *Store) UpdateStatus(_ context.Context, orderID int64, to orders.Status, check func(from orders.Status) error) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", orders.ErrNotFound, orderID)
	}
	if err := check(o.Status); err != nil {
		return nil, err
	}
	o.Status = to
	o.UpdatedAt = s.now()
	s.orders[orderID] = o
	out := clone(o)
	return &out, nil
}

func (s *Store) Order(_ context.Context, orderID int64) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", orders.ErrNotFound, orderID)
	}
	out := clone(o)
	return &out, nil
}

func (s *Store) ListOrders(_ context.Context, f orders.Filter) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []orders.Order{}
	for _, o := range s.orders {
		if f.SellerID != 0 && o.SellerID != f.SellerID {
			continue
		}
		if f.BuyerID != 0 && o.BuyerID != f.BuyerID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, clone(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if n := f.EffectiveLimit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Len reports how many orders are stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func clone(o orders.Order) orders.Order {
	o.Items = append([]orders.OrderItem(nil), o.Items...)
	return o
}

// Catalog serves products and identities from maps. It implements both
// orders.Catalog and orders.Directory.
type Catalog struct {
	Products map[int64]orders.Product
	Buyers   map[int64]orders.Buyer
	Sellers  map[int64]orders.Seller
}

func NewCatalog() *Catalog {
	return &Catalog{
		Products: map[int64]orders.Product{},
		Buyers:   map[int64]orders.Buyer{},
		Sellers:  map[int64]orders.Seller{},
	}
}

func (c *Catalog) Product(_ context.Context, id int64) (orders.Product, error) {
	p, ok := c.Products[id]
	if !ok {
		return orders.Product{}, orders.ErrNotFound
	}
	return p, nil
}

func (c *Catalog) Buyer(_ context.Context, id int64) (orders.Buyer, error) {
	b, ok := c.Buyers[id]
	if !ok {
		return orders.Buyer{}, orders.ErrNotFound
	}
	return b, nil
}

func (c *Catalog) Seller(_ context.Context, id int64) (orders.Seller, error) {
	s, ok := c.Sellers[id]
	if !ok {
		return orders.Seller{}, orders.ErrNotFound
	}
	return s, nil
}

// Publisher records every published event.
type Publisher struct {
	mu     sync.Mutex
	events []orders.Event
	Err    error
}

func (p *Publisher) Publish(_ context.Context, sellerID int64, ev orders.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.Err
}

func (p *Publisher) Events() []orders.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]orders.Event(nil), p.events...)
}

// FixedIDs hands out the given receipt codes in order, then repeats the last
// one. Order numbers are always fresh unless RepeatNumber is set.
type FixedIDs struct {
	mu           sync.Mutex
	Receipts     []string
	RepeatNumber uuid.UUID
	calls        int
}

func (g *FixedIDs) OrderNumber() (uuid.UUID, error) {
	if g.RepeatNumber != uuid.Nil {
		return g.RepeatNumber, nil
	}
	return uuid.New(), nil
}

func (g *FixedIDs) ReceiptCode() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	if i >= len(g.Receipts) {
		i = len(g.Receipts) - 1
	}
	g.calls++
	return g.Receipts[i], nil
}

// Calls reports how many receipt codes were requested.
func (g *FixedIDs) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
