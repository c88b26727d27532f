package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/shopspring/decimal"
)

const DefaultIDAttempts = 3

type Service struct {
	Store     Store
	Catalog   Catalog
	Directory Directory
	IDs       IDGenerator
	Publisher Publisher

	IDAttempts  int // 0 means DefaultIDAttempts
	ServiceName string
}

func (s *Service) ids() IDGenerator {
	if s.IDs == nil {
		return RandomIDs{}
	}
	return s.IDs
}

// PlaceOrder validates the request, resolves buyer, seller and products,
// then persists the order with freshly generated identifiers. The creation
// event is published only after the store has committed.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Order, error) {
	if len(in.Lines) == 0 {
		return nil, fmt.Errorf("%w: order has no line items", ErrInvalidArgument)
	}
	for i, l := range in.Lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d: quantity must be positive, got %d", ErrInvalidArgument, i, l.Quantity)
		}
	}

	buyer, err := s.Directory.Buyer(ctx, in.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("buyer %d: %w", in.BuyerID, err)
	}
	if _, err := s.Directory.Seller(ctx, in.SellerID); err != nil {
		return nil, fmt.Errorf("seller %d: %w", in.SellerID, err)
	}

	contact := in.Contact.withDefaults(buyer)
	if err := contact.validate(); err != nil {
		return nil, err
	}

	items := make([]OrderItem, 0, len(in.Lines))
	total := decimal.Zero
	for _, l := range in.Lines {
		p, err := s.Catalog.Product(ctx, l.ProductID)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", l.ProductID, err)
		}
		items = append(items, OrderItem{ProductID: p.ID, Quantity: l.Quantity, UnitPrice: p.Price})
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	attempts := s.IDAttempts
	if attempts <= 0 {
		attempts = DefaultIDAttempts
	}
	var o *Order
	for i := 0; i < attempts; i++ {
		number, err := s.ids().OrderNumber()
		if err != nil {
			return nil, fmt.Errorf("generate order number: %w", err)
		}
		receipt, err := s.ids().ReceiptCode()
		if err != nil {
			return nil, fmt.Errorf("generate receipt code: %w", err)
		}

		candidate := &Order{
			OrderNumber: number,
			ReceiptCode: receipt,
			BuyerID:     in.BuyerID,
			SellerID:    in.SellerID,
			Contact:     contact,
			Status:      StatusPending,
			Total:       total,
			Items:       append([]OrderItem(nil), items...),
		}
		err = s.Store.CreateOrder(ctx, candidate)
		if errors.Is(err, ErrDuplicateIdentifier) {
			logging.Log(logging.Fields{Service: s.ServiceName, SellerID: in.SellerID, Event: "order_id_collision",
				Message: fmt.Sprintf("attempt %d of %d", i+1, attempts)})
			continue
		}
		if err != nil {
			return nil, err
		}
		o = candidate
		break
	}
	if o == nil {
		return nil, fmt.Errorf("%w: no unique order identifiers after %d attempts", ErrResourceExhausted, attempts)
	}

	logging.Log(logging.Fields{Service: s.ServiceName, OrderID: o.ID, SellerID: o.SellerID,
		Event: EventOrderCreated, Status: string(o.Status)})
	s.publish(ctx, CreatedEvent(o))
	return o, nil
}

// UpdateStatus moves an order to the target status if the lifecycle allows it.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, target Status) (*Order, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, target)
	}

	var from Status
	o, err := s.Store.UpdateStatus(ctx, orderID, target, func(cur Status) error {
		from = cur
		if !CanTransition(cur, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, target)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Log(logging.Fields{Service: s.ServiceName, OrderID: o.ID, SellerID: o.SellerID,
		Event: EventStatusChanged, Status: string(o.Status), Message: "from " + string(from)})
	s.publish(ctx, StatusChangedEvent(o, from))
	return o, nil
}

func (s *Service) Order(ctx context.Context, orderID int64) (*Order, error) {
	return s.Store.Order(ctx, orderID)
}

func (s *Service) ListOrders(ctx context.Context, f Filter) ([]Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, f.Status)
	}
	return s.Store.ListOrders(ctx, f)
}

// The order is already committed when this runs; a failed publish is logged
// and does not fail the operation.
func (s *Service) publish(ctx context.Context, ev Event) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, ev.SellerID, ev); err != nil {
		logging.Err(logging.Fields{Service: s.ServiceName, OrderID: ev.OrderID, SellerID: ev.SellerID,
			Event: ev.Type, Message: "publish failed"}, err)
	}
}
