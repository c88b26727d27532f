package orders

import "context"

// Store persists orders. Implementations must make CreateOrder all-or-nothing
// and serialize UpdateStatus calls on the same order.
type Store interface {
	// CreateOrder inserts the header and every item in one transaction and
	// fills in the store-assigned ids and timestamps. A taken order number or
	// receipt code is reported as ErrDuplicateIdentifier.
	CreateOrder(ctx context.Context, o *Order) error

	// UpdateStatus locks the order, calls check with the current status and,
	// if check returns nil, sets the status to `to` and refreshes update_date.
	UpdateStatus(ctx context.Context, orderID int64, to Status, check func(from Status) error) (*Order, error)

	Order(ctx context.Context, orderID int64) (*Order, error)
	ListOrders(ctx context.Context, f Filter) ([]Order, error)
}

type Catalog interface {
	Product(ctx context.Context, productID int64) (Product, error)
}

type Directory interface {
	Buyer(ctx context.Context, buyerID int64) (Buyer, error)
	Seller(ctx context.Context, sellerID int64) (Seller, error)
}
