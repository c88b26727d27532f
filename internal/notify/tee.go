package notify

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

type tee []orders.Publisher

// Tee publishes to every publisher in turn and joins their errors.
func Tee(pubs ...orders.Publisher) orders.Publisher { return tee(pubs) }

func (t tee) Publish(ctx context.Context, sellerID int64, ev orders.Event) error {
	var errs []error
	for _, p := range t {
		if err := p.Publish(ctx, sellerID, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
