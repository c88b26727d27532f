package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated  = "order_created"
	EventStatusChanged = "status_changed"
)

// Event is what a seller's subscribers receive.
type Event struct {
	Type       string    `json:"type"`
	SellerID   int64     `json:"seller_id"`
	OrderID    int64     `json:"order_id"`
	NewStatus  Status    `json:"new_status"`
	OldStatus  Status    `json:"old_status,omitempty"`
	Order      *Summary  `json:"order,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Summary struct {
	OrderNumber uuid.UUID       `json:"order_number"`
	ReceiptCode string          `json:"receipt_code"`
	BuyerID     int64           `json:"buyer_id"`
	Total       decimal.Decimal `json:"total"`
	Items       []LineRequest   `json:"items"`
}

func CreatedEvent(o *Order) Event {
	items := make([]LineRequest, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, LineRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return Event{
		Type:      EventOrderCreated,
		SellerID:  o.SellerID,
		OrderID:   o.ID,
		NewStatus: o.Status,
		Order: &Summary{
			OrderNumber: o.OrderNumber,
			ReceiptCode: o.ReceiptCode,
			BuyerID:     o.BuyerID,
			Total:       o.Total,
			Items:       items,
		},
		OccurredAt: o.CreatedAt,
	}
}

func StatusChangedEvent(o *Order, from Status) Event {
	return Event{
		Type:       EventStatusChanged,
		SellerID:   o.SellerID,
		OrderID:    o.ID,
		NewStatus:  o.Status,
		OldStatus:  from,
		OccurredAt: o.UpdatedAt,
	}
}

// Publisher delivers an event to everyone currently subscribed to a seller's
// stream. Delivery is best-effort and at-most-once.
type Publisher interface {
	Publish(ctx context.Context, sellerID int64, ev Event) error
}

// Envelope wraps an Event on the durable event log.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}
