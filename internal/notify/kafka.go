package notify

import (
	"context"
	"strconv"

	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// EventLog appends order events to Kafka, keyed by order id.
type EventLog struct {
	Producer *kafkax.Producer
	Service  string
}

func (l *EventLog) Publish(ctx context.Context, sellerID int64, ev orders.Event) error {
	env := Envelope(ev, l.Service)
	return l.Producer.Publish(ctx, orders.PartitionKey(ev.OrderID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.Type)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		kafkago.Header{Key: "x-seller-id", Value: []byte(strconv.FormatInt(sellerID, 10))},
	)
}

func Envelope(ev orders.Event, producer string) orders.Envelope {
	return orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     ev.Type,
		EventVersion:  1,
		OccurredAt:    ev.OccurredAt.UTC(),
		Producer:      producer,
		CorrelationID: strconv.FormatInt(ev.OrderID, 10),
		Payload:       kafkax.MustMarshal(ev),
	}
}
