package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-orders-readpath/internal/orders"
)

// EventPublisher puts order envelopes on the bus, keyed by order id.
type EventPublisher struct{ P *Producer }

func (e EventPublisher) Publish(topic string, env orders.Envelope) {
	e.P.Send(topic, orders.PartitionKey(env.CorrelationID), MustMarshal(env),
		kafka.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
	)
}

// InvalidateOnChange purges inv for every order event, whichever instance
// wrote it. Undecodable messages are logged and committed.
func InvalidateOnChange(inv orders.Invalidator) Handler {
	return func(ctx context.Context, m kafka.Message) error {
		var env orders.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			log.Printf("invalidation: skip undecodable message on %s: %v", m.Topic, err)
			return nil
		}
		inv.Invalidate()
		if env.EventType == orders.EventOrderStatusChanged {
			p, err := UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
			if err != nil {
				return fmt.Errorf("event %s: %w", env.EventID, err)
			}
			log.Printf("invalidation: order %s now %s (from %s)", p.OrderID, p.To, env.Producer)
		}
		return nil
	}
}
