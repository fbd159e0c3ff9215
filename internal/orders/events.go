package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderUpdated       = "OrderUpdated"
	EventOrderDeleted       = "OrderDeleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // SERVICE_NAME of the writer
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderStatusChangedPayload struct {
	OrderID    string  `json:"order_id"`
	From       Status  `json:"from,omitempty"`
	To         Status  `json:"to"`
	Commission float64 `json:"commission,omitempty"`
	SellerID   string  `json:"seller_id,omitempty"`
}

type OrderUpdatedPayload struct {
	OrderID string   `json:"order_id"`
	Fields  []string `json:"fields,omitempty"` // live column names written
}

type OrderDeletedPayload struct {
	OrderID   string `json:"order_id"`
	Permanent bool   `json:"permanent"`
}

// Publisher hands envelopes to the message bus. Delivery is best effort and
// never fails the write that produced the event.
type Publisher interface {
	Publish(topic string, env Envelope)
}

// NewEnvelope wraps payload as a version 1 event correlated to orderID.
func NewEnvelope(eventType, producer, traceID, orderID string, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("null")
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       raw,
	}
}
