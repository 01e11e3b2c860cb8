package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topic names the five event streams this core produces to.
type Topic string

const (
	TopicUserEvents      Topic = "user-events"
	TopicProductEvents   Topic = "product-events"
	TopicOrderEvents     Topic = "order-events"
	TopicInventoryEvents Topic = "inventory-events"
	TopicPaymentEvents   Topic = "payment-events"
)

// Event types carried on the topics above. Consumers dispatch on these names,
// so they are part of the wire contract and must not be renamed casually.
const (
	EventUserRegistered    = "UserRegistered"
	EventUserUpdated       = "UserUpdated"
	EventCategoryCreated   = "CategoryCreated"
	EventProductCreated    = "ProductCreated"
	EventProductUpdated    = "ProductUpdated"
	EventProductDeleted    = "ProductDeleted"
	EventCartItemAdded     = "CartItemAdded"
	EventCartItemUpdated   = "CartItemUpdated"
	EventCartItemRemoved   = "CartItemRemoved"
	EventCartCleared       = "CartCleared"
	EventOrderCreated      = "OrderCreated"
	EventOrderUpdated      = "OrderUpdated"
	EventOrderCancelled    = "OrderCancelled"
	EventInventoryReserved = "InventoryReserved"
	EventInventoryReleased = "InventoryReleased"
	EventPaymentProcessed  = "PaymentProcessed"
	EventPaymentFailed     = "PaymentFailed"
	EventRefundIssued      = "RefundIssued"
	EventShipmentCreated   = "ShipmentCreated"
	EventShipmentUpdated   = "ShipmentUpdated"
	EventReturnRequested   = "ReturnRequested"
	EventReturnProcessed   = "ReturnProcessed"
	EventReviewPublished   = "ReviewPublished"
	EventTicketOpened      = "TicketOpened"
	EventTicketUpdated     = "TicketUpdated"
)

// Envelope is a single immutable event record. CorrelationID is shared by all
// envelopes born of one external request; CausationID points at the request id
// or the event id that directly triggered this one, forming an acyclic chain.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	Topic         Topic           `json:"topic"`
	EventType     string          `json:"event_type"`
	PartitionKey  string          `json:"partition_key"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope stamps a fresh event id and UTC timestamp. payload is marshaled
// once here so the envelope is immutable from this point on.
func NewEnvelope(topic Topic, eventType, partitionKey, correlationID, causationID string, payload any) (Envelope, error) {
	if topic == "" || eventType == "" {
		return Envelope{}, fmt.Errorf("%w: envelope requires topic and event type", ErrInvalidInput)
	}
	if partitionKey == "" {
		return Envelope{}, fmt.Errorf("%w: envelope requires a partition key", ErrInvalidInput)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal envelope payload: %w", err)
	}
	return Envelope{
		EventID:       uuid.New(),
		Topic:         topic,
		EventType:     eventType,
		PartitionKey:  partitionKey,
		CorrelationID: correlationID,
		CausationID:   causationID,
		OccurredAt:    time.Now().UTC(),
		Payload:       raw,
	}, nil
}
