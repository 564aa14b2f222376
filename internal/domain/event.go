package domain

import (
	"encoding/json"
	"time"
)

type EventSource string

const (
	SourceStripe      EventSource = "STRIPE"
	SourceFulfillment EventSource = "FULFILLMENT"
)

func (s EventSource) Valid() bool {
	return s == SourceStripe || s == SourceFulfillment
}

// OrderEvent is one row of the append-only event-sourcing log. All delivery
// and fulfillment history is derived from this log, never from denormalized
// status columns. ExternalID is the sender's event id and deduplicates replays.
type OrderEvent struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"-"`
	Source     EventSource     `json:"source"`
	EventType  string          `json:"eventType"`
	ExternalID string          `json:"externalId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// FulfillmentEventKind enumerates the partner callbacks this system reacts to.
type FulfillmentEventKind string

const (
	FulfillmentOrderCreated   FulfillmentEventKind = "USER_ORDER_CREATED"
	FulfillmentOrderCancelled FulfillmentEventKind = "USER_ORDER_CANCELLED"
	FulfillmentOrderDelivered FulfillmentEventKind = "USER_ORDER_DELIVERED"
)
