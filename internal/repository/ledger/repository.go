package ledger

import (
	"context"
	"encoding/json"

	"posterlab/internal/domain"
)

// NewPayment is one ledger row to append. Rows are never updated or deleted;
// the repository deliberately exposes no such operation.
type NewPayment struct {
	Type           domain.PaymentType
	AmountCents    int64
	Currency       string
	Provider       domain.PaymentProvider
	ProviderMethod domain.ProviderMethod
	ExternalRef    string
	PromotionCode  *string
}

// NewEvent is one webhook event to append to the event-sourcing log.
// ExternalID, when set, deduplicates replays of the same sender event.
type NewEvent struct {
	Source     domain.EventSource
	EventType  string
	ExternalID string
	Payload    json.RawMessage
}

// Tx is the slice of the repository visible inside WithTx. Everything
// appended through one Tx commits or rolls back as a unit.
type Tx interface {
	// CreatePayment validates every enum against its closed set before
	// inserting; unknown values fail with domain.ErrUnknownEnumValue.
	CreatePayment(ctx context.Context, orderID string, in NewPayment) (*domain.Payment, error)

	// CreatePayments appends several rows; either all rows land or none do.
	CreatePayments(ctx context.Context, orderID string, ins []NewPayment) ([]domain.Payment, error)

	// CreateOrderEvent appends the event. When ExternalID is already present
	// in the log the event is not re-inserted and duplicate is true.
	CreateOrderEvent(ctx context.Context, orderID string, in NewEvent) (evt *domain.OrderEvent, duplicate bool, err error)
}

type Repository interface {
	Tx

	// WithTx runs fn inside one database transaction. The webhook processor
	// uses this to land the idempotency-checkpoint event and its ledger rows
	// atomically: a failure after the checkpoint would otherwise commit the
	// dedupe marker alone and make the sender's redelivery a no-op.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
