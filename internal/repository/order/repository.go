package order

import (
	"context"
	"time"

	"posterlab/internal/domain"
)

// CreateInput is the full shape persisted atomically at checkout. PriceCents
// is always the reconciled price, never a client-submitted total.
type CreateInput struct {
	PublicID        string
	Email           string
	Currency        string
	PriceCents      int64
	PromotionCode   *string
	Items           []domain.CartItem
	ShippingAddress *domain.Address
	BillingAddress  *domain.Address
}

type Repository interface {
	ExistsByPublicID(ctx context.Context, publicID string) (bool, error)
	Create(ctx context.Context, in CreateInput) (*domain.Order, error)
	GetByPublicID(ctx context.Context, publicID string) (*domain.Order, error)
	GetByExternalOrderID(ctx context.Context, externalOrderID string) (*domain.Order, error)

	// Dispatcher selection queries. Paid-ness is computed in SQL over the
	// payments ledger, never read from a denormalized flag.
	ListDispatchable(ctx context.Context, createdBefore time.Time) ([]domain.Order, error)
	ListPartiallyPaid(ctx context.Context, createdBefore time.Time) ([]domain.Order, error)
	DeleteUnpaidBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListDispatchedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error)

	// MarkDispatched sets the dispatch timestamp exactly once; an already
	// dispatched order is not matched and returns domain.ErrNotFound.
	MarkDispatched(ctx context.Context, orderID, externalOrderID string, audit []byte) error
}
