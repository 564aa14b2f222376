// Package fulfillment talks to the manufacturing partner that produces and
// ships map posters. Only the contract this core relies on is modeled here.
package fulfillment

import (
	"context"

	"posterlab/internal/domain"
)

// PlaceRequest carries everything the partner needs to produce an order.
type PlaceRequest struct {
	OrderNumber     string            `json:"orderNumber"`
	Email           string            `json:"email"`
	Items           []domain.CartItem `json:"items"`
	ShippingAddress *domain.Address   `json:"shippingAddress,omitempty"`
}

// PlacedOrder is the partner's acknowledgement. RawRequest/RawResponse are
// persisted verbatim on the order for audit.
type PlacedOrder struct {
	ExternalOrderID string
	RawRequest      []byte
	RawResponse     []byte
}

type Status struct {
	State        string
	TrackingLink string
}

// Terminal reports whether the partner considers the order finished.
func (s Status) Terminal() bool {
	return s.State == "DELIVERED" || s.State == "CANCELLED"
}

type Client interface {
	PlaceOrder(ctx context.Context, req PlaceRequest) (PlacedOrder, error)
	// OrderStatus is the live check the staleness scan uses before flagging
	// an order as late, protecting against missed webhooks.
	OrderStatus(ctx context.Context, externalOrderID string) (Status, error)
}
