package domain

import "time"

// Order is the durable record created at checkout. Apart from DispatchedAt and
// ExternalOrderID (set exactly once by the dispatcher) it is immutable; payment
// and delivery state live in the append-only payments and order_events tables.
type Order struct {
	ID              string     `json:"-"`
	PublicID        string     `json:"orderId"`
	Email           string     `json:"email"`
	Currency        string     `json:"currency"`
	PriceCents      int64      `json:"priceCents"`
	PromotionCode   *string    `json:"promotionCode,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	DispatchedAt    *time.Time `json:"dispatchedAt,omitempty"`
	ExternalOrderID *string    `json:"externalOrderId,omitempty"`

	Items           []CartItem   `json:"items,omitempty"`
	ShippingAddress *Address     `json:"shippingAddress,omitempty"`
	BillingAddress  *Address     `json:"billingAddress,omitempty"`
	Payments        []Payment    `json:"payments,omitempty"`
	Events          []OrderEvent `json:"events,omitempty"`
}

// OutstandingCents is the amount left to collect. Paid is outstanding <= 0.
func (o *Order) OutstandingCents() int64 {
	var charged, refunded int64
	for _, p := range o.Payments {
		switch p.Type {
		case PaymentCharge:
			charged += p.AmountCents
		case PaymentRefund:
			refunded += p.AmountCents
		}
	}
	return o.PriceCents - (charged - refunded)
}

func (o *Order) Paid() bool {
	return o.OutstandingCents() <= 0
}

type AddressKind string

const (
	AddressShipping AddressKind = "SHIPPING"
	AddressBilling  AddressKind = "BILLING"
)

// Address is one SHIPPING or BILLING row per order, immutable after creation.
type Address struct {
	ID         string      `json:"-"`
	OrderID    string      `json:"-"`
	Kind       AddressKind `json:"-"`
	FirstName  string      `json:"firstName,omitempty"`
	LastName   string      `json:"lastName,omitempty"`
	Line1      string      `json:"line1,omitempty"`
	Line2      string      `json:"line2,omitempty"`
	City       string      `json:"city,omitempty"`
	PostalCode string      `json:"postalCode,omitempty"`
	Country    string      `json:"country,omitempty"`
}
