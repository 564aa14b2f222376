package domain

import "time"

// PaymentType, PaymentProvider and ProviderMethod are closed enumerations.
// The ledger refuses rows carrying values outside these sets.
type PaymentType string

const (
	PaymentCharge PaymentType = "CHARGE"
	PaymentRefund PaymentType = "REFUND"
)

func (t PaymentType) Valid() bool {
	return t == PaymentCharge || t == PaymentRefund
}

type PaymentProvider string

const (
	ProviderStripe    PaymentProvider = "STRIPE"
	ProviderGiftcard  PaymentProvider = "GIFTCARD"
	ProviderPromotion PaymentProvider = "PROMOTION"
)

func (p PaymentProvider) Valid() bool {
	switch p {
	case ProviderStripe, ProviderGiftcard, ProviderPromotion:
		return true
	}
	return false
}

type ProviderMethod string

const (
	MethodCard         ProviderMethod = "CARD"
	MethodSEPA         ProviderMethod = "SEPA"
	MethodPayPal       ProviderMethod = "PAYPAL"
	MethodGiftcard     ProviderMethod = "GIFTCARD"
	MethodDiscountCode ProviderMethod = "DISCOUNT_CODE"
)

func (m ProviderMethod) Valid() bool {
	switch m {
	case MethodCard, MethodSEPA, MethodPayPal, MethodGiftcard, MethodDiscountCode:
		return true
	}
	return false
}

// Payment is one append-only ledger row. The ledger repository exposes no
// update or delete; the sum over these rows is the only source of truth for
// how much has been collected or refunded.
type Payment struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"-"`
	Type           PaymentType     `json:"type"`
	AmountCents    int64           `json:"amountCents"`
	Currency       string          `json:"currency"`
	Provider       PaymentProvider `json:"provider"`
	ProviderMethod ProviderMethod  `json:"providerMethod"`
	ExternalRef    string          `json:"externalRef,omitempty"`
	PromotionCode  *string         `json:"promotionCode,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}
