package domain

import "time"

type PromotionKind string

const (
	PromotionFixed      PromotionKind = "FIXED"
	PromotionPercentage PromotionKind = "PERCENTAGE"
)

// Promotion is referenced by orders and ledger rows, never mutated.
// Value is cents for FIXED and whole percent for PERCENTAGE.
type Promotion struct {
	Code      string        `json:"code"`
	Kind      PromotionKind `json:"kind"`
	Value     int64         `json:"value"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
}

func (p *Promotion) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// DiscountCents computes the discount against a pre-discount total. The result
// never exceeds the total.
func (p *Promotion) DiscountCents(totalCents int64) int64 {
	var d int64
	switch p.Kind {
	case PromotionFixed:
		d = p.Value
	case PromotionPercentage:
		d = totalCents * p.Value / 100
	}
	if d > totalCents {
		d = totalCents
	}
	if d < 0 {
		d = 0
	}
	return d
}
