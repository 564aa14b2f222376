// Package pricing recomputes authoritative cart totals. Client-submitted
// totals are never trusted: this runs once at checkout and again at payment
// confirmation, and the two results must agree.
package pricing

import (
	"fmt"
	"time"

	"posterlab/internal/domain"
)

// Limits bound accepted totals. Totals at or above HardCeilingCents are
// rejected outright; totals outside the anomaly band are accepted but flagged
// for manual review.
type Limits struct {
	HardCeilingCents int64
	LowAnomalyCents  int64
	HighAnomalyCents int64
}

func DefaultLimits() Limits {
	return Limits{
		HardCeilingCents: 500_000,
		LowAnomalyCents:  500,
		HighAnomalyCents: 250_000,
	}
}

type Result struct {
	TotalCents    int64
	DiscountCents int64
	Currency      string
	// Anomalies are non-fatal review flags; the order still goes through.
	Anomalies []string
}

type Reconciler struct {
	limits Limits
	now    func() time.Time
}

func New(limits Limits) *Reconciler {
	return &Reconciler{limits: limits, now: time.Now}
}

// Reconcile prices the cart in the given currency, applying the promotion only
// when it has not expired. It is a pure function of its inputs (plus the
// clock, for expiry): rerunning it over a persisted cart reproduces the price
// stored at creation.
func (r *Reconciler) Reconcile(cart []domain.CartItem, currency string, promo *domain.Promotion) (Result, error) {
	var subtotal int64
	for _, item := range cart {
		if item.Quantity <= 0 {
			return Result{}, fmt.Errorf("item %s: quantity must be positive", item.Kind)
		}
		if item.UnitPriceCents < 0 {
			return Result{}, fmt.Errorf("item %s: negative unit price", item.Kind)
		}
		if item.Currency != "" && item.Currency != currency {
			return Result{}, fmt.Errorf("item %s: currency %s differs from cart currency %s", item.Kind, item.Currency, currency)
		}
		subtotal += item.TotalCents()
	}

	var discount int64
	if promo != nil {
		if promo.Expired(r.now()) {
			return Result{}, domain.ErrPromotionExpired
		}
		discount = promo.DiscountCents(subtotal)
	}

	total := subtotal - discount
	if total >= r.limits.HardCeilingCents {
		return Result{}, fmt.Errorf("%w: total %d >= %d", domain.ErrPriceCeiling, total, r.limits.HardCeilingCents)
	}

	res := Result{TotalCents: total, DiscountCents: discount, Currency: currency}
	if total > 0 && total < r.limits.LowAnomalyCents {
		res.Anomalies = append(res.Anomalies, fmt.Sprintf("total %d below minimum %d", total, r.limits.LowAnomalyCents))
	}
	if total > r.limits.HighAnomalyCents {
		res.Anomalies = append(res.Anomalies, fmt.Sprintf("total %d above review threshold %d", total, r.limits.HighAnomalyCents))
	}
	return res, nil
}
