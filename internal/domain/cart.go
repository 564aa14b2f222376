package domain

import "time"

// ItemKind tags the cart item union. New kinds are a compile-time decision:
// every consumer switches exhaustively on this type.
type ItemKind string

const (
	ItemMapPoster        ItemKind = "MAP_POSTER"
	ItemGiftcardValue    ItemKind = "GIFTCARD_VALUE"
	ItemGiftcardPhysical ItemKind = "GIFTCARD_PHYSICAL"
	ItemShipping         ItemKind = "SHIPPING"
	ItemProduction       ItemKind = "PRODUCTION"
)

func (k ItemKind) Valid() bool {
	switch k {
	case ItemMapPoster, ItemGiftcardValue, ItemGiftcardPhysical, ItemShipping, ItemProduction:
		return true
	}
	return false
}

// CartItem is owned exclusively by one order, inserted once in input order and
// never mutated. Variant attributes live in Attributes and are persisted as jsonb.
type CartItem struct {
	ID             string         `json:"-"`
	OrderID        string         `json:"-"`
	Kind           ItemKind       `json:"kind"`
	Quantity       int            `json:"quantity"`
	UnitPriceCents int64          `json:"unitPriceCents"`
	Currency       string         `json:"currency"`
	Position       int            `json:"-"`
	Attributes     ItemAttributes `json:"attributes,omitempty"`
	CreatedAt      time.Time      `json:"-"`
}

func (i CartItem) TotalCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}

// ItemAttributes carries the variant-specific payload of the union.
type ItemAttributes struct {
	Map            *MapAttributes    `json:"map,omitempty"`
	GiftValueCents int64             `json:"giftValueCents,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
}

// MapAttributes describes the poster geometry declared at checkout.
type MapAttributes struct {
	Style     string  `json:"style,omitempty"`
	Title     string  `json:"title,omitempty"`
	Subtitle  string  `json:"subtitle,omitempty"`
	CenterLat float64 `json:"centerLat"`
	CenterLng float64 `json:"centerLng"`
	Bounds    Bounds  `json:"bounds"`
}

// Bounds is the declared bounding box, north/east inclusive.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// CenterInBounds reports whether the declared center point lies inside the
// declared bounding box. Antimeridian-crossing boxes are not supported by the
// partner and fail this check.
func (m *MapAttributes) CenterInBounds() bool {
	if m == nil {
		return false
	}
	b := m.Bounds
	return m.CenterLat >= b.South && m.CenterLat <= b.North &&
		m.CenterLng >= b.West && m.CenterLng <= b.East
}
