package httpserver

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"posterlab/internal/domain"
	"posterlab/internal/service/checkout"
)

type handlers struct {
	deps   Deps
	logger *zap.Logger
}

type checkoutResponse struct {
	OrderID             string       `json:"orderId"`
	PriceCents          int64        `json:"priceCents"`
	Currency            string       `json:"currency"`
	Paid                bool         `json:"paid"`
	StripePaymentIntent *intentBrief `json:"stripePaymentIntent,omitempty"`
}

type intentBrief struct {
	ClientSecret string `json:"clientSecret"`
}

func (h *handlers) createOrder(c *gin.Context) {
	var in checkout.CreateOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := h.deps.Checkout.CreateOrder(c.Request.Context(), in)
	if err != nil {
		h.writeCheckoutError(c, err)
		return
	}

	resp := checkoutResponse{
		OrderID:    res.Order.PublicID,
		PriceCents: res.Order.PriceCents,
		Currency:   res.Order.Currency,
		Paid:       res.Paid,
	}
	if res.ClientSecret != "" {
		resp.StripePaymentIntent = &intentBrief{ClientSecret: res.ClientSecret}
	}
	c.JSON(http.StatusCreated, resp)
}

// writeCheckoutError maps client mistakes to 400 and everything else to an
// opaque 500. Internal failure detail never reaches the client.
func (h *handlers) writeCheckoutError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, checkout.ErrValidation),
		errors.Is(err, domain.ErrUnknownEnumValue),
		errors.Is(err, domain.ErrPromotionExpired),
		errors.Is(err, domain.ErrPriceCeiling):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("checkout failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// orderView is the customer-facing order shape. Ledger rows, event history and
// full addresses are admin-only.
type orderView struct {
	OrderID       string            `json:"orderId"`
	Currency      string            `json:"currency"`
	PriceCents    int64             `json:"priceCents"`
	Paid          bool              `json:"paid"`
	PromotionCode *string           `json:"promotionCode,omitempty"`
	Items         []domain.CartItem `json:"items,omitempty"`
	Shipping      *addressView      `json:"shippingAddress,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	DispatchedAt  *time.Time        `json:"dispatchedAt,omitempty"`
}

type addressView struct {
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

func (h *handlers) getOrder(c *gin.Context) {
	ord, err := h.deps.Checkout.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		h.logger.Error("order lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if h.isAdmin(c) {
		c.JSON(http.StatusOK, ord)
		return
	}

	view := orderView{
		OrderID:       ord.PublicID,
		Currency:      ord.Currency,
		PriceCents:    ord.PriceCents,
		Paid:          ord.Paid(),
		PromotionCode: ord.PromotionCode,
		Items:         ord.Items,
		CreatedAt:     ord.CreatedAt,
		DispatchedAt:  ord.DispatchedAt,
	}
	if ord.ShippingAddress != nil {
		view.Shipping = &addressView{
			City:    ord.ShippingAddress.City,
			Country: ord.ShippingAddress.Country,
		}
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) isAdmin(c *gin.Context) bool {
	if h.deps.AdminToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(h.deps.AdminToken)) == 1
}
