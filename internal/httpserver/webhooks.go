package httpserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"

	"posterlab/internal/service/fulfillhook"
)

// FulfillmentSignatureHeader carries the partner's hex HMAC of the raw body.
const FulfillmentSignatureHeader = "X-Signature"

const maxWebhookBody = 1 << 16

func (h *handlers) stripeWebhook(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}

	event, err := webhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), h.deps.StripeWebhookSecret)
	if err != nil {
		h.logger.Warn("stripe webhook signature rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	if err := h.deps.Payments.Process(c.Request.Context(), event); err != nil {
		// Non-2xx makes the processor redeliver; replays are deduplicated
		// downstream, so retrying is always safe.
		h.logger.Error("stripe webhook processing failed",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *handlers) fulfillmentWebhook(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}

	err = h.deps.Fulfillment.Ingest(c.Request.Context(), body, c.GetHeader(FulfillmentSignatureHeader))
	if err != nil {
		if errors.Is(err, fulfillhook.ErrBadSignature) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
			return
		}
		h.logger.Error("fulfillment webhook processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func readBody(c *gin.Context) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
}
