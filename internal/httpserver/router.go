package httpserver

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"

	"posterlab/internal/domain"
	"posterlab/internal/service/checkout"
)

type checkoutService interface {
	CreateOrder(ctx context.Context, in checkout.CreateOrderInput) (*checkout.Result, error)
	GetOrder(ctx context.Context, publicID string) (*domain.Order, error)
}

type stripeProcessor interface {
	Process(ctx context.Context, event stripe.Event) error
}

type fulfillmentProcessor interface {
	Ingest(ctx context.Context, body []byte, signature string) error
}

// Deps carries the wired services the routes delegate to.
type Deps struct {
	Checkout    checkoutService
	Payments    stripeProcessor
	Fulfillment fulfillmentProcessor

	StripeWebhookSecret string
	// AdminToken unlocks the full order view with ledger and event history.
	AdminToken       string
	CORSAllowOrigins []string
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(deps.CORSAllowOrigins) == 1 && deps.CORSAllowOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = deps.CORSAllowOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))

	h := &handlers{deps: deps, logger: logger}
	router.POST("/checkout", h.createOrder)
	router.GET("/orders/:id", h.getOrder)
	router.POST("/webhooks/stripe", h.stripeWebhook)
	router.POST("/webhooks/fulfillment", h.fulfillmentWebhook)

	return router, nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
