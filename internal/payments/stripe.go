package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"

	"posterlab/internal/domain"
)

// MetadataOrderKey is the metadata field carrying our public order id on
// every intent; the webhook processor resolves orders through it.
const MetadataOrderKey = "prettyOrderId"

type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type StripeProvider struct {
	intents intentAPI
	logger  *zap.Logger
}

// NewStripeProvider builds the provider over a dedicated stripe client.
// The intents API is an interface so tests can stub it.
func NewStripeProvider(apiKey string, logger *zap.Logger) (*StripeProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("stripe: api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sc := client.New(apiKey, nil)
	return &StripeProvider{intents: sc.PaymentIntents, logger: logger}, nil
}

func (p *StripeProvider) CreateIntent(ctx context.Context, ord *domain.Order) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ord.PriceCents),
		Currency: stripe.String(strings.ToLower(ord.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		ReceiptEmail: stripe.String(ord.Email),
	}
	params.Context = ctx
	params.AddMetadata(MetadataOrderKey, ord.PublicID)
	// Keyed by the order so a retried checkout reuses the intent instead of
	// opening a second one.
	params.SetIdempotencyKey("checkout-" + ord.PublicID)

	intent, err := p.intents.New(params)
	if err != nil {
		return Intent{}, err
	}

	p.logger.Info("payment intent created",
		zap.String("order_id", ord.PublicID),
		zap.String("intent_id", intent.ID),
		zap.Int64("amount_cents", ord.PriceCents),
	)
	return Intent{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}
