package payments

import (
	"context"

	"posterlab/internal/domain"
)

// Intent is the processor-side payment intent created for a checkout.
type Intent struct {
	ID           string
	ClientSecret string
}

// Provider creates payment intents with the external processor. Constructed
// once at process start and injected; no package-level client state.
type Provider interface {
	CreateIntent(ctx context.Context, ord *domain.Order) (Intent, error)
}
