package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"posterlab/internal/domain"
	"posterlab/internal/payments"
	"posterlab/internal/pricing"
	orderrepo "posterlab/internal/repository/order"
)

type orderRepo interface {
	Create(ctx context.Context, in orderrepo.CreateInput) (*domain.Order, error)
	GetByPublicID(ctx context.Context, publicID string) (*domain.Order, error)
}

type promotionRepo interface {
	GetByCode(ctx context.Context, code string) (*domain.Promotion, error)
}

type idGenerator interface {
	Generate(ctx context.Context) (string, error)
}

type failsafeRecorder interface {
	Record(ctx context.Context, in orderrepo.CreateInput, cause error)
}

// Service is the order transaction manager: it turns a checkout request into
// a durable order inside a single database transaction, never trusting the
// client-submitted total.
type Service struct {
	orders     orderRepo
	promotions promotionRepo
	idgen      idGenerator
	reconciler *pricing.Reconciler
	failsafe   failsafeRecorder
	provider   payments.Provider
	logger     *zap.Logger
}

func New(
	orders orderrepo.Repository,
	promotions promotionRepo,
	idgen idGenerator,
	reconciler *pricing.Reconciler,
	failsafe failsafeRecorder,
	provider payments.Provider,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		orders:     orders,
		promotions: promotions,
		idgen:      idgen,
		reconciler: reconciler,
		failsafe:   failsafe,
		provider:   provider,
		logger:     logger,
	}
}

type CreateOrderInput struct {
	Email           string            `json:"email"`
	Currency        string            `json:"currency"`
	Cart            []domain.CartItem `json:"cart"`
	ShippingAddress *domain.Address   `json:"shippingAddress,omitempty"`
	BillingAddress  *domain.Address   `json:"billingAddress,omitempty"`
	PromotionCode   *string           `json:"promotionCode,omitempty"`
}

// Result is what checkout returns to the client. ClientSecret is empty for
// zero-cost orders, which are paid immediately.
type Result struct {
	Order        *domain.Order
	Paid         bool
	ClientSecret string
}

var ErrValidation = errors.New("invalid checkout input")

func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*Result, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var promo *domain.Promotion
	if in.PromotionCode != nil {
		code := strings.TrimSpace(*in.PromotionCode)
		found, err := s.promotions.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown promotion code", ErrValidation)
			}
			return nil, err
		}
		promo = found
	}

	publicID, err := s.idgen.Generate(ctx)
	if err != nil {
		return nil, err
	}

	priced, err := s.reconciler.Reconcile(in.Cart, in.Currency, promo)
	if err != nil {
		return nil, err
	}
	for _, anomaly := range priced.Anomalies {
		s.logger.Warn("checkout price anomaly",
			zap.String("alert", "review"),
			zap.String("order_id", publicID),
			zap.String("anomaly", anomaly),
		)
	}

	createIn := orderrepo.CreateInput{
		PublicID:        publicID,
		Email:           in.Email,
		Currency:        in.Currency,
		PriceCents:      priced.TotalCents,
		Items:           in.Cart,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
	}
	if promo != nil {
		code := promo.Code
		createIn.PromotionCode = &code
	}

	ord, err := s.orders.Create(ctx, createIn)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateOrderID) {
			// The id probe raced another checkout. No automatic retry at
			// this layer; the caller may retry the whole checkout.
			s.logger.Error("order id collision at insert",
				zap.String("alert", "critical"),
				zap.String("order_id", publicID),
				zap.Error(err),
			)
			return nil, err
		}
		// Outside the critical path, with its own retry policy.
		go s.failsafe.Record(context.WithoutCancel(ctx), createIn, err)
		return nil, err
	}

	if ord.PriceCents == 0 {
		s.logger.Info("zero-cost order, no payment intent",
			zap.String("order_id", ord.PublicID))
		return &Result{Order: ord, Paid: true}, nil
	}

	intent, err := s.provider.CreateIntent(ctx, ord)
	if err != nil {
		// The order is durable; the unpaid cleanup pass reaps it if the
		// customer never returns.
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	return &Result{Order: ord, Paid: false, ClientSecret: intent.ClientSecret}, nil
}

// GetOrder returns the order with its full ledger and event history loaded.
// Callers decide how much of it is exposed.
func (s *Service) GetOrder(ctx context.Context, publicID string) (*domain.Order, error) {
	return s.orders.GetByPublicID(ctx, publicID)
}

func validateInput(in CreateOrderInput) error {
	if strings.TrimSpace(in.Email) == "" {
		return fmt.Errorf("%w: email required", ErrValidation)
	}
	if strings.TrimSpace(in.Currency) == "" {
		return fmt.Errorf("%w: currency required", ErrValidation)
	}
	if len(in.Cart) == 0 {
		return fmt.Errorf("%w: cart must not be empty", ErrValidation)
	}
	for _, item := range in.Cart {
		if !item.Kind.Valid() {
			return fmt.Errorf("%w: unknown cart item kind %q", ErrValidation, item.Kind)
		}
	}
	return nil
}
