// Package paymenthook reconciles payment-processor lifecycle events into the
// append-only ledger. The intent lifecycle is created -> succeeded | failed |
// canceled, with charge.refunded attachable to a succeeded intent.
package paymenthook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"

	"posterlab/internal/domain"
	"posterlab/internal/mailer"
	"posterlab/internal/payments"
	"posterlab/internal/pricing"
	ledgerrepo "posterlab/internal/repository/ledger"
)

type orderRepo interface {
	GetByPublicID(ctx context.Context, publicID string) (*domain.Order, error)
}

type ledgerRepo interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx ledgerrepo.Tx) error) error
}

type promotionRepo interface {
	GetByCode(ctx context.Context, code string) (*domain.Promotion, error)
}

type emailRecorder interface {
	Record(ctx context.Context, orderID string, emailType domain.EmailType, messageID string) (*domain.SentEmail, error)
}

type Processor struct {
	orders     orderRepo
	ledger     ledgerRepo
	promotions promotionRepo
	reconciler *pricing.Reconciler
	mailer     mailer.Mailer
	emails     emailRecorder
	logger     *zap.Logger
	// allowTestEvents lets non-livemode events through; never enable in
	// production.
	allowTestEvents bool
}

func New(
	orders orderRepo,
	ledger ledgerRepo,
	promotions promotionRepo,
	reconciler *pricing.Reconciler,
	m mailer.Mailer,
	emails emailRecorder,
	allowTestEvents bool,
	logger *zap.Logger,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		orders:          orders,
		ledger:          ledger,
		promotions:      promotions,
		reconciler:      reconciler,
		mailer:          m,
		emails:          emails,
		allowTestEvents: allowTestEvents,
		logger:          logger,
	}
}

// Process handles one verified processor event. The idempotency-checkpoint
// OrderEvent and the ledger rows it implies land in one transaction: if the
// rows fail, the checkpoint rolls back too, so the sender's redelivery
// reprocesses the event instead of hitting the dedupe with nothing recorded.
// Replays of an already-committed event return nil without side effects.
func (p *Processor) Process(ctx context.Context, event stripe.Event) error {
	eventType := string(event.Type)

	if !event.Livemode && !p.allowTestEvents {
		p.logger.Info("dropping test-mode event", zap.String("event_type", eventType), zap.String("event_id", event.ID))
		return nil
	}

	if !strings.HasPrefix(eventType, "payment_intent.") && eventType != "charge.refunded" {
		p.logger.Info("ignoring out-of-scope event type", zap.String("event_type", eventType))
		return nil
	}

	publicID, err := orderIDFromEvent(event)
	if err != nil {
		return err
	}

	ord, err := p.orders.GetByPublicID(ctx, publicID)
	if err != nil {
		return fmt.Errorf("resolve order %s: %w", publicID, err)
	}

	// Derive the ledger rows before touching the database. A consistency
	// failure here aborts with nothing recorded, so redeliveries keep
	// re-raising the alert instead of deduping it away.
	var rows []ledgerrepo.NewPayment
	receiptDue := false
	switch eventType {
	case "payment_intent.succeeded":
		rows, err = p.confirmationRows(ctx, ord, event)
		if err != nil {
			return err
		}
		receiptDue = true
	case "charge.refunded":
		rows, err = p.refundRows(ord, event)
		if err != nil {
			return err
		}
	case "payment_intent.created":
		p.logger.Info("payment intent created", zap.String("order_id", ord.PublicID))
	case "payment_intent.payment_failed", "payment_intent.canceled":
		p.logger.Warn("payment intent did not complete",
			zap.String("order_id", ord.PublicID),
			zap.String("event_type", eventType),
		)
	default:
		// Forward compatibility: new intent event types are logged, never
		// rejected.
		p.logger.Info("no-op for unknown payment event", zap.String("event_type", eventType))
	}

	var duplicate bool
	err = p.ledger.WithTx(ctx, func(ctx context.Context, tx ledgerrepo.Tx) error {
		_, dup, err := tx.CreateOrderEvent(ctx, ord.ID, ledgerrepo.NewEvent{
			Source:     domain.SourceStripe,
			EventType:  eventType,
			ExternalID: event.ID,
			Payload:    json.RawMessage(event.Data.Raw),
		})
		if err != nil {
			return fmt.Errorf("record order event: %w", err)
		}
		duplicate = dup
		if duplicate || len(rows) == 0 {
			return nil
		}
		if _, err := tx.CreatePayments(ctx, ord.ID, rows); err != nil {
			return fmt.Errorf("append ledger rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if duplicate || !receiptDue {
		return nil
	}

	// Outside the transaction: a lost receipt is recoverable, a lost ledger
	// row is not.
	messageID, err := p.mailer.Receipt(ctx, ord)
	if err != nil {
		p.logger.Error("receipt dispatch failed", zap.String("order_id", ord.PublicID), zap.Error(err))
		return nil
	}
	if _, err := p.emails.Record(ctx, ord.ID, domain.EmailReceipt, messageID); err != nil {
		p.logger.Error("receipt sent but not recorded", zap.String("order_id", ord.PublicID), zap.Error(err))
	}
	return nil
}

func orderIDFromEvent(event stripe.Event) (string, error) {
	var envelope struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &envelope); err != nil {
		return "", fmt.Errorf("decode event object: %w", err)
	}
	id := envelope.Metadata[payments.MetadataOrderKey]
	if id == "" {
		return "", fmt.Errorf("%w: event %s has no metadata.%s", domain.ErrMissingOrderRef, event.ID, payments.MetadataOrderKey)
	}
	return id, nil
}

// confirmationRows turns a succeeded intent into the promotion-delta and
// processor-charge ledger rows, after asserting the reported amount against
// an independently recomputed price.
func (p *Processor) confirmationRows(ctx context.Context, ord *domain.Order, event stripe.Event) ([]ledgerrepo.NewPayment, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}

	var promo *domain.Promotion
	if ord.PromotionCode != nil {
		found, err := p.promotions.GetByCode(ctx, *ord.PromotionCode)
		if err != nil {
			return nil, fmt.Errorf("resolve promotion %s: %w", *ord.PromotionCode, err)
		}
		promo = found
	}

	// Recompute the discounted price independently of both the stored order
	// price and the processor-reported amount.
	priced, err := p.reconciler.Reconcile(ord.Items, ord.Currency, promo)
	if err != nil {
		return nil, fmt.Errorf("reprice order %s: %w", ord.PublicID, err)
	}

	if intent.AmountReceived != priced.TotalCents || !strings.EqualFold(string(intent.Currency), ord.Currency) {
		p.logger.Error("processor-reported amount disagrees with recomputed price",
			zap.String("alert", "business-critical"),
			zap.String("order_id", ord.PublicID),
			zap.Int64("amount_received", intent.AmountReceived),
			zap.Int64("recomputed_cents", priced.TotalCents),
			zap.String("reported_currency", string(intent.Currency)),
			zap.String("order_currency", ord.Currency),
		)
		return nil, fmt.Errorf("%w: order %s received %d %s, expected %d %s",
			domain.ErrAmountMismatch, ord.PublicID,
			intent.AmountReceived, intent.Currency, priced.TotalCents, ord.Currency)
	}

	rows := make([]ledgerrepo.NewPayment, 0, 2)
	if promo != nil && priced.DiscountCents > 0 {
		code := promo.Code
		rows = append(rows, ledgerrepo.NewPayment{
			Type:           domain.PaymentCharge,
			AmountCents:    priced.DiscountCents,
			Currency:       ord.Currency,
			Provider:       domain.ProviderPromotion,
			ProviderMethod: domain.MethodDiscountCode,
			PromotionCode:  &code,
		})
	}
	rows = append(rows, ledgerrepo.NewPayment{
		Type:           domain.PaymentCharge,
		AmountCents:    intent.AmountReceived,
		Currency:       ord.Currency,
		Provider:       domain.ProviderStripe,
		ProviderMethod: methodFromIntent(&intent),
		ExternalRef:    intent.ID,
	})
	return rows, nil
}

func methodFromIntent(intent *stripe.PaymentIntent) domain.ProviderMethod {
	for _, t := range intent.PaymentMethodTypes {
		switch t {
		case "card":
			return domain.MethodCard
		case "sepa_debit":
			return domain.MethodSEPA
		case "paypal":
			return domain.MethodPayPal
		}
	}
	return domain.MethodCard
}

func methodFromCharge(charge *stripe.Charge) domain.ProviderMethod {
	if charge.PaymentMethodDetails != nil {
		switch charge.PaymentMethodDetails.Type {
		case "card":
			return domain.MethodCard
		case "sepa_debit":
			return domain.MethodSEPA
		case "paypal":
			return domain.MethodPayPal
		}
	}
	return domain.MethodCard
}

// refundRows extracts the most recent succeeded refund as a REFUND row. A
// payload that carries no usable refund yields no rows but still checkpoints
// the event.
func (p *Processor) refundRows(ord *domain.Order, event stripe.Event) ([]ledgerrepo.NewPayment, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return nil, fmt.Errorf("decode charge: %w", err)
	}

	if charge.Refunds == nil || len(charge.Refunds.Data) == 0 {
		p.logger.Warn("charge.refunded without refund records", zap.String("order_id", ord.PublicID))
		return nil, nil
	}
	// No pagination support: refusing beats silently undercounting refunds.
	if charge.Refunds.HasMore {
		p.logger.Error("refund list truncated by processor",
			zap.String("alert", "business-critical"),
			zap.String("order_id", ord.PublicID),
			zap.String("charge_id", charge.ID),
		)
		return nil, fmt.Errorf("%w: charge %s", domain.ErrRefundOverflow, charge.ID)
	}

	var latest *stripe.Refund
	for _, refund := range charge.Refunds.Data {
		if refund.Status != stripe.RefundStatusSucceeded {
			continue
		}
		if latest == nil || refund.Created > latest.Created {
			latest = refund
		}
	}
	if latest == nil {
		p.logger.Warn("no succeeded refund on charge", zap.String("order_id", ord.PublicID), zap.String("charge_id", charge.ID))
		return nil, nil
	}

	return []ledgerrepo.NewPayment{{
		Type:           domain.PaymentRefund,
		AmountCents:    latest.Amount,
		Currency:       ord.Currency,
		Provider:       domain.ProviderStripe,
		ProviderMethod: methodFromCharge(&charge),
		ExternalRef:    latest.ID,
	}}, nil
}
