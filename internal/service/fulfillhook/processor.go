// Package fulfillhook ingests manufacturing-partner delivery callbacks,
// event-sources them into order_events and triggers capped delivery
// notifications.
package fulfillhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"posterlab/internal/domain"
	"posterlab/internal/mailer"
	emailrepo "posterlab/internal/repository/email"
	ledgerrepo "posterlab/internal/repository/ledger"
)

type orderRepo interface {
	GetByExternalOrderID(ctx context.Context, externalOrderID string) (*domain.Order, error)
}

type ledgerRepo interface {
	CreateOrderEvent(ctx context.Context, orderID string, in ledgerrepo.NewEvent) (*domain.OrderEvent, bool, error)
}

type emailRepo interface {
	WithOrderLock(ctx context.Context, orderID string, fn func(ctx context.Context, tx emailrepo.Tx) error) error
}

// Config controls signature verification. Disabling it is for development
// only.
type Config struct {
	Secret       []byte
	SignatureOff bool
}

type Processor struct {
	cfg    Config
	orders orderRepo
	ledger ledgerRepo
	emails emailRepo
	mailer mailer.Mailer
	logger *zap.Logger
}

func New(cfg Config, orders orderRepo, ledger ledgerRepo, emails emailRepo, m mailer.Mailer, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{cfg: cfg, orders: orders, ledger: ledger, emails: emails, mailer: m, logger: logger}
}

// payload mirrors the partner's webhook envelope.
type payload struct {
	EventType string `json:"eventType"`
	UserOrder struct {
		OrderNumber string `json:"orderNumber"`
		Meta        struct {
			TrackingCode          string `json:"trackingCode"`
			ExternalTrackingLinks []struct {
				URL string `json:"url"`
			} `json:"externalTrackingLinks"`
		} `json:"meta"`
	} `json:"userOrder"`
}

// Ingest authenticates and processes one partner callback. Events referencing
// orders unknown to this system are dropped as recoverable: the partner also
// serves orders created outside this platform.
func (p *Processor) Ingest(ctx context.Context, body []byte, signature string) error {
	if !p.cfg.SignatureOff {
		if err := verifySignature(p.cfg.Secret, body, signature); err != nil {
			return err
		}
	}

	var evt payload
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("decode fulfillment event: %w", err)
	}
	if evt.UserOrder.OrderNumber == "" {
		return errors.New("fulfillment event missing orderNumber")
	}

	ord, err := p.orders.GetByExternalOrderID(ctx, evt.UserOrder.OrderNumber)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			p.logger.Warn("fulfillment event for unknown order, dropping",
				zap.String("order_number", evt.UserOrder.OrderNumber),
				zap.String("event_type", evt.EventType),
			)
			return nil
		}
		return err
	}

	if _, _, err := p.ledger.CreateOrderEvent(ctx, ord.ID, ledgerrepo.NewEvent{
		Source:    domain.SourceFulfillment,
		EventType: evt.EventType,
		Payload:   json.RawMessage(body),
	}); err != nil {
		return fmt.Errorf("record order event: %w", err)
	}

	switch domain.FulfillmentEventKind(evt.EventType) {
	case domain.FulfillmentOrderCreated:
		p.logger.Info("partner accepted order", zap.String("order_id", ord.PublicID))
		return nil
	case domain.FulfillmentOrderCancelled:
		p.logger.Warn("partner cancelled order",
			zap.String("alert", "review"),
			zap.String("order_id", ord.PublicID),
		)
		return nil
	case domain.FulfillmentOrderDelivered:
		return p.handleDelivered(ctx, ord, evt)
	default:
		p.logger.Info("no-op for unknown fulfillment event",
			zap.String("order_id", ord.PublicID),
			zap.String("event_type", evt.EventType),
		)
		return nil
	}
}

func (p *Processor) handleDelivered(ctx context.Context, ord *domain.Order, evt payload) error {
	link := trackingLink(evt)
	if link == "" {
		return fmt.Errorf("%w: order %s", domain.ErrMissingTrackingLink, ord.PublicID)
	}

	// The whole read-then-decide-then-send sequence runs under a per-order
	// advisory lock so a replayed webhook cannot double-send.
	return p.emails.WithOrderLock(ctx, ord.ID, func(ctx context.Context, tx emailrepo.Tx) error {
		sent, err := tx.History(ctx, ord.ID)
		if err != nil {
			return err
		}

		var started bool
		deliveryCount := 0
		for _, e := range sent {
			switch e.EmailType {
			case domain.EmailDeliveryStarted:
				started = true
				deliveryCount++
			case domain.EmailDeliveryUpdate:
				deliveryCount++
			}
		}

		if !started {
			messageID, err := p.mailer.DeliveryStarted(ctx, ord, link)
			if err != nil {
				return fmt.Errorf("send delivery started: %w", err)
			}
			_, err = tx.Record(ctx, ord.ID, domain.EmailDeliveryStarted, messageID)
			return err
		}

		if deliveryCount >= domain.MaxDeliveryEmails {
			return fmt.Errorf("%w: order %s already got %d delivery emails",
				domain.ErrEmailCapExceeded, ord.PublicID, deliveryCount)
		}

		messageID, err := p.mailer.DeliveryUpdate(ctx, ord, link)
		if err != nil {
			return fmt.Errorf("send delivery update: %w", err)
		}
		_, err = tx.Record(ctx, ord.ID, domain.EmailDeliveryUpdate, messageID)
		return err
	})
}

func trackingLink(evt payload) string {
	for _, l := range evt.UserOrder.Meta.ExternalTrackingLinks {
		if l.URL != "" {
			return l.URL
		}
	}
	return ""
}
