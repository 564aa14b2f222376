// Package dispatch is the periodic batch job handing paid orders to the
// manufacturing partner and auditing the ones that cannot be handed over.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"posterlab/internal/domain"
	"posterlab/internal/fulfillment"
	"posterlab/internal/mailer"
)

type orderRepo interface {
	ListDispatchable(ctx context.Context, createdBefore time.Time) ([]domain.Order, error)
	ListPartiallyPaid(ctx context.Context, createdBefore time.Time) ([]domain.Order, error)
	DeleteUnpaidBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListDispatchedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error)
	MarkDispatched(ctx context.Context, orderID, externalOrderID string, audit []byte) error
}

type emailRecorder interface {
	Record(ctx context.Context, orderID string, emailType domain.EmailType, messageID string) (*domain.SentEmail, error)
}

// Options tune the scheduler windows.
type Options struct {
	GracePeriod time.Duration
	// Retention is how long unpaid orders survive before hard deletion.
	Retention time.Duration
	// StaleAfterBusinessDays is when a dispatched order without a terminal
	// event counts as overdue.
	StaleAfterBusinessDays int
}

func DefaultOptions() Options {
	return Options{
		GracePeriod:            time.Hour,
		Retention:              14 * 24 * time.Hour,
		StaleAfterBusinessDays: 5,
	}
}

type Scheduler struct {
	orders  orderRepo
	partner fulfillment.Client
	emails  emailRecorder
	mailer  mailer.Mailer
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
}

func New(orders orderRepo, partner fulfillment.Client, emails emailRecorder, m mailer.Mailer, opts Options, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StaleAfterBusinessDays <= 0 {
		opts.StaleAfterBusinessDays = DefaultOptions().StaleAfterBusinessDays
	}
	return &Scheduler{
		orders:  orders,
		partner: partner,
		emails:  emails,
		mailer:  m,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Run executes one scheduler round: dispatch, partial-payment audit, unpaid
// cleanup, then the staleness scan. Pass failures are isolated; a broken
// dispatch pass must not stop the cleanup.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.dispatchPaid(ctx); err != nil {
		s.logger.Error("dispatch pass failed", zap.Error(err))
	}
	if err := s.auditPartiallyPaid(ctx); err != nil {
		s.logger.Error("partial-payment audit failed", zap.Error(err))
	}
	if err := s.cleanupUnpaid(ctx); err != nil {
		s.logger.Error("unpaid cleanup failed", zap.Error(err))
	}
	if err := s.scanStaleDispatched(ctx); err != nil {
		s.logger.Error("staleness scan failed", zap.Error(err))
	}
}

// dispatchPaid hands over every undispatched, fully paid order past the grace
// period. Strictly sequential: one slow or failing order must neither hammer
// the partner nor block its siblings beyond its own turn.
func (s *Scheduler) dispatchPaid(ctx context.Context) error {
	orders, err := s.orders.ListDispatchable(ctx, s.now().Add(-s.opts.GracePeriod))
	if err != nil {
		return err
	}

	for i := range orders {
		ord := &orders[i]
		if err := s.dispatchOne(ctx, ord); err != nil {
			s.logger.Error("order dispatch failed",
				zap.String("alert", "business-critical"),
				zap.String("order_id", ord.PublicID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Scheduler) dispatchOne(ctx context.Context, ord *domain.Order) error {
	if err := validateGeometry(ord); err != nil {
		return err
	}

	placed, err := s.partner.PlaceOrder(ctx, fulfillment.PlaceRequest{
		OrderNumber:     ord.PublicID,
		Email:           ord.Email,
		Items:           ord.Items,
		ShippingAddress: ord.ShippingAddress,
	})
	if err != nil {
		return fmt.Errorf("place order with partner: %w", err)
	}

	audit, err := json.Marshal(map[string]json.RawMessage{
		"request":  placed.RawRequest,
		"response": placed.RawResponse,
	})
	if err != nil {
		return fmt.Errorf("marshal dispatch audit: %w", err)
	}

	if err := s.orders.MarkDispatched(ctx, ord.ID, placed.ExternalOrderID, audit); err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}
	return nil
}

// validateGeometry rejects map posters whose declared center lies outside
// their declared bounding box. Rejected, never auto-corrected: a wrong map is
// worse than a late one.
func validateGeometry(ord *domain.Order) error {
	for _, item := range ord.Items {
		if item.Kind != domain.ItemMapPoster {
			continue
		}
		if !item.Attributes.Map.CenterInBounds() {
			return fmt.Errorf("%w: order %s item %s", domain.ErrGeometryInvalid, ord.PublicID, item.ID)
		}
	}
	return nil
}

// auditPartiallyPaid reports orders past the grace period with some but
// insufficient payment. Read-only: nothing is dispatched or mutated.
func (s *Scheduler) auditPartiallyPaid(ctx context.Context) error {
	orders, err := s.orders.ListPartiallyPaid(ctx, s.now().Add(-s.opts.GracePeriod))
	if err != nil {
		return err
	}
	for i := range orders {
		ord := &orders[i]
		s.logger.Error("order partially paid, manual review required",
			zap.String("alert", "business-critical"),
			zap.String("order_id", ord.PublicID),
			zap.Int64("price_cents", ord.PriceCents),
			zap.Int64("outstanding_cents", ord.OutstandingCents()),
		)
	}
	return nil
}

func (s *Scheduler) cleanupUnpaid(ctx context.Context) error {
	deleted, err := s.orders.DeleteUnpaidBefore(ctx, s.now().Add(-s.opts.Retention))
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.logger.Info("unpaid orders deleted", zap.Int64("count", deleted))
	}
	return nil
}

// scanStaleDispatched flags orders dispatched 1-15 business days ago with no
// terminal delivery event and no reminder yet. Before flagging it asks the
// partner for a live status: a missed webhook must not look like a late
// order.
func (s *Scheduler) scanStaleDispatched(ctx context.Context) error {
	now := s.now()
	// 15 business days fit inside 22 calendar days; the exact business-day
	// window is applied per order below.
	orders, err := s.orders.ListDispatchedBetween(ctx, now.Add(-22*24*time.Hour), now.Add(-24*time.Hour))
	if err != nil {
		return err
	}

	for i := range orders {
		ord := &orders[i]
		if ord.DispatchedAt == nil || ord.ExternalOrderID == nil {
			continue
		}
		elapsed := BusinessDaysBetween(*ord.DispatchedAt, now)
		if elapsed < 1 || elapsed > 15 || elapsed < s.opts.StaleAfterBusinessDays {
			continue
		}

		status, err := s.partner.OrderStatus(ctx, *ord.ExternalOrderID)
		if err != nil {
			s.logger.Error("live status check failed",
				zap.String("order_id", ord.PublicID),
				zap.Error(err),
			)
			continue
		}
		if status.Terminal() {
			// The partner finished the order; only the webhook went missing.
			s.logger.Info("terminal status found on live check, not flagging",
				zap.String("order_id", ord.PublicID),
				zap.String("state", status.State),
			)
			continue
		}

		s.logger.Error("dispatched order overdue",
			zap.String("alert", "business-critical"),
			zap.String("order_id", ord.PublicID),
			zap.Int("business_days", elapsed),
			zap.String("partner_state", status.State),
		)

		messageID, err := s.mailer.DeliveryReminder(ctx, ord)
		if err != nil {
			s.logger.Error("delivery reminder dispatch failed", zap.String("order_id", ord.PublicID), zap.Error(err))
			continue
		}
		if _, err := s.emails.Record(ctx, ord.ID, domain.EmailDeliveryReminder, messageID); err != nil {
			s.logger.Error("delivery reminder sent but not recorded", zap.String("order_id", ord.PublicID), zap.Error(err))
		}
	}
	return nil
}
