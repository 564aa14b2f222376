// Package mailer dispatches customer notifications. Template rendering and
// actual delivery are external collaborators; only the dispatch contract and
// the returned message id (recorded in sent_emails) live in this core.
package mailer

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"posterlab/internal/domain"
)

type Mailer interface {
	Receipt(ctx context.Context, ord *domain.Order) (messageID string, err error)
	DeliveryStarted(ctx context.Context, ord *domain.Order, trackingLink string) (messageID string, err error)
	DeliveryUpdate(ctx context.Context, ord *domain.Order, trackingLink string) (messageID string, err error)
	DeliveryReminder(ctx context.Context, ord *domain.Order) (messageID string, err error)
}

// LogMailer stands in for the external mail service: it logs the dispatch and
// mints a message id so the sent_emails policies stay exercisable.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) send(kind domain.EmailType, ord *domain.Order) (string, error) {
	id := uuid.NewString()
	m.logger.Info("notification dispatched",
		zap.String("email_type", string(kind)),
		zap.String("order_id", ord.PublicID),
		zap.String("message_id", id),
	)
	return id, nil
}

func (m *LogMailer) Receipt(_ context.Context, ord *domain.Order) (string, error) {
	return m.send(domain.EmailReceipt, ord)
}

func (m *LogMailer) DeliveryStarted(_ context.Context, ord *domain.Order, _ string) (string, error) {
	return m.send(domain.EmailDeliveryStarted, ord)
}

func (m *LogMailer) DeliveryUpdate(_ context.Context, ord *domain.Order, _ string) (string, error) {
	return m.send(domain.EmailDeliveryUpdate, ord)
}

func (m *LogMailer) DeliveryReminder(_ context.Context, ord *domain.Order) (string, error) {
	return m.send(domain.EmailDeliveryReminder, ord)
}
