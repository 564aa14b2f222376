package domain

import "time"

type EmailType string

const (
	EmailReceipt          EmailType = "RECEIPT"
	EmailDeliveryStarted  EmailType = "DELIVERY_STARTED"
	EmailDeliveryUpdate   EmailType = "DELIVERY_UPDATE"
	EmailDeliveryReminder EmailType = "DELIVERY_REMINDER"
)

func (t EmailType) Valid() bool {
	switch t {
	case EmailReceipt, EmailDeliveryStarted, EmailDeliveryUpdate, EmailDeliveryReminder:
		return true
	}
	return false
}

// MaxDeliveryEmails caps delivery-status notifications per order:
// one DELIVERY_STARTED plus at most two DELIVERY_UPDATE.
const MaxDeliveryEmails = 3

// SentEmail records one dispatched notification. The history of these rows is
// the only input to the at-most-once and capped-count sending policies.
type SentEmail struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"-"`
	EmailType EmailType `json:"emailType"`
	MessageID string    `json:"messageId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
