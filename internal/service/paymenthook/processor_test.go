package paymenthook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"posterlab/internal/domain"
	"posterlab/internal/pricing"
	ledgerrepo "posterlab/internal/repository/ledger"
)

type stubOrders struct {
	order *domain.Order
	err   error
}

func (s *stubOrders) GetByPublicID(_ context.Context, _ string) (*domain.Order, error) {
	return s.order, s.err
}

// stubLedger mimics the transactional ledger: appends made inside WithTx only
// become visible when fn succeeds, and committed external event ids dedupe
// later inserts.
type stubLedger struct {
	events  []ledgerrepo.NewEvent
	batches [][]ledgerrepo.NewPayment

	// paymentFailures makes the next N CreatePayments calls fail, simulating
	// transient insert errors.
	paymentFailures int
}

func (s *stubLedger) WithTx(ctx context.Context, fn func(ctx context.Context, tx ledgerrepo.Tx) error) error {
	tx := &stubLedgerTx{ledger: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.events = append(s.events, tx.events...)
	s.batches = append(s.batches, tx.batches...)
	return nil
}

type stubLedgerTx struct {
	ledger  *stubLedger
	events  []ledgerrepo.NewEvent
	batches [][]ledgerrepo.NewPayment
}

func (t *stubLedgerTx) CreateOrderEvent(_ context.Context, _ string, in ledgerrepo.NewEvent) (*domain.OrderEvent, bool, error) {
	for _, committed := range t.ledger.events {
		if in.ExternalID != "" && committed.ExternalID == in.ExternalID {
			return nil, true, nil
		}
	}
	t.events = append(t.events, in)
	return &domain.OrderEvent{ID: "01evt"}, false, nil
}

func (t *stubLedgerTx) CreatePayments(_ context.Context, _ string, ins []ledgerrepo.NewPayment) ([]domain.Payment, error) {
	if t.ledger.paymentFailures > 0 {
		t.ledger.paymentFailures--
		return nil, errors.New("connection reset by peer")
	}
	t.batches = append(t.batches, ins)
	return make([]domain.Payment, len(ins)), nil
}

func (t *stubLedgerTx) CreatePayment(ctx context.Context, orderID string, in ledgerrepo.NewPayment) (*domain.Payment, error) {
	payments, err := t.CreatePayments(ctx, orderID, []ledgerrepo.NewPayment{in})
	if err != nil {
		return nil, err
	}
	return &payments[0], nil
}

type stubPromotions struct {
	promo *domain.Promotion
	err   error
}

func (s *stubPromotions) GetByCode(_ context.Context, _ string) (*domain.Promotion, error) {
	return s.promo, s.err
}

type stubMailer struct {
	receipts int
	err      error
}

func (m *stubMailer) Receipt(_ context.Context, _ *domain.Order) (string, error) {
	m.receipts++
	return "msg-1", m.err
}
func (m *stubMailer) DeliveryStarted(_ context.Context, _ *domain.Order, _ string) (string, error) {
	return "", nil
}
func (m *stubMailer) DeliveryUpdate(_ context.Context, _ *domain.Order, _ string) (string, error) {
	return "", nil
}
func (m *stubMailer) DeliveryReminder(_ context.Context, _ *domain.Order) (string, error) {
	return "", nil
}

type stubEmails struct {
	recorded []domain.EmailType
}

func (s *stubEmails) Record(_ context.Context, _ string, t domain.EmailType, _ string) (*domain.SentEmail, error) {
	s.recorded = append(s.recorded, t)
	return &domain.SentEmail{}, nil
}

func discountedOrder() *domain.Order {
	code := "PERCENTAGE20"
	return &domain.Order{
		ID:            "uuid-1",
		PublicID:      "1111-2222-3333-4444",
		Email:         "a@b.c",
		Currency:      "EUR",
		PriceCents:    1600,
		PromotionCode: &code,
		Items: []domain.CartItem{
			{Kind: domain.ItemMapPoster, Quantity: 1, UnitPriceCents: 2000, Currency: "EUR"},
		},
	}
}

func percentage20() *domain.Promotion {
	return &domain.Promotion{Code: "PERCENTAGE20", Kind: domain.PromotionPercentage, Value: 20}
}

func newProcessor(orders *stubOrders, ledger *stubLedger, promos *stubPromotions, m *stubMailer, emails *stubEmails, allowTest bool) *Processor {
	return New(orders, ledger, promos, pricing.New(pricing.DefaultLimits()), m, emails, allowTest, zap.NewNop())
}

func intentEvent(t *testing.T, eventType string, amountReceived int64, currency string) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"id":                   "pi_123",
		"amount_received":      amountReceived,
		"currency":             currency,
		"payment_method_types": []string{"card"},
		"metadata":             map[string]string{"prettyOrderId": "1111-2222-3333-4444"},
	})
	require.NoError(t, err)
	return stripe.Event{
		ID:       "evt_1",
		Type:     stripe.EventType(eventType),
		Livemode: true,
		Data:     &stripe.EventData{Raw: raw},
	}
}

func refundEvent(t *testing.T, hasMore bool, method string, refunds ...map[string]interface{}) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"id":                     "ch_1",
		"metadata":               map[string]string{"prettyOrderId": "1111-2222-3333-4444"},
		"payment_method_details": map[string]interface{}{"type": method},
		"refunds": map[string]interface{}{
			"data":     refunds,
			"has_more": hasMore,
		},
	})
	require.NoError(t, err)
	return stripe.Event{
		ID:       "evt_re_1",
		Type:     "charge.refunded",
		Livemode: true,
		Data:     &stripe.EventData{Raw: raw},
	}
}

func TestProcessDropsTestModeEvents(t *testing.T) {
	ledger := &stubLedger{}
	p := newProcessor(&stubOrders{order: discountedOrder()}, ledger, &stubPromotions{promo: percentage20()}, &stubMailer{}, &stubEmails{}, false)

	evt := intentEvent(t, "payment_intent.succeeded", 1600, "eur")
	evt.Livemode = false
	require.NoError(t, p.Process(context.Background(), evt))
	require.Empty(t, ledger.events, "test-mode events must not touch the ledger")
	require.Empty(t, ledger.batches)
}

func TestProcessAllowsTestModeWhenConfigured(t *testing.T) {
	ledger := &stubLedger{}
	p := newProcessor(&stubOrders{order: discountedOrder()}, ledger, &stubPromotions{promo: percentage20()}, &stubMailer{}, &stubEmails{}, true)

	evt := intentEvent(t, "payment_intent.succeeded", 1600, "eur")
	evt.Livemode = false
	require.NoError(t, p.Process(context.Background(), evt))
	require.Len(t, ledger.batches, 1)
}

func TestProcessIgnoresOutOfScopeEvents(t *testing.T) {
	ledger := &stubLedger{}
	p := newProcessor(&stubOrders{}, ledger, &stubPromotions{}, &stubMailer{}, &stubEmails{}, false)

	evt := stripe.Event{ID: "evt_x", Type: "customer.created", Livemode: true, Data: &stripe.EventData{Raw: []byte(`{}`)}}
	require.NoError(t, p.Process(context.Background(), evt))
	require.Empty(t, ledger.events)
}

func TestProcessMissingOrderReference(t *testing.T) {
	p := newProcessor(&stubOrders{}, &stubLedger{}, &stubPromotions{}, &stubMailer{}, &stubEmails{}, false)
	raw, _ := json.Marshal(map[string]interface{}{"id": "pi_1", "metadata": map[string]string{}})
	evt := stripe.Event{ID: "evt_1", Type: "payment_intent.succeeded", Livemode: true, Data: &stripe.EventData{Raw: raw}}

	err := p.Process(context.Background(), evt)
	require.ErrorIs(t, err, domain.ErrMissingOrderRef)
}

func TestProcessSucceededRecordsPromotionAndCharge(t *testing.T) {
	ledger := &stubLedger{}
	m := &stubMailer{}
	emails := &stubEmails{}
	p := newProcessor(&stubOrders{order: discountedOrder()}, ledger, &stubPromotions{promo: percentage20()}, m, emails, false)

	require.NoError(t, p.Process(context.Background(), intentEvent(t, "payment_intent.succeeded", 1600, "eur")))

	require.Len(t, ledger.events, 1)
	require.Equal(t, "evt_1", ledger.events[0].ExternalID)

	require.Len(t, ledger.batches, 1, "all confirmation rows must land in one transaction")
	rows := ledger.batches[0]
	require.Len(t, rows, 2)
	require.Equal(t, domain.ProviderPromotion, rows[0].Provider)
	require.Equal(t, int64(400), rows[0].AmountCents)
	require.Equal(t, domain.ProviderStripe, rows[1].Provider)
	require.Equal(t, int64(1600), rows[1].AmountCents)
	require.Equal(t, "pi_123", rows[1].ExternalRef)

	require.Equal(t, 1, m.receipts)
	require.Equal(t, []domain.EmailType{domain.EmailReceipt}, emails.recorded)
}

func TestProcessSucceededAmountMismatchAborts(t *testing.T) {
	ledger := &stubLedger{}
	m := &stubMailer{}
	p := newProcessor(&stubOrders{order: discountedOrder()}, ledger, &stubPromotions{promo: percentage20()}, m, &stubEmails{}, false)

	err := p.Process(context.Background(), intentEvent(t, "payment_intent.succeeded", 1700, "eur"))
	require.ErrorIs(t, err, domain.ErrAmountMismatch)
	require.Empty(t, ledger.batches, "mismatch must not produce ledger rows")
	require.Empty(t, ledger.events, "mismatch must not checkpoint; a redelivery re-raises the alert")
	require.Zero(t, m.receipts)
}

func TestProcessSucceededCurrencyMismatchAborts(t *testing.T) {
	ledger := &stubLedger{}
	p := newProcessor(&stubOrders{order: discountedOrder()}, ledger, &stubPromotions{promo: percentage20()}, &stubMailer{}, &stubEmails{}, false)

	err := p.Process(context.Background(), intentEvent(t, "payment_intent.succeeded", 1600, "usd"))
	require.ErrorIs(t, err, domain.ErrAmountMismatch)
	require.Empty(t, ledger.batches)
}

func TestProcessDuplicateEventIsIdempotent(t *testing.T) {
	ledger := &stubLedger{}
	m := &stubMailer{}
	p := newProcessor(&stubOrders{order: discountedOrder()}, ledger, &stubPromotions{promo: percentage20()}, m, &stubEmails{}, false)

	evt := intentEvent(t, "payment_intent.succeeded", 1600, "eur")
	require.NoError(t, p.Process(context.Background(), evt))
	require.NoError(t, p.Process(context.Background(), evt))

	require.Len(t, ledger.events, 1)
	require.Len(t, ledger.batches, 1, "the replay must not append a second confirmation")
	require.Equal(t, 1, m.receipts)
}

func TestProcessRetriedDeliveryRecordsChargeAfterTransientFailure(t *testing.T) {
	ledger := &stubLedger{paymentFailures: 1}
	m := &stubMailer{}
	p := newProcessor(&stubOrders{order: discountedOrder()}, ledger, &stubPromotions{promo: percentage20()}, m, &stubEmails{}, false)

	evt := intentEvent(t, "payment_intent.succeeded", 1600, "eur")

	// First delivery: the row insert fails, and the checkpoint must roll back
	// with it. A checkpoint that survived alone would turn the redelivery
	// into a dedupe hit with the charge lost forever.
	require.Error(t, p.Process(context.Background(), evt))
	require.Empty(t, ledger.events, "failed confirmation must not leave a committed checkpoint")
	require.Empty(t, ledger.batches)
	require.Zero(t, m.receipts)

	// Redelivery: processed from scratch, charge recorded.
	require.NoError(t, p.Process(context.Background(), evt))
	require.Len(t, ledger.events, 1)
	require.Len(t, ledger.batches, 1)
	require.Len(t, ledger.batches[0], 2)
	require.Equal(t, 1, m.receipts)
}

func TestProcessFailedAndCanceledLogOnly(t *testing.T) {
	for _, eventType := range []string{"payment_intent.payment_failed", "payment_intent.canceled", "payment_intent.created"} {
		t.Run(eventType, func(t *testing.T) {
			ledger := &stubLedger{}
			p := newProcessor(&stubOrders{order: discountedOrder()}, ledger, &stubPromotions{}, &stubMailer{}, &stubEmails{}, false)

			require.NoError(t, p.Process(context.Background(), intentEvent(t, eventType, 0, "eur")))
			require.Len(t, ledger.events, 1, "event must still be checkpointed")
			require.Empty(t, ledger.batches)
		})
	}
}

func TestProcessRefundOverflowRefused(t *testing.T) {
	ledger := &stubLedger{}
	p := newProcessor(&stubOrders{order: discountedOrder()}, ledger, &stubPromotions{}, &stubMailer{}, &stubEmails{}, false)

	evt := refundEvent(t, true, "card", map[string]interface{}{"id": "re_1", "amount": 500, "status": "succeeded", "created": 10})
	err := p.Process(context.Background(), evt)
	require.ErrorIs(t, err, domain.ErrRefundOverflow)
	require.Empty(t, ledger.batches)
}

func TestProcessRefundTakesLatestSucceeded(t *testing.T) {
	ledger := &stubLedger{}
	p := newProcessor(&stubOrders{order: discountedOrder()}, ledger, &stubPromotions{}, &stubMailer{}, &stubEmails{}, false)

	evt := refundEvent(t, false, "card",
		map[string]interface{}{"id": "re_old", "amount": 300, "status": "succeeded", "created": 10},
		map[string]interface{}{"id": "re_failed", "amount": 900, "status": "failed", "created": 30},
		map[string]interface{}{"id": "re_new", "amount": 500, "status": "succeeded", "created": 20},
	)
	require.NoError(t, p.Process(context.Background(), evt))
	require.Len(t, ledger.batches, 1)
	require.Len(t, ledger.batches[0], 1)
	row := ledger.batches[0][0]
	require.Equal(t, domain.PaymentRefund, row.Type)
	require.Equal(t, int64(500), row.AmountCents)
	require.Equal(t, "re_new", row.ExternalRef)
}

func TestProcessRefundMethodFollowsCharge(t *testing.T) {
	tests := []struct {
		method string
		want   domain.ProviderMethod
	}{
		{"card", domain.MethodCard},
		{"sepa_debit", domain.MethodSEPA},
		{"paypal", domain.MethodPayPal},
	}
	for _, tc := range tests {
		t.Run(tc.method, func(t *testing.T) {
			ledger := &stubLedger{}
			p := newProcessor(&stubOrders{order: discountedOrder()}, ledger, &stubPromotions{}, &stubMailer{}, &stubEmails{}, false)

			evt := refundEvent(t, false, tc.method, map[string]interface{}{"id": "re_1", "amount": 500, "status": "succeeded", "created": 10})
			require.NoError(t, p.Process(context.Background(), evt))
			require.Len(t, ledger.batches, 1)
			require.Equal(t, tc.want, ledger.batches[0][0].ProviderMethod)
		})
	}
}

func TestProcessUnknownIntentEventNoOp(t *testing.T) {
	ledger := &stubLedger{}
	p := newProcessor(&stubOrders{order: discountedOrder()}, ledger, &stubPromotions{}, &stubMailer{}, &stubEmails{}, false)

	require.NoError(t, p.Process(context.Background(), intentEvent(t, "payment_intent.partially_funded", 0, "eur")))
	require.Len(t, ledger.events, 1)
	require.Empty(t, ledger.batches)
}
