package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"posterlab/internal/domain"
	"posterlab/internal/fulfillment"
)

type orderRepoStub struct {
	dispatchable  []domain.Order
	partiallyPaid []domain.Order
	dispatched    []domain.Order
	deleted       int64

	marked       []string
	markedExtIDs []string
	markErr      error
}

func (s *orderRepoStub) ListDispatchable(context.Context, time.Time) ([]domain.Order, error) {
	return s.dispatchable, nil
}

func (s *orderRepoStub) ListPartiallyPaid(context.Context, time.Time) ([]domain.Order, error) {
	return s.partiallyPaid, nil
}

func (s *orderRepoStub) DeleteUnpaidBefore(context.Context, time.Time) (int64, error) {
	return s.deleted, nil
}

func (s *orderRepoStub) ListDispatchedBetween(context.Context, time.Time, time.Time) ([]domain.Order, error) {
	return s.dispatched, nil
}

func (s *orderRepoStub) MarkDispatched(_ context.Context, orderID, externalOrderID string, _ []byte) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.marked = append(s.marked, orderID)
	s.markedExtIDs = append(s.markedExtIDs, externalOrderID)
	return nil
}

type partnerStub struct {
	placed    []string
	placeErr  error
	status    fulfillment.Status
	statusErr error
	checked   []string
}

func (p *partnerStub) PlaceOrder(_ context.Context, req fulfillment.PlaceRequest) (fulfillment.PlacedOrder, error) {
	if p.placeErr != nil {
		return fulfillment.PlacedOrder{}, p.placeErr
	}
	p.placed = append(p.placed, req.OrderNumber)
	return fulfillment.PlacedOrder{
		ExternalOrderID: "ext-" + req.OrderNumber,
		RawRequest:      []byte(`{"orderNumber":"` + req.OrderNumber + `"}`),
		RawResponse:     []byte(`{"ok":true}`),
	}, nil
}

func (p *partnerStub) OrderStatus(_ context.Context, externalOrderID string) (fulfillment.Status, error) {
	p.checked = append(p.checked, externalOrderID)
	if p.statusErr != nil {
		return fulfillment.Status{}, p.statusErr
	}
	return p.status, nil
}

type emailRecorderStub struct {
	recorded []domain.EmailType
	err      error
}

func (s *emailRecorderStub) Record(_ context.Context, orderID string, emailType domain.EmailType, messageID string) (*domain.SentEmail, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.recorded = append(s.recorded, emailType)
	return &domain.SentEmail{OrderID: orderID, EmailType: emailType, MessageID: messageID}, nil
}

type mailerStub struct {
	reminders []string
	err       error
}

func (m *mailerStub) Receipt(context.Context, *domain.Order) (string, error) { return "msg", nil }

func (m *mailerStub) DeliveryStarted(context.Context, *domain.Order, string) (string, error) {
	return "msg", nil
}

func (m *mailerStub) DeliveryUpdate(context.Context, *domain.Order, string) (string, error) {
	return "msg", nil
}

func (m *mailerStub) DeliveryReminder(_ context.Context, ord *domain.Order) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.reminders = append(m.reminders, ord.PublicID)
	return "msg-reminder", nil
}

func posterOrder(id string, centerLat float64) domain.Order {
	return domain.Order{
		ID:       "uuid-" + id,
		PublicID: id,
		Email:    "a@example.com",
		Currency: "EUR",
		Items: []domain.CartItem{{
			Kind:           domain.ItemMapPoster,
			Quantity:       1,
			UnitPriceCents: 4900,
			Currency:       "EUR",
			Attributes: domain.ItemAttributes{Map: &domain.MapAttributes{
				CenterLat: centerLat,
				CenterLng: 24.9,
				Bounds:    domain.Bounds{North: 61, South: 60, East: 25, West: 24},
			}},
		}},
	}
}

func newTestScheduler(orders *orderRepoStub, partner *partnerStub, emails *emailRecorderStub, m *mailerStub) *Scheduler {
	return New(orders, partner, emails, m, DefaultOptions(), zap.NewNop())
}

func TestRunDispatchesPaidOrders(t *testing.T) {
	orders := &orderRepoStub{
		dispatchable: []domain.Order{posterOrder("1111-2222-3333-4444", 60.2), posterOrder("5555-6666-7777-8888", 60.4)},
	}
	partner := &partnerStub{}
	s := newTestScheduler(orders, partner, &emailRecorderStub{}, &mailerStub{})

	s.Run(context.Background())

	require.Equal(t, []string{"1111-2222-3333-4444", "5555-6666-7777-8888"}, partner.placed)
	require.Equal(t, []string{"uuid-1111-2222-3333-4444", "uuid-5555-6666-7777-8888"}, orders.marked)
	require.Equal(t, []string{"ext-1111-2222-3333-4444", "ext-5555-6666-7777-8888"}, orders.markedExtIDs)
}

func TestRunRejectsInvalidGeometry(t *testing.T) {
	// Center latitude outside the declared bounding box.
	bad := posterOrder("1111-2222-3333-4444", 59.0)
	good := posterOrder("5555-6666-7777-8888", 60.4)
	orders := &orderRepoStub{dispatchable: []domain.Order{bad, good}}
	partner := &partnerStub{}
	s := newTestScheduler(orders, partner, &emailRecorderStub{}, &mailerStub{})

	s.Run(context.Background())

	require.Equal(t, []string{"5555-6666-7777-8888"}, partner.placed)
	require.Equal(t, []string{"uuid-5555-6666-7777-8888"}, orders.marked)
}

func TestRunContinuesPastPartnerFailure(t *testing.T) {
	orders := &orderRepoStub{dispatchable: []domain.Order{posterOrder("1111-2222-3333-4444", 60.2)}}
	partner := &partnerStub{placeErr: errors.New("partner down")}
	s := newTestScheduler(orders, partner, &emailRecorderStub{}, &mailerStub{})

	s.Run(context.Background())

	require.Empty(t, orders.marked)
}

func TestRunDoesNotMarkOnPlaceError(t *testing.T) {
	orders := &orderRepoStub{
		dispatchable: []domain.Order{posterOrder("1111-2222-3333-4444", 60.2)},
		markErr:      domain.ErrNotFound,
	}
	partner := &partnerStub{}
	s := newTestScheduler(orders, partner, &emailRecorderStub{}, &mailerStub{})

	// Mark failure is logged and the round still completes.
	s.Run(context.Background())

	require.Equal(t, []string{"1111-2222-3333-4444"}, partner.placed)
}

func staleOrder(id string, dispatchedBusinessDaysAgo int, now time.Time) domain.Order {
	ord := posterOrder(id, 60.2)
	dispatched := now
	for days := 0; days < dispatchedBusinessDaysAgo; {
		dispatched = dispatched.Add(-24 * time.Hour)
		switch dispatched.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			days++
		}
	}
	ext := "ext-" + id
	ord.DispatchedAt = &dispatched
	ord.ExternalOrderID = &ext
	return ord
}

func TestStalenessScanFlagsOverdueOrder(t *testing.T) {
	now := date(2026, time.August, 19)
	orders := &orderRepoStub{dispatched: []domain.Order{staleOrder("1111-2222-3333-4444", 7, now)}}
	partner := &partnerStub{status: fulfillment.Status{State: "IN_PRODUCTION"}}
	emails := &emailRecorderStub{}
	m := &mailerStub{}
	s := newTestScheduler(orders, partner, emails, m)
	s.now = func() time.Time { return now }

	s.Run(context.Background())

	require.Equal(t, []string{"ext-1111-2222-3333-4444"}, partner.checked)
	require.Equal(t, []string{"1111-2222-3333-4444"}, m.reminders)
	require.Equal(t, []domain.EmailType{domain.EmailDeliveryReminder}, emails.recorded)
}

func TestStalenessScanSkipsRecentOrder(t *testing.T) {
	now := date(2026, time.August, 19)
	orders := &orderRepoStub{dispatched: []domain.Order{staleOrder("1111-2222-3333-4444", 3, now)}}
	partner := &partnerStub{status: fulfillment.Status{State: "IN_PRODUCTION"}}
	m := &mailerStub{}
	s := newTestScheduler(orders, partner, &emailRecorderStub{}, m)
	s.now = func() time.Time { return now }

	s.Run(context.Background())

	require.Empty(t, partner.checked)
	require.Empty(t, m.reminders)
}

func TestStalenessScanTrustsTerminalLiveStatus(t *testing.T) {
	now := date(2026, time.August, 19)
	orders := &orderRepoStub{dispatched: []domain.Order{staleOrder("1111-2222-3333-4444", 7, now)}}
	partner := &partnerStub{status: fulfillment.Status{State: "DELIVERED", TrackingLink: "https://track.example/1"}}
	emails := &emailRecorderStub{}
	m := &mailerStub{}
	s := newTestScheduler(orders, partner, emails, m)
	s.now = func() time.Time { return now }

	s.Run(context.Background())

	require.Equal(t, []string{"ext-1111-2222-3333-4444"}, partner.checked)
	require.Empty(t, m.reminders)
	require.Empty(t, emails.recorded)
}

func TestStalenessScanSkipsOnStatusError(t *testing.T) {
	now := date(2026, time.August, 19)
	orders := &orderRepoStub{dispatched: []domain.Order{staleOrder("1111-2222-3333-4444", 7, now)}}
	partner := &partnerStub{statusErr: errors.New("partner api down")}
	m := &mailerStub{}
	s := newTestScheduler(orders, partner, &emailRecorderStub{}, m)
	s.now = func() time.Time { return now }

	s.Run(context.Background())

	require.Empty(t, m.reminders)
}
