package ledger

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"posterlab/internal/domain"
)

// querier is satisfied by both the pool and a pgx transaction, so the same
// statements serve standalone appends and tx-scoped ones.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	now    func() time.Time
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresRepo{pool: pool, logger: logger, now: time.Now}
}

func (r *postgresRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pgtx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer pgtx.Rollback(ctx)

	if err := fn(ctx, &ledgerTx{q: pgtx, logger: r.logger, now: r.now}); err != nil {
		return err
	}
	return pgtx.Commit(ctx)
}

func (r *postgresRepo) CreatePayment(ctx context.Context, orderID string, in NewPayment) (*domain.Payment, error) {
	payments, err := r.CreatePayments(ctx, orderID, []NewPayment{in})
	if err != nil {
		return nil, err
	}
	return &payments[0], nil
}

func (r *postgresRepo) CreatePayments(ctx context.Context, orderID string, ins []NewPayment) ([]domain.Payment, error) {
	var result []domain.Payment
	err := r.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		result, err = tx.CreatePayments(ctx, orderID, ins)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *postgresRepo) CreateOrderEvent(ctx context.Context, orderID string, in NewEvent) (*domain.OrderEvent, bool, error) {
	tx := &ledgerTx{q: r.pool, logger: r.logger, now: r.now}
	return tx.CreateOrderEvent(ctx, orderID, in)
}

// ledgerTx runs the append statements over the pool or a transaction.
type ledgerTx struct {
	q      querier
	logger *zap.Logger
	now    func() time.Time
}

func validate(in NewPayment) error {
	if !in.Type.Valid() {
		return fmt.Errorf("%w: payment type %q", domain.ErrUnknownEnumValue, in.Type)
	}
	if !in.Provider.Valid() {
		return fmt.Errorf("%w: provider %q", domain.ErrUnknownEnumValue, in.Provider)
	}
	if !in.ProviderMethod.Valid() {
		return fmt.Errorf("%w: provider method %q", domain.ErrUnknownEnumValue, in.ProviderMethod)
	}
	return nil
}

func (t *ledgerTx) CreatePayment(ctx context.Context, orderID string, in NewPayment) (*domain.Payment, error) {
	payments, err := t.CreatePayments(ctx, orderID, []NewPayment{in})
	if err != nil {
		return nil, err
	}
	return &payments[0], nil
}

func (t *ledgerTx) CreatePayments(ctx context.Context, orderID string, ins []NewPayment) ([]domain.Payment, error) {
	if len(ins) == 0 {
		return nil, errors.New("no payments to record")
	}
	for _, in := range ins {
		if err := validate(in); err != nil {
			return nil, err
		}
	}

	result := make([]domain.Payment, 0, len(ins))
	for _, in := range ins {
		var p domain.Payment
		err := t.q.QueryRow(ctx, `
INSERT INTO payments (order_id, type, amount_cents, currency, provider, provider_method, external_ref, promotion_code)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id::text, created_at
`, orderID, in.Type, in.AmountCents, in.Currency, in.Provider, in.ProviderMethod, in.ExternalRef, in.PromotionCode).Scan(&p.ID, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		p.OrderID = orderID
		p.Type = in.Type
		p.AmountCents = in.AmountCents
		p.Currency = in.Currency
		p.Provider = in.Provider
		p.ProviderMethod = in.ProviderMethod
		p.ExternalRef = in.ExternalRef
		p.PromotionCode = in.PromotionCode
		result = append(result, p)

		t.logger.Info("ledger row appended",
			zap.String("order_id", orderID),
			zap.String("type", string(in.Type)),
			zap.Int64("amount_cents", in.AmountCents),
			zap.String("provider", string(in.Provider)),
		)
	}
	return result, nil
}

func (t *ledgerTx) CreateOrderEvent(ctx context.Context, orderID string, in NewEvent) (*domain.OrderEvent, bool, error) {
	if !in.Source.Valid() {
		return nil, false, fmt.Errorf("%w: event source %q", domain.ErrUnknownEnumValue, in.Source)
	}

	evt := domain.OrderEvent{
		ID:         ulid.MustNew(ulid.Timestamp(t.now()), rand.Reader).String(),
		OrderID:    orderID,
		Source:     in.Source,
		EventType:  in.EventType,
		ExternalID: in.ExternalID,
		Payload:    in.Payload,
	}
	payload := in.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	err := t.q.QueryRow(ctx, `
INSERT INTO order_events (id, order_id, source, event_type, external_id, payload)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (external_id) WHERE external_id <> '' DO NOTHING
RETURNING created_at
`, evt.ID, orderID, in.Source, in.EventType, in.ExternalID, payload).Scan(&evt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			t.logger.Info("duplicate external event, skipping",
				zap.String("order_id", orderID),
				zap.String("external_id", in.ExternalID),
			)
			return nil, true, nil
		}
		return nil, false, err
	}
	return &evt, false, nil
}
