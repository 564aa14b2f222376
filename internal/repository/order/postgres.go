package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"posterlab/internal/domain"
)

// paidExpr computes outstanding-is-covered from the ledger. Kept as a single
// expression so every selection query agrees on what "paid" means.
const paidExpr = `COALESCE((
	SELECT SUM(CASE WHEN p.type = 'CHARGE' THEN p.amount_cents ELSE -p.amount_cents END)
	FROM payments p WHERE p.order_id = o.id
), 0)`

const orderColumns = `o.id::text, o.public_id, o.email, o.currency, o.price_cents, o.promotion_code, o.created_at, o.dispatched_at, o.external_order_id`

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) ExistsByPublicID(ctx context.Context, publicID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE public_id = $1)`, publicID).Scan(&exists)
	return exists, err
}

func (r *postgresRepo) Create(ctx context.Context, in CreateInput) (*domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var ord domain.Order
	err = tx.QueryRow(ctx, `
INSERT INTO orders (public_id, email, currency, price_cents, promotion_code)
VALUES ($1, $2, $3, $4, $5)
RETURNING id::text, public_id, email, currency, price_cents, promotion_code, created_at
`, in.PublicID, in.Email, in.Currency, in.PriceCents, in.PromotionCode).Scan(
		&ord.ID, &ord.PublicID, &ord.Email, &ord.Currency, &ord.PriceCents, &ord.PromotionCode, &ord.CreatedAt,
	)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}

	for i, item := range in.Items {
		attrs, err := json.Marshal(item.Attributes)
		if err != nil {
			return nil, fmt.Errorf("marshal item attributes: %w", err)
		}
		var stored domain.CartItem
		err = tx.QueryRow(ctx, `
INSERT INTO cart_items (order_id, kind, quantity, unit_price_cents, currency, position, attributes)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id::text, created_at
`, ord.ID, item.Kind, item.Quantity, item.UnitPriceCents, item.Currency, i, attrs).Scan(&stored.ID, &stored.CreatedAt)
		if err != nil {
			return nil, err
		}
		stored.OrderID = ord.ID
		stored.Kind = item.Kind
		stored.Quantity = item.Quantity
		stored.UnitPriceCents = item.UnitPriceCents
		stored.Currency = item.Currency
		stored.Position = i
		stored.Attributes = item.Attributes
		ord.Items = append(ord.Items, stored)
	}

	if in.ShippingAddress != nil {
		addr, err := insertAddress(ctx, tx, ord.ID, domain.AddressShipping, *in.ShippingAddress)
		if err != nil {
			return nil, err
		}
		ord.ShippingAddress = addr
	}
	if in.BillingAddress != nil {
		addr, err := insertAddress(ctx, tx, ord.ID, domain.AddressBilling, *in.BillingAddress)
		if err != nil {
			return nil, err
		}
		ord.BillingAddress = addr
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapUniqueViolation(err)
	}
	return &ord, nil
}

func insertAddress(ctx context.Context, tx pgx.Tx, orderID string, kind domain.AddressKind, a domain.Address) (*domain.Address, error) {
	a.OrderID = orderID
	a.Kind = kind
	err := tx.QueryRow(ctx, `
INSERT INTO addresses (order_id, kind, first_name, last_name, line1, line2, city, postal_code, country)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id::text
`, orderID, kind, a.FirstName, a.LastName, a.Line1, a.Line2, a.City, a.PostalCode, a.Country).Scan(&a.ID)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// mapUniqueViolation turns a public_id constraint violation into the typed
// error the checkout layer treats as a race rather than an infrastructure
// failure.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "orders_public_id_key" {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateOrderID, pgErr.Detail)
	}
	return err
}

func (r *postgresRepo) GetByPublicID(ctx context.Context, publicID string) (*domain.Order, error) {
	return r.fetchOne(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.public_id = $1`, publicID)
}

func (r *postgresRepo) GetByExternalOrderID(ctx context.Context, externalOrderID string) (*domain.Order, error) {
	return r.fetchOne(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.external_order_id = $1`, externalOrderID)
}

func (r *postgresRepo) fetchOne(ctx context.Context, query string, args ...interface{}) (*domain.Order, error) {
	ord, err := scanOrder(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := r.loadDetails(ctx, ord); err != nil {
		return nil, err
	}
	return ord, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var ord domain.Order
	err := row.Scan(
		&ord.ID, &ord.PublicID, &ord.Email, &ord.Currency, &ord.PriceCents,
		&ord.PromotionCode, &ord.CreatedAt, &ord.DispatchedAt, &ord.ExternalOrderID,
	)
	if err != nil {
		return nil, err
	}
	return &ord, nil
}

func (r *postgresRepo) loadDetails(ctx context.Context, ord *domain.Order) error {
	rows, err := r.pool.Query(ctx, `
SELECT id::text, kind, quantity, unit_price_cents, currency, position, attributes, created_at
FROM cart_items WHERE order_id = $1 ORDER BY position ASC
`, ord.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.CartItem
		var attrs []byte
		if err := rows.Scan(&item.ID, &item.Kind, &item.Quantity, &item.UnitPriceCents, &item.Currency, &item.Position, &attrs, &item.CreatedAt); err != nil {
			return err
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &item.Attributes); err != nil {
				return fmt.Errorf("unmarshal item attributes: %w", err)
			}
		}
		item.OrderID = ord.ID
		ord.Items = append(ord.Items, item)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	addrRows, err := r.pool.Query(ctx, `
SELECT id::text, kind, first_name, last_name, line1, line2, city, postal_code, country
FROM addresses WHERE order_id = $1
`, ord.ID)
	if err != nil {
		return err
	}
	defer addrRows.Close()
	for addrRows.Next() {
		var a domain.Address
		if err := addrRows.Scan(&a.ID, &a.Kind, &a.FirstName, &a.LastName, &a.Line1, &a.Line2, &a.City, &a.PostalCode, &a.Country); err != nil {
			return err
		}
		a.OrderID = ord.ID
		switch a.Kind {
		case domain.AddressShipping:
			addr := a
			ord.ShippingAddress = &addr
		case domain.AddressBilling:
			addr := a
			ord.BillingAddress = &addr
		}
	}
	if err := addrRows.Err(); err != nil {
		return err
	}

	payRows, err := r.pool.Query(ctx, `
SELECT id::text, type, amount_cents, currency, provider, provider_method, external_ref, promotion_code, created_at
FROM payments WHERE order_id = $1 ORDER BY created_at ASC
`, ord.ID)
	if err != nil {
		return err
	}
	defer payRows.Close()
	for payRows.Next() {
		var p domain.Payment
		if err := payRows.Scan(&p.ID, &p.Type, &p.AmountCents, &p.Currency, &p.Provider, &p.ProviderMethod, &p.ExternalRef, &p.PromotionCode, &p.CreatedAt); err != nil {
			return err
		}
		p.OrderID = ord.ID
		ord.Payments = append(ord.Payments, p)
	}
	if err := payRows.Err(); err != nil {
		return err
	}

	evtRows, err := r.pool.Query(ctx, `
SELECT id, source, event_type, external_id, payload, created_at
FROM order_events WHERE order_id = $1 ORDER BY created_at ASC, id ASC
`, ord.ID)
	if err != nil {
		return err
	}
	defer evtRows.Close()
	for evtRows.Next() {
		var e domain.OrderEvent
		var payload []byte
		if err := evtRows.Scan(&e.ID, &e.Source, &e.EventType, &e.ExternalID, &payload, &e.CreatedAt); err != nil {
			return err
		}
		e.OrderID = ord.ID
		e.Payload = payload
		ord.Events = append(ord.Events, e)
	}
	return evtRows.Err()
}

func (r *postgresRepo) ListDispatchable(ctx context.Context, createdBefore time.Time) ([]domain.Order, error) {
	return r.listWithDetails(ctx, `
SELECT `+orderColumns+`
FROM orders o
WHERE o.dispatched_at IS NULL
  AND o.created_at < $1
  AND `+paidExpr+` >= o.price_cents
ORDER BY o.created_at ASC
`, createdBefore)
}

func (r *postgresRepo) ListPartiallyPaid(ctx context.Context, createdBefore time.Time) ([]domain.Order, error) {
	return r.listWithDetails(ctx, `
SELECT `+orderColumns+`
FROM orders o
WHERE o.dispatched_at IS NULL
  AND o.created_at < $1
  AND `+paidExpr+` > 0
  AND `+paidExpr+` < o.price_cents
ORDER BY o.created_at ASC
`, createdBefore)
}

// DeleteUnpaidBefore hard-deletes orders past the retention window with zero
// ledger rows. Partially paid orders never match: they are reported by the
// audit pass instead.
func (r *postgresRepo) DeleteUnpaidBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `
DELETE FROM orders o
WHERE o.dispatched_at IS NULL
  AND o.created_at < $1
  AND o.price_cents > 0
  AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.order_id = o.id)
`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// ListDispatchedBetween selects dispatched orders in the window that have
// neither a terminal delivery event nor an already-sent delivery reminder.
// Business-day filtering happens in the scheduler.
func (r *postgresRepo) ListDispatchedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	return r.listWithDetails(ctx, `
SELECT `+orderColumns+`
FROM orders o
WHERE o.dispatched_at IS NOT NULL
  AND o.dispatched_at >= $1
  AND o.dispatched_at <= $2
  AND NOT EXISTS (
	SELECT 1 FROM order_events e
	WHERE e.order_id = o.id AND e.event_type IN ('USER_ORDER_DELIVERED', 'USER_ORDER_CANCELLED')
  )
  AND NOT EXISTS (
	SELECT 1 FROM sent_emails s
	WHERE s.order_id = o.id AND s.email_type = 'DELIVERY_REMINDER'
  )
ORDER BY o.dispatched_at ASC
`, from, to)
}

func (r *postgresRepo) listWithDetails(ctx context.Context, query string, args ...interface{}) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Order
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ord)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		if err := r.loadDetails(ctx, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *postgresRepo) MarkDispatched(ctx context.Context, orderID, externalOrderID string, audit []byte) error {
	cmd, err := r.pool.Exec(ctx, `
UPDATE orders
SET dispatched_at = now(), external_order_id = $2, dispatch_payload = $3
WHERE id = $1 AND dispatched_at IS NULL
`, orderID, externalOrderID, audit)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	r.logger.Info("order dispatched", zap.String("order_id", orderID), zap.String("external_order_id", externalOrderID))
	return nil
}
