package email

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"posterlab/internal/domain"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func history(ctx context.Context, q querier, orderID string) ([]domain.SentEmail, error) {
	rows, err := q.Query(ctx, `
SELECT id::text, email_type, message_id, created_at
FROM sent_emails WHERE order_id = $1 ORDER BY created_at ASC
`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SentEmail
	for rows.Next() {
		var e domain.SentEmail
		if err := rows.Scan(&e.ID, &e.EmailType, &e.MessageID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.OrderID = orderID
		result = append(result, e)
	}
	return result, rows.Err()
}

func record(ctx context.Context, q querier, orderID string, emailType domain.EmailType, messageID string) (*domain.SentEmail, error) {
	if !emailType.Valid() {
		return nil, fmt.Errorf("%w: email type %q", domain.ErrUnknownEnumValue, emailType)
	}
	e := domain.SentEmail{OrderID: orderID, EmailType: emailType, MessageID: messageID}
	err := q.QueryRow(ctx, `
INSERT INTO sent_emails (order_id, email_type, message_id)
VALUES ($1, $2, $3)
RETURNING id::text, created_at
`, orderID, emailType, messageID).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *postgresRepo) History(ctx context.Context, orderID string) ([]domain.SentEmail, error) {
	return history(ctx, r.pool, orderID)
}

func (r *postgresRepo) Record(ctx context.Context, orderID string, emailType domain.EmailType, messageID string) (*domain.SentEmail, error) {
	return record(ctx, r.pool, orderID, emailType, messageID)
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) History(ctx context.Context, orderID string) ([]domain.SentEmail, error) {
	return history(ctx, t.tx, orderID)
}

func (t *txRepo) Record(ctx context.Context, orderID string, emailType domain.EmailType, messageID string) (*domain.SentEmail, error) {
	return record(ctx, t.tx, orderID, emailType, messageID)
}

func (r *postgresRepo) WithOrderLock(ctx context.Context, orderID string, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Transaction-scoped advisory lock; released automatically at
	// commit/rollback.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, orderID); err != nil {
		return err
	}

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
