package email

import (
	"context"

	"posterlab/internal/domain"
)

// Tx is the slice of the repository visible while a per-order lock is held.
type Tx interface {
	History(ctx context.Context, orderID string) ([]domain.SentEmail, error)
	Record(ctx context.Context, orderID string, emailType domain.EmailType, messageID string) (*domain.SentEmail, error)
}

type Repository interface {
	History(ctx context.Context, orderID string) ([]domain.SentEmail, error)
	Record(ctx context.Context, orderID string, emailType domain.EmailType, messageID string) (*domain.SentEmail, error)

	// WithOrderLock runs fn inside a transaction holding a per-order advisory
	// lock. Concurrent deliveries of the same webhook serialize here, which is
	// what makes the read-then-decide-then-write email capping safe.
	WithOrderLock(ctx context.Context, orderID string, fn func(ctx context.Context, tx Tx) error) error
}
