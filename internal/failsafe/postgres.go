package failsafe

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *postgresStore {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) InsertFailedOrder(ctx context.Context, email string, snapshot []byte, cause string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO failed_orders (email, snapshot, cause)
VALUES ($1, $2, $3)
`, email, snapshot, cause)
	return err
}
