package promotion

import (
	"context"

	"posterlab/internal/domain"
)

type Repository interface {
	GetByCode(ctx context.Context, code string) (*domain.Promotion, error)
}
