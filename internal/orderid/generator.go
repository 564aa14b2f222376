// Package orderid produces collision-checked human-readable order identifiers
// in the NNNN-NNNN-NNNN-NNNN format.
package orderid

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"posterlab/internal/retry"
)

// existenceChecker is the narrow slice of the order repository the generator
// needs. The probe and the later insert are intentionally not atomic; the
// orders.public_id unique constraint converts the residual race into a
// detectable insert failure.
type existenceChecker interface {
	ExistsByPublicID(ctx context.Context, publicID string) (bool, error)
}

type Generator struct {
	repo   existenceChecker
	logger *zap.Logger
	policy retry.Policy
	// randDigits is swappable for tests.
	randDigits func() string
}

func New(repo existenceChecker, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		repo:       repo,
		logger:     logger,
		policy:     retry.Default(),
		randDigits: randomID,
	}
}

// Generate draws random ids until one is unused, retrying with capped backoff.
// After 20 taken ids in a row it gives up with domain.ErrRetriesExhausted.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	var id string
	errTaken := errors.New("id taken")

	err := retry.Do(ctx, g.policy, func(ctx context.Context) error {
		candidate := g.randDigits()
		exists, err := g.repo.ExistsByPublicID(ctx, candidate)
		if err != nil {
			return err
		}
		if exists {
			g.logger.Warn("order id collision, retrying", zap.String("order_id", candidate))
			return errTaken
		}
		id = candidate
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func randomID() string {
	return fmt.Sprintf("%04d-%04d-%04d-%04d",
		rand.Intn(10000), rand.Intn(10000), rand.Intn(10000), rand.Intn(10000))
}
