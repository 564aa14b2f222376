// Package failsafe is the last-resort durable capture of orders that failed
// mid-transaction. It must never block or fail the customer-facing path.
package failsafe

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"posterlab/internal/repository/order"
	"posterlab/internal/retry"
)

type snapshotStore interface {
	InsertFailedOrder(ctx context.Context, email string, snapshot []byte, cause string) error
}

type Recorder struct {
	store  snapshotStore
	logger *zap.Logger
	policy retry.Policy
}

func New(store snapshotStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger, policy: retry.Default()}
}

// Record persists the attempted order and its failure cause under capped
// backoff. On exhaustion it degrades to logging the contact email only: the
// full snapshot is lost, but payment and cart detail never reach the log and
// the caller is never blocked.
func (r *Recorder) Record(ctx context.Context, in order.CreateInput, cause error) {
	snapshot, err := json.Marshal(in)
	if err != nil {
		r.logger.Error("failed order unrecoverable, snapshot not serializable",
			zap.String("alert", "permanent"),
			zap.String("customer_email", in.Email),
		)
		return
	}

	policy := r.policy
	policy.OnExhausted = func(lastErr error) {
		// Deliberately log only the contact email. No payment details.
		r.logger.Error("failed order could not be persisted, manual follow-up required",
			zap.String("alert", "permanent"),
			zap.String("customer_email", in.Email),
			zap.Error(lastErr),
		)
	}

	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		return r.store.InsertFailedOrder(ctx, in.Email, snapshot, cause.Error())
	})
	if err == nil {
		r.logger.Warn("failed order snapshot recorded",
			zap.String("public_order_id", in.PublicID),
			zap.String("cause", cause.Error()),
		)
	}
}
