// The worker runs the dispatch scheduler on a fixed interval: handing paid
// orders to the manufacturing partner, auditing partial payments, deleting
// stale unpaid orders and flagging overdue deliveries.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"posterlab/internal/config"
	"posterlab/internal/db"
	"posterlab/internal/fulfillment"
	"posterlab/internal/mailer"
	emailrepo "posterlab/internal/repository/email"
	orderrepo "posterlab/internal/repository/order"
	dispatchsvc "posterlab/internal/service/dispatch"
)

func main() {
	cfg := config.FromEnv()
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer dbpool.Close()

	orderRepo := orderrepo.NewPostgres(dbpool, logger)
	emailRepo := emailrepo.NewPostgres(dbpool)
	partner := fulfillment.NewHTTPClient(cfg.FulfillmentAPIURL, cfg.FulfillmentAPIKey, logger)
	mail := mailer.NewLogMailer(logger)

	opts := dispatchsvc.DefaultOptions()
	opts.GracePeriod = cfg.DispatchGracePeriod
	opts.Retention = cfg.UnpaidRetention
	scheduler := dispatchsvc.New(orderRepo, partner, emailRepo, mail, opts, logger)

	logger.Info("dispatch worker started", zap.Duration("interval", cfg.DispatchInterval))

	ticker := time.NewTicker(cfg.DispatchInterval)
	defer ticker.Stop()

	// One round immediately on boot, then on every tick. Rounds never overlap.
	scheduler.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("dispatch worker stopped")
			return
		case <-ticker.C:
			scheduler.Run(ctx)
		}
	}
}
