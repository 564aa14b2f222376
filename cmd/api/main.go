package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"posterlab/internal/config"
	"posterlab/internal/db"
	"posterlab/internal/failsafe"
	"posterlab/internal/httpserver"
	"posterlab/internal/mailer"
	"posterlab/internal/orderid"
	"posterlab/internal/payments"
	"posterlab/internal/pricing"
	emailrepo "posterlab/internal/repository/email"
	ledgerrepo "posterlab/internal/repository/ledger"
	orderrepo "posterlab/internal/repository/order"
	promotionrepo "posterlab/internal/repository/promotion"
	checkoutsvc "posterlab/internal/service/checkout"
	fulfillhooksvc "posterlab/internal/service/fulfillhook"
	paymenthooksvc "posterlab/internal/service/paymenthook"
)

func main() {
	cfg := config.FromEnv()
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer dbpool.Close()

	orderRepo := orderrepo.NewPostgres(dbpool, logger)
	ledgerRepo := ledgerrepo.NewPostgres(dbpool, logger)
	emailRepo := emailrepo.NewPostgres(dbpool)
	promotionRepo := promotionrepo.NewPostgres(dbpool)

	reconciler := pricing.New(pricing.DefaultLimits())
	idgen := orderid.New(orderRepo, logger)
	recorder := failsafe.New(failsafe.NewPostgresStore(dbpool), logger)
	mail := mailer.NewLogMailer(logger)

	provider, err := payments.NewStripeProvider(cfg.StripeAPIKey, logger)
	if err != nil {
		logger.Fatal("init payment provider", zap.Error(err))
	}

	checkoutService := checkoutsvc.New(orderRepo, promotionRepo, idgen, reconciler, recorder, provider, logger)
	paymentProcessor := paymenthooksvc.New(orderRepo, ledgerRepo, promotionRepo, reconciler, mail, emailRepo, cfg.AllowTestEvents, logger)
	fulfillmentProcessor := fulfillhooksvc.New(fulfillhooksvc.Config{
		Secret:       []byte(cfg.FulfillmentWebhookSecret),
		SignatureOff: cfg.FulfillmentSignatureOff,
	}, orderRepo, ledgerRepo, emailRepo, mail, logger)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, dbpool, httpserver.Deps{
		Checkout:            checkoutService,
		Payments:            paymentProcessor,
		Fulfillment:         fulfillmentProcessor,
		StripeWebhookSecret: cfg.StripeWebhookSecret,
		AdminToken:          cfg.AdminToken,
		CORSAllowOrigins:    cfg.CORSAllowOrigins,
	})
	if err != nil {
		logger.Fatal("init server", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("server stopped")
	}
}
