// Command pubflow-mock runs a local PubFlow backend with the auth and
// bridge endpoints, for developing against the client SDK.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/pubflow/pubflow-go/internal/mockapi"
	"github.com/pubflow/pubflow-go/internal/telemetry"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := mockapi.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	ctx := context.Background()
	provider, err := telemetry.Init(ctx, telemetry.NewConfigFromEnv())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize telemetry")
	}
	telemetry.InstallGlobal(provider.TracerProvider)
	logger := provider.Logger

	var store mockapi.RecordStore
	switch cfg.Store {
	case mockapi.StorePostgres:
		pg, err := mockapi.NewPostgresRecordStore(ctx, cfg.Postgres)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to PostgreSQL")
		}
		defer pg.Close()
		store = pg
		logger.WithField("host", cfg.Postgres.Host).Info("Connected to PostgreSQL")
	default:
		store = mockapi.NewMemoryRecordStore()
	}

	server := mockapi.New(cfg, store, provider)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	if cfg.SweepInterval > 0 {
		go server.Sessions().RunSweeper(sweepCtx, cfg.SweepInterval, logger)
	}

	// Handle graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gracefully...")
		stopSweeper()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Server forced to shutdown")
		}
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("Failed to flush telemetry")
		}
	}()

	logger.WithFields(logrus.Fields{
		"store":           cfg.Store,
		"requireSession":  cfg.RequireSession,
		"rateLimit":       cfg.RateLimit,
		"sessionTTL":      cfg.SessionTTL.String(),
		"metricsEndpoint": cfg.MetricsPath,
	}).Info("PubFlow mock API starting")

	if err := server.Listen(); err != nil {
		logger.WithError(err).Fatal("Failed to start server")
	}
	<-done
}
