package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zonegate/server/internal/config"
	"github.com/zonegate/server/internal/db"
	"github.com/zonegate/server/internal/gate/service"
	"github.com/zonegate/server/internal/httpapi"
	"github.com/zonegate/server/internal/otel"

	_ "modernc.org/sqlite"

	"github.com/zonegate/server/internal/gate/store/sqlite"
)

func main() {
	logger := log.New(os.Stdout, "gate-server ", log.LstdFlags|log.LUTC)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := otel.Setup(ctx, "gate-server", cfg.OTELEndpoint)
	if err != nil {
		logger.Fatalf("otel setup: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		logger.Fatalf("db open: %v", err)
	}
	defer conn.Close()

	if cfg.Env == "dev" {
		if err := db.SeedDev(ctx, conn); err != nil {
			logger.Fatalf("dev seed: %v", err)
		}
		logger.Printf("dev topology seeded")
	}

	writer := db.NewWorker(conn)
	defer writer.Close()

	// Stores
	directory := sqlite.NewDirectoryStore(conn, writer)
	states := sqlite.NewZoneStateStore(conn, writer)
	nonces := sqlite.NewNonceStore(conn, writer)
	events := sqlite.NewEventStore(conn, writer)
	denialStore := sqlite.NewDenialStore(conn, writer)
	keys := sqlite.NewKeyStore(conn, writer)

	// Services
	metrics := service.NewMetrics()

	var notifier service.Notifier
	if cfg.NotifyDenials {
		notifier = service.NewLogNotifier(logger)
	}
	denials := service.NewDenialRecorder(denialStore, notifier, metrics, logger)

	replay := service.NewReplayGuard(nonces, service.ReplayGuardConfig{
		MaxSkew:  time.Duration(cfg.MaxSkewSeconds) * time.Second,
		NonceTTL: time.Duration(cfg.NonceTTLSeconds) * time.Second,
	}, logger)
	signatures := service.NewSignatureVerifier(keys, logger)
	tokens := service.NewTokenVerifier(keys, logger)
	policy := service.NewPolicyEvaluator(directory)
	coordinator := service.NewTransitionCoordinator(
		directory, policy, states, events, denials, metrics,
		service.CoordinatorConfig{MaxAttempts: cfg.StateMaxAttempts}, logger,
	)
	ingest := service.NewIngest(replay, signatures, tokens, coordinator, denials, logger)

	reaper := service.NewNonceReaper(nonces, service.ReaperConfig{
		IntervalHours: cfg.ReapIntervalHours,
	}, logger)
	reaper.Start(ctx)
	defer reaper.Stop()

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:    logger,
		Addr:      cfg.HTTPAddr,
		Ingest:    ingest,
		Directory: directory,
		States:    states,
		Events:    events,
		Denials:   denialStore,
		Keys:      keys,
	})

	go func() {
		logger.Printf("listening on %s (env=%s)", cfg.HTTPAddr, cfg.Env)
		if err := srv.Start(); err != nil {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
