package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hostinventory/core-go/internal/agentapi"
	"hostinventory/core-go/internal/config"
	"hostinventory/core-go/internal/db"
	"hostinventory/core-go/internal/httpapi"
	"hostinventory/core-go/internal/metrics"
	"hostinventory/core-go/internal/notify"
	"hostinventory/core-go/internal/secrets"
	"hostinventory/core-go/internal/sqlcgen"
	"hostinventory/core-go/internal/syncworker"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		// The configured level is unknown until the config loads.
		bootLogger := httpapi.NewLogger("info")
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := httpapi.NewLogger(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *db.Pool
	if cfg.Database.URL != "" {
		p, err := db.Open(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer p.Close()
		pool = p
	}

	m := metrics.New()

	// Left as a nil interface when sync is off so the API reports sync_disabled.
	var engine httpapi.SyncEngine
	if pool != nil && cfg.Sync.Enabled {
		opts := syncworker.Options{
			Interval:      cfg.Sync.Interval,
			InitialDelay:  cfg.Sync.InitialDelay,
			Workers:       cfg.Sync.Workers,
			FanoutTimeout: cfg.Sync.FanoutTimeout,
			Notifier:      notify.NewLogNotifier(logger),
		}
		if cfg.Secrets.EncryptionKey != "" {
			c, err := secrets.NewCipher(cfg.Secrets.EncryptionKey)
			if err != nil {
				logger.Fatal().Err(err).Msg("invalid encryption key")
			}
			opts.Decrypter = c
		}

		api := agentapi.NewClient(agentapi.Config{
			BaseURL:   cfg.AgentAPI.URL,
			Timeout:   cfg.AgentAPI.Timeout,
			RateLimit: cfg.AgentAPI.RateLimit,
			Burst:     cfg.AgentAPI.Burst,
		})
		worker := syncworker.New(logger, pool.Queries(), txRunner(pool), api, opts, m)

		if _, err := worker.BackfillMotherboard(ctx); err != nil {
			logger.Warn().Err(err).Msg("motherboard backfill failed")
		}

		go worker.Run(ctx)
		engine = worker
	} else {
		logger.Warn().Bool("database", pool != nil).Bool("sync_enabled", cfg.Sync.Enabled).Msg("sync engine not started")
	}

	h := httpapi.NewHandler(logger, pool, engine, m)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("inventory-sync listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}

func txRunner(pool *db.Pool) syncworker.TxRunner {
	return func(ctx context.Context, fn func(q syncworker.Queries) error) error {
		return pool.InTx(ctx, func(q *sqlcgen.Queries) error {
			return fn(q)
		})
	}
}
