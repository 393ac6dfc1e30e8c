package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	openaiadapter "github.com/ericfisherdev/aibroker/internal/adapter/driven/openai"
	sqliteadapter "github.com/ericfisherdev/aibroker/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/aibroker/internal/adapter/driving/http"
	"github.com/ericfisherdev/aibroker/internal/application"
	"github.com/ericfisherdev/aibroker/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"provider_timeout", cfg.ProviderTimeout,
		"reset_schedule", cfg.ResetSchedule,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	credStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	quotaLedger := sqliteadapter.NewQuotaRepo(db)
	usageLog := sqliteadapter.NewUsageLogRepo(db)
	provider := openaiadapter.NewClient(cfg.ProviderTimeout, slog.Default())

	// 6. Load trust policy. Built-in defaults apply unless a policy file
	// overrides them; SIGHUP reloads the file without a restart.
	policy := application.DefaultTrustPolicy()
	if cfg.PolicyPath != "" {
		if err := policy.LoadFile(cfg.PolicyPath); err != nil {
			return err
		}
		slog.Info("trust policy loaded", "path", cfg.PolicyPath)

		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		go func() {
			for range hup {
				if err := policy.LoadFile(cfg.PolicyPath); err != nil {
					slog.Error("trust policy reload failed", "path", cfg.PolicyPath, "error", err)
					continue
				}
				slog.Info("trust policy reloaded", "path", cfg.PolicyPath)
			}
		}()
	}

	// 7. Wire application services.
	pool := application.NewPoolService(credStore, usageLog, slog.Default())
	dispatchSvc := application.NewDispatchService(quotaLedger, pool, policy, provider, slog.Default())

	// 7b. Start the daily reset sweep.
	resetSvc := application.NewResetService(pool, quotaLedger, cfg.ResetSchedule, cfg.QuotaRetentionDays, slog.Default())
	if err := resetSvc.Start(); err != nil {
		return err
	}
	defer resetSvc.Stop()

	// 8. Create HTTP handler and register routes.
	apiHandler := httphandler.NewHandler(credStore, provider, pool, dispatchSvc, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, cfg.JWTSecret, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	// 9. Log startup complete.
	slog.Info("aibroker started", "listen_addr", cfg.ListenAddr)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 11. Graceful shutdown: drain in-flight dispatches before exit.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
