// Command server runs the casegate case/lead-management API.
//
// Configuration is layered: built-in defaults, an optional YAML config
// file (-config flag, CASEGATE_CONFIG, ./config.yaml, or
// /etc/casegate/config.yaml), then CASEGATE_* environment overrides.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/casegate/casegate/pkg/auth"
	"github.com/casegate/casegate/pkg/auth/apikey"
	"github.com/casegate/casegate/pkg/auth/federated"
	"github.com/casegate/casegate/pkg/config"
	"github.com/casegate/casegate/pkg/health"
	"github.com/casegate/casegate/pkg/pipeline"
	"github.com/casegate/casegate/pkg/ratelimit"
	"github.com/casegate/casegate/pkg/records"
	"github.com/casegate/casegate/pkg/storage/memory"
	"github.com/casegate/casegate/pkg/storage/postgres"
	"github.com/casegate/casegate/pkg/usage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage adapter. The memory adapter backs dev mode; postgres is
	// the production path and also drives the health gate.
	var (
		leadStore    records.LeadStore
		sessionStore auth.SessionStore
		keyStore     apikey.KeyStore
		usageRec     usage.Recorder
		gate         pipeline.HealthGate
	)

	switch cfg.Storage.Type {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return fmt.Errorf("creating postgres store: %w", err)
		}
		defer pg.Close()

		leadStore, sessionStore, keyStore, usageRec = pg, pg, pg, pg
		gate = health.New(pg, 0)
		slog.Info("storage enabled", "type", "postgres")

	default:
		mem := memory.New()
		leadStore, sessionStore, keyStore = mem, mem, mem
		usageRec = usage.LogRecorder{}
		gate = health.Static(true)
		slog.Info("storage enabled", "type", "memory")
	}

	// Federated verifier (optional).
	var fedVerifier auth.FederatedVerifier
	if cfg.Auth.Federated.Enabled {
		v, err := federated.New(federated.Config{
			Secret: []byte(cfg.Auth.Federated.Secret),
			Cookie: cfg.Auth.Federated.Cookie,
			Issuer: cfg.Auth.Federated.Issuer,
		})
		if err != nil {
			return fmt.Errorf("creating federated verifier: %w", err)
		}
		fedVerifier = v
		slog.Info("federated auth enabled", "cookie", cfg.Auth.Federated.Cookie)
	}

	resolver := &auth.Resolver{
		Sessions:  sessionStore,
		Federated: fedVerifier,
		APIKeys:   apikey.New(keyStore, cfg.Auth.APIKeyHeader),
		Cookie:    cfg.Auth.SessionCookie,
	}

	pipe := &pipeline.Pipeline{
		Health:        gate,
		Limiter:       ratelimit.New(cfg.RateLimit.Window),
		DefaultBudget: cfg.RateLimit.DefaultBudget,
		Resolver:      resolver,
		Toucher:       sessionStore,
		Usage:         usageRec,
	}

	rt := pipeline.NewRouter(pipe)
	records.Register(rt, &records.Handlers{Store: leadStore})

	rt.Raw(http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	}))

	if cfg.Observability.Metrics.Enabled {
		rt.Raw(http.MethodGet, cfg.Observability.Metrics.Path, promhttp.Handler())
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      rt,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port, "storage", cfg.Storage.Type)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
