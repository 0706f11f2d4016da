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

	"github.com/joho/godotenv"
	"github.com/loangraph/reconciler/internal/auth"
	"github.com/loangraph/reconciler/internal/config"
	"github.com/loangraph/reconciler/internal/db"
	"github.com/loangraph/reconciler/internal/domain/payment"
	"github.com/loangraph/reconciler/internal/format"
	"github.com/loangraph/reconciler/internal/http/handlers"
	"github.com/loangraph/reconciler/internal/lenderapi"
	"github.com/loangraph/reconciler/internal/observability"
	"github.com/loangraph/reconciler/internal/reconcile"
	postgresrepo "github.com/loangraph/reconciler/internal/repository/postgres"
	redisrepo "github.com/loangraph/reconciler/internal/repository/redis"
	"github.com/loangraph/reconciler/internal/server"
	internalws "github.com/loangraph/reconciler/internal/ws"
)

func main() {
	// A .env file is optional; real deployments set the environment directly.
	envErr := godotenv.Load()
	cfg := config.Load()
	logger := observability.NewLogger(cfg.Env, cfg.LogLevel)
	if envErr != nil {
		logger.Debug("no .env file loaded", "err", envErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mirror, pinger, closeMirror, err := openMirror(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open mirror", "backend", cfg.MirrorBackend, "err", err)
		os.Exit(1)
	}
	defer closeMirror()

	jwtManager := auth.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSigningKey)
	apiClient := lenderapi.NewClient(cfg.LenderAPIBaseURL, cfg.RequestTimeout,
		lenderapi.WithLogger(logger.With("component", "lenderapi")),
		lenderapi.WithTokenSource(callerToken(cfg.LenderAPIToken)),
	)

	formatter := format.NewFormatter(cfg.Locale, cfg.CurrencySymbol)
	projector := reconcile.NewProjector(formatter, lenderapi.NewProofResolver(cfg.AssetBaseURL, cfg.APIPathSuffix), logger)

	hub := internalws.NewHub()
	notifier := internalws.NewNotifier(hub, projector, logger)
	service := reconcile.NewService(apiClient, mirror, notifier, logger, reconcile.ServiceOptions{
		ActionTimeout: cfg.ActionTimeout,
		DefaultLimit:  int(cfg.DefaultPageLimit),
	})

	r := server.NewRouter(cfg, logger, server.Dependencies{
		Pinger:           pinger,
		ReconcileHandler: handlers.NewReconcileHandler(service, projector),
		WSHandler:        internalws.NewHandler(hub, logger),
		JWTManager:       jwtManager,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.WithCORS(r, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api server starting", "addr", cfg.Addr(), "lender_api", cfg.LenderAPIBaseURL, "mirror", cfg.MirrorBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info("api server stopped")
}

// callerToken forwards the authenticated caller's token and falls back to the
// configured service token for calls made outside a request.
func callerToken(fallback string) lenderapi.TokenSource {
	return func(ctx context.Context) string {
		if tok := auth.TokenFromContext(ctx); tok != "" {
			return tok
		}
		return fallback
	}
}

func openMirror(ctx context.Context, cfg config.Config, logger *slog.Logger) (payment.SnapshotRepository, handlers.Pinger, func(), error) {
	switch cfg.MirrorBackend {
	case config.MirrorPostgres:
		pool, err := db.NewPostgresPool(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		repo := postgresrepo.NewSnapshotRepository(pool)
		return repo, repo, pool.Close, nil
	case config.MirrorRedis:
		client := redisrepo.NewClient(cfg.RedisAddr, cfg.RedisPassword, int(cfg.RedisDB))
		repo := redisrepo.NewSnapshotRepository(client, cfg.MirrorTTL)
		if err := repo.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		return repo, repo, func() { _ = client.Close() }, nil
	default:
		if cfg.MirrorBackend != config.MirrorNone {
			logger.Warn("unknown mirror backend, mirroring disabled", "backend", cfg.MirrorBackend)
		}
		return nil, nil, func() {}, nil
	}
}
