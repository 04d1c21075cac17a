package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelsec/kestrel/pkg/api"
	"github.com/kestrelsec/kestrel/pkg/config"
	"github.com/kestrelsec/kestrel/pkg/innerauth"
	"github.com/kestrelsec/kestrel/pkg/observability"
	"github.com/kestrelsec/kestrel/pkg/permissions"
	"github.com/kestrelsec/kestrel/pkg/provider"
	"github.com/kestrelsec/kestrel/pkg/provider/oidc"
)

func main() {
	startup := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		startup.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(nil)

	signer, err := innerauth.NewSigner(cfg.Auth.InnerAuthSecret, cfg.Auth.InnerAuthTTL)
	if err != nil {
		startup.Fatalf("Failed to initialize inner-auth signer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		startup.Fatalf("Failed to connect to redis at %s: %v", cfg.Redis.Addr, err)
	}

	db, err := sql.Open("postgres", cfg.DB.URL)
	if err != nil {
		startup.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		startup.Fatalf("Failed to connect to database: %v", err)
	}

	authProvider, err := provider.New(ctx, cfg.Auth.Provider, provider.Options{
		Redis:      rdb,
		SessionTTL: cfg.Auth.SessionTTL,
		OIDC: oidc.Config{
			IssuerURL: cfg.Auth.OIDCIssuerURL,
			ClientID:  cfg.Auth.OIDCClientID,
		},
		Logger: logger,
	})
	if err != nil {
		startup.Fatalf("Failed to initialize auth provider: %v", err)
	}

	resolver := permissions.NewCachingResolver(
		permissions.NewSQLResolver(db),
		permissions.DefaultCacheSize,
		permissions.DefaultCacheTTL,
		metrics,
	)

	handlers := api.NewHandlers(authProvider, resolver, api.NewSQLUserStore(db),
		logger, metrics, cfg.Auth.SessionTTL)
	router := api.NewRouter(api.RouterDeps{
		Handlers: handlers,
		Provider: authProvider,
		Signer:   signer,
		Logger:   logger,
		Metrics:  metrics,
	})

	apiSrv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	healthMux.Handle("/metrics", metrics.Handler())
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	healthMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	healthSrv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("auth service listening on %s (provider=%s)", apiSrv.Addr, authProvider.Name())
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("health/metrics listening on %s", healthSrv.Addr)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("api server shutdown")
		}
		return healthSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		startup.Fatalf("Server error: %v", err)
	}
	logger.Info("stopped")
}
