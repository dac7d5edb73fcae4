package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ngi-firn/firn-auth/pkg/api"
	"github.com/ngi-firn/firn-auth/pkg/config"
	"github.com/ngi-firn/firn-auth/pkg/docstore"
	"github.com/ngi-firn/firn-auth/pkg/identity"
	"github.com/ngi-firn/firn-auth/pkg/oauth"
	"github.com/ngi-firn/firn-auth/pkg/observability"
	"github.com/ngi-firn/firn-auth/pkg/session"
	"github.com/ngi-firn/firn-auth/pkg/token"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("service failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	// User registry backend.
	var store docstore.Store
	var closeStore func() error
	if cfg.Docstore.Driver == "memory" {
		logger.Warn("using in-memory docstore, all users are lost on restart")
		store = docstore.NewMemoryStore()
	} else {
		sqlStore, err := docstore.OpenSQL(cfg.Docstore)
		if err != nil {
			return err
		}
		store = sqlStore
		closeStore = sqlStore.Close
		logger.WithField("driver", cfg.Docstore.Driver).Info("docstore connected")
	}

	sessions, err := session.NewRedisStore(cfg.Session)
	if err != nil {
		return err
	}
	logger.Info("session store connected")

	// Token key material: file-backed keys hot-reload on rotation.
	var keys token.KeySource
	var fileKey *token.FileKey
	if cfg.Token.KeyFile != "" {
		fileKey, err = token.NewFileKey(cfg.Token.KeyFile)
		if err != nil {
			return err
		}
		keys = fileKey
		logger.WithField("key_file", cfg.Token.KeyFile).Info("token key loaded from file")
	} else {
		keys = token.DeriveKey(cfg.Token.Secret)
	}

	users := identity.NewService(store, cfg.OAuth.Google.AllowedDomain)
	issuer := token.NewIssuer(users, keys, token.Options{
		IssuerURN:  cfg.Token.IssuerURN,
		DefaultTTL: cfg.Token.DefaultTTL,
	})

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	opts := api.Options{
		Users:             users,
		Sessions:          sessions,
		Issuer:            issuer,
		Logger:            logger,
		Metrics:           metrics,
		CORSOrigins:       cfg.Server.CORSOrigins,
		SecureCookies:     cfg.Server.SecureCookies,
		PostLoginRedirect: cfg.OAuth.PostLoginRedirect,
		TracingEnabled:    cfg.Observability.TracingEnabled,
	}
	if cfg.OAuth.Google.ClientID != "" {
		google, err := oauth.NewGoogleProvider(ctx, oauth.GoogleConfig{
			ClientID:      cfg.OAuth.Google.ClientID,
			ClientSecret:  cfg.OAuth.Google.ClientSecret,
			RedirectURL:   cfg.OAuth.Google.RedirectURL,
			AllowedDomain: cfg.OAuth.Google.AllowedDomain,
		})
		if err != nil {
			return err
		}
		opts.Google = google
		logger.Info("google provider registered")
	}
	if cfg.OAuth.GitHub.ClientID != "" {
		opts.GitHub = oauth.NewGitHubProvider(oauth.GitHubConfig{
			ClientID:     cfg.OAuth.GitHub.ClientID,
			ClientSecret: cfg.OAuth.GitHub.ClientSecret,
			RedirectURL:  cfg.OAuth.GitHub.RedirectURL,
		})
		logger.Info("github provider registered")
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Liveness, readiness, and metrics live on their own listener so the probes
	// stay up even when the API port is saturated.
	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(map[string]observability.Pinger{
		"docstore": store,
		"sessions": sessions,
	})
	observability.RegisterHealthRoutes(healthMux, checker)
	observability.RegisterMetricsEndpoint(healthMux, registry)
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	// Scheduled expired-token sweep keeps user documents from accumulating dead
	// registry entries.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Token.SweepSchedule, func() {
		defer observability.RecoverPanic(logger, "token sweep")
		removed, err := issuer.SweepExpired(context.Background())
		if err != nil {
			logger.WithError(err).Error("token sweep failed")
			return
		}
		if metrics != nil {
			metrics.TokensSweptTotal.Add(float64(removed))
		}
		if removed > 0 {
			logger.WithField("removed", removed).Info("token sweep completed")
		}
	}); err != nil {
		return err
	}
	sweeper.Start()

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(healthServer.Shutdown)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		cronCtx := sweeper.Stop()
		<-cronCtx.Done()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error { return sessions.Close() })
	if closeStore != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error { return closeStore() })
	}
	if fileKey != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error { return fileKey.Close() })
	}

	var g errgroup.Group
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Warn("shutdown finished with errors")
	}
	return g.Wait()
}
