package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soaringjerry/comparaholic/internal/api"
	"github.com/soaringjerry/comparaholic/internal/config"
	dbstore "github.com/soaringjerry/comparaholic/internal/db"
	"github.com/soaringjerry/comparaholic/internal/metrics"
	"github.com/soaringjerry/comparaholic/internal/middleware"
	"github.com/soaringjerry/comparaholic/internal/services"
	"github.com/soaringjerry/comparaholic/internal/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg, logger)
	},
}

// openStore returns the configured store and a function that releases it.
// The sqlite driver imports the legacy snapshot on first run.
func openStore(ctx context.Context, c *config.Config, log *zap.Logger) (api.Store, func() error, error) {
	if c.Storage.Driver == "memory" {
		return api.NewMemoryStore(), func() error { return nil }, nil
	}
	if err := ImportIfNeeded(ctx, c.Storage.LegacySnapshot, c.Storage.Path, c.Storage.MigrationsDir, log); err != nil {
		return nil, nil, err
	}
	conn, err := dbstore.Open(c.Storage.Path, c.Storage.MigrationsDir)
	if err != nil {
		return nil, nil, err
	}
	store, err := dbstore.NewStore(conn, log.Named("sqlite"))
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return store, conn.Close, nil
}

func newHandler(c *config.Config, log *zap.Logger, store api.Store, m *metrics.Metrics) (http.Handler, *api.Router, error) {
	banks, err := services.LoadBanks(c.Catalog.BanksFile)
	if err != nil {
		return nil, nil, err
	}
	rt := api.NewRouter(api.Config{
		Store:       store,
		Catalog:     services.NewCatalog(banks, 0),
		Auth:        middleware.NewAuthenticator(c.Auth.JWTSecret),
		Logger:      log,
		Observer:    m,
		Cookies:     middleware.CookieConfig{Secure: c.Cookies.Secure, Domain: c.Cookies.Domain},
		AdminEmails: c.Auth.AdminEmails,
		TokenTTL:    c.Auth.TokenTTL,
		DraftDelay:  c.Forms.DraftDelay,
		SessionIdle: c.Forms.SessionIdle,
		AuthLimit: middleware.RateLimitConfig{
			RequestsPerMinute: c.Auth.RequestsPerMinute,
			Burst:             c.Auth.Burst,
		},
	})

	mux := http.NewServeMux()
	rt.Register(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		locale := middleware.LocaleFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "Comparaholic API",
			"locale":     locale,
			"msg":        utils.T(locale, "health.ok"),
			"commit":     c.Commit,
			"build_time": c.Built,
		})
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"commit": c.Commit, "build_time": c.Built})
	})
	if c.Metrics.Enabled && m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	var obs middleware.RequestObserver
	if m != nil {
		obs = m
	}
	// RequestLog sits directly on the mux so the matched pattern is visible.
	handler := middleware.RequestLog(log.Named("http"), obs)(mux)
	handler = rt.Handler(handler)
	handler = middleware.LocaleMiddleware(handler)
	handler = middleware.CORS(c.Server.CORSOrigins)(handler)
	handler = middleware.NoStore(handler)
	handler = middleware.SecureHeaders(c.Server.HSTS)(handler)
	return handler, rt, nil
}

func runServe(ctx context.Context, c *config.Config, log *zap.Logger) error {
	store, closeStore, err := openStore(ctx, c, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeStore(); cerr != nil {
			log.Warn("close store", zap.Error(cerr))
		}
	}()

	var m *metrics.Metrics
	if c.Metrics.Enabled {
		if m, err = metrics.New(c.Metrics.Namespace, promclient.NewRegistry()); err != nil {
			return err
		}
	}
	handler, rt, err := newHandler(c, log, store, m)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         c.Server.Addr,
		Handler:      handler,
		ReadTimeout:  c.Server.ReadTimeout,
		WriteTimeout: c.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", c.Server.Addr), zap.String("storage", c.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Server.ShutdownTimeout)
		defer cancel()
		serr := srv.Shutdown(shutdownCtx)
		// Pending drafts are written after the listener stops accepting.
		if err := rt.Close(shutdownCtx); err != nil {
			log.Warn("flush pending drafts", zap.Error(err))
		}
		log.Info("stopped")
		return serr
	})
	return g.Wait()
}

// openSQLite is used by the maintenance commands, which always act on the
// sqlite file.
func openSQLite(c *config.Config, log *zap.Logger) (*dbstore.SQLiteStore, *sql.DB, error) {
	conn, err := dbstore.Open(c.Storage.Path, c.Storage.MigrationsDir)
	if err != nil {
		return nil, nil, err
	}
	store, err := dbstore.NewSQLiteStore(conn, log.Named("sqlite"))
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return store, conn, nil
}
