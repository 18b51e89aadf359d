package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Embedded zone database so DISPLAY_TIMEZONE works on minimal images.
	_ "time/tzdata"

	"uangku/internal/auth"
	"uangku/internal/config"
	"uangku/internal/dashboard"
	"uangku/internal/handlers"
	"uangku/internal/logging"
	"uangku/internal/middleware"
	"uangku/internal/session"
	"uangku/internal/storage"
	"uangku/internal/upstream"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	loc, err := time.LoadLocation(cfg.Web.DisplayTimezone)
	if err != nil {
		return err
	}

	db, err := storage.NewDB(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := session.New(session.Options{
		Secret: cfg.Session.Secret,
		Secure: cfg.Production(),
		MaxAge: cfg.Session.MaxAge,
	})
	if err != nil {
		return err
	}

	client := upstream.NewClient(upstream.Options{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.Timeout,
		BreakerEnabled: cfg.API.BreakerEnabled,
	})

	h := handlers.NewHandlers(handlers.Options{
		Auth:        auth.NewGateway(client, sessions, nil),
		Sync:        dashboard.NewController(client, db),
		Sessions:    sessions,
		Snapshots:   db,
		TemplateDir: cfg.Web.TemplateDir,
		Location:    loc,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           setupRouter(h, cfg.Web.StaticDir, cfg.RateLimit, cfg.Server.TrustProxy),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Str("environment", cfg.Server.Environment).
			Str("api_base_url", cfg.API.BaseURL).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// setupRouter builds the HTTP routes. X-Forwarded-For and X-Real-IP are
// honoured only when trustProxy is set.
func setupRouter(h *handlers.Handlers, staticDir string, limits config.RateLimitConfig, trustProxy bool) http.Handler {
	r := chi.NewRouter()
	if trustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	r.Get("/", h.LoginForm)
	r.With(loginRateLimit(h, limits)).Post("/", h.Login)
	r.Get("/register", h.RegisterForm)
	r.Post("/register", h.Register)
	r.Post("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Get("/dashboard", h.Dashboard)
		r.Post("/transactions", h.CreateTransaction)
		r.Post("/transactions/{id}/delete", h.DeleteTransaction)
	})

	return r
}

// loginRateLimit limits login attempts per client IP. A zero limit disables it.
func loginRateLimit(h *handlers.Handlers, limits config.RateLimitConfig) func(http.Handler) http.Handler {
	if limits.LoginRequests == 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(
		limits.LoginRequests,
		limits.LoginWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(h.LoginRateLimited),
	)
}
