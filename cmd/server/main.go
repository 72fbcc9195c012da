// main is the entry point for the ticketing API server.
//
// It reads configuration from environment variables, opens the SQLite
// database, wires every core component together, registers HTTP routes,
// starts two background sweeps, and listens until a shutdown signal
// arrives.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — how this file fits into the project
// ────────────────────────────────────────────────────────────────────
// This file is the composition root — the single place where every
// independent package (db, cache, identity, events, ..., httpapi) is
// wired together. Keeping the wiring here means every other package
// stays easy to test in isolation; none of them import each other in a
// circle.
//
// LOGGING
// We use log/slog (stdlib) as the structured logger. In a terminal tint
// wraps it with ANSI colour codes so each log level gets a distinct
// colour. tint.NewHandler detects whether stdout is a real TTY; colour
// is automatically suppressed when output is piped or redirected.
//
// GRACEFUL SHUTDOWN
// http.Server.Shutdown drains in-flight requests before closing. We
// listen for SIGINT/SIGTERM, cancel a shared context, trigger Shutdown
// in a goroutine, and wait for the background sweep goroutines and the
// HTTP server to all exit cleanly via errgroup.
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
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/fitbhag/ticketing/backend/internal/cache"
	"github.com/fitbhag/ticketing/backend/internal/db"
	"github.com/fitbhag/ticketing/backend/internal/events"
	"github.com/fitbhag/ticketing/backend/internal/httpapi"
	"github.com/fitbhag/ticketing/backend/internal/identity"
	"github.com/fitbhag/ticketing/backend/internal/joinrequests"
	"github.com/fitbhag/ticketing/backend/internal/middleware"
	"github.com/fitbhag/ticketing/backend/internal/models"
	"github.com/fitbhag/ticketing/backend/internal/payments"
	"github.com/fitbhag/ticketing/backend/internal/points"
	"github.com/fitbhag/ticketing/backend/internal/qrcode"
	"github.com/fitbhag/ticketing/backend/internal/registration"
	"github.com/fitbhag/ticketing/backend/internal/social"
	"github.com/fitbhag/ticketing/backend/internal/validation"
)

func main() {
	// .env is optional — in production, real environment variables are
	// set by the deployment platform and this call is a harmless no-op.
	_ = godotenv.Load()

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
		NoColor:    !isatty(os.Stdout),
	}))
	slog.SetDefault(logger)

	// ── Configuration ────────────────────────────────────────────────
	dsn := getenv("DATABASE_URL",
		"ticketing.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	jwtSecret := getenv("JWT_SECRET", "changeme-use-a-real-secret-in-production")
	addr := getenv("ADDR", ":8080")
	redisURL := os.Getenv("REDIS_URL")
	razorpayKeyID := getenv("RAZORPAY_KEY_ID", "")
	razorpayKeySecret := getenv("RAZORPAY_KEY_SECRET", "")
	razorpayWebhookSecret := getenv("RAZORPAY_WEBHOOK_SECRET", "")
	currency := getenv("PAYMENT_CURRENCY", "INR")
	accessTTL := getenvDuration("ACCESS_TOKEN_TTL", 120*time.Minute)

	// ── Database ─────────────────────────────────────────────────────
	database, err := db.Open(dsn)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	// ── Cache ────────────────────────────────────────────────────────
	// Redis in production when configured, falling back to an
	// in-process cache for single-instance deployments and local dev.
	// Every consumer treats cache failures as advisory, so either choice
	// is safe for correctness.
	var c cache.Cache
	if redisURL != "" {
		rc, err := cache.NewRedis(redisURL)
		if err != nil {
			slog.Error("connect redis", "err", err)
			os.Exit(1)
		}
		c = rc
		slog.Info("cache backend: redis", "url", redisURL)
	} else {
		mc, err := cache.NewMemory()
		if err != nil {
			slog.Error("init memory cache", "err", err)
			os.Exit(1)
		}
		c = mc
		slog.Info("cache backend: in-process")
	}

	// ── Core components ──────────────────────────────────────────────
	identitySvc := identity.New(jwtSecret, accessTTL, c)
	qrCodec := qrcode.New(jwtSecret)

	eventStore := events.New(database, c)
	pointsLedger := points.New(database)
	registrationEngine := registration.New(database, eventStore, qrCodec, pointsLedger, c)

	var gateway payments.GatewayClient
	if razorpayKeyID != "" && razorpayKeySecret != "" {
		gateway = payments.NewHTTPGateway("https://api.razorpay.com/v1", razorpayKeyID, razorpayKeySecret, razorpayWebhookSecret)
	} else {
		slog.Warn("RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET not set — payment routes will fail until configured")
		gateway = payments.NewHTTPGateway("https://api.razorpay.com/v1", "", "", razorpayWebhookSecret)
	}
	paymentsOrchestrator := payments.New(database, gateway, eventStore, registrationEngine, currency)

	validationEngine := validation.New(database, qrCodec, eventStore, pointsLedger)
	joinRequestStore := joinrequests.New(database, eventStore, registrationEngine)
	socialStore := social.New(database)

	srv := &httpapi.Server{
		DB:            database,
		Cache:         c,
		Identity:      identitySvc,
		QR:            qrCodec,
		Events:        eventStore,
		Registration:  registrationEngine,
		Payments:      paymentsOrchestrator,
		Validation:    validationEngine,
		Points:        pointsLedger,
		JoinRequests:  joinRequestStore,
		Social:        socialStore,
		RazorpayKeyID: razorpayKeyID,
	}

	mux := newRouter(srv, identitySvc)
	handler := middleware.CORS(requestLogger(mux))

	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── Background sweeps + server, all under one errgroup ────────────
	// events.ExpireSweep deactivates events an hour past their end_at;
	// payments.CleanupExpired cancels stale pending orders. Both are
	// idempotent, so overlapping runs across restarts are harmless.
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runSweep(gctx, "events expiry sweep", 5*time.Minute, func(ctx context.Context) error {
			_, err := eventStore.ExpireSweep(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error {
		runSweep(gctx, "payment order cleanup", 5*time.Minute, func(ctx context.Context) error {
			_, err := paymentsOrchestrator.CleanupExpired(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error {
		slog.Info("ticketing API started", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case <-gctx.Done():
		slog.Error("a background task failed, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "err", err)
	}
	cancel()

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped cleanly")
}

// runSweep runs fn immediately and then every interval until ctx is
// cancelled, logging (but not dying on) a single failed pass.
func runSweep(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	run := func() {
		if err := fn(ctx); err != nil {
			slog.Error(name, "err", err)
		}
	}
	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// newRouter registers every route. Go 1.22+ ServeMux supports method
// prefixes ("GET /path") and path wildcards ("{id}") natively, so no
// third-party router is needed.
func newRouter(srv *httpapi.Server, identitySvc *identity.Service) *http.ServeMux {
	mux := http.NewServeMux()

	auth := middleware.Authenticate(identitySvc)
	optionalAuth := middleware.OptionalAuthenticate(identitySvc)
	onlyOrganizer := middleware.RequireRole(models.RoleOrganizer, models.RoleAdmin)
	onlyAdmin := middleware.RequireRole(models.RoleAdmin)

	// ── Public ──────────────────────────────────────────────────────
	mux.HandleFunc("POST /api/auth/register", srv.Register)
	mux.HandleFunc("POST /api/auth/login", srv.Login)
	mux.Handle("GET /api/events", optionalAuth(http.HandlerFunc(srv.ListEvents)))
	mux.Handle("GET /api/events/{id}", optionalAuth(http.HandlerFunc(srv.GetEvent)))
	mux.Handle("GET /api/events/featured", optionalAuth(http.HandlerFunc(srv.GetFeaturedSlots)))
	mux.HandleFunc("POST /api/payments/webhook", srv.PaymentWebhook)
	mux.Handle("GET /api/users/{id}/profile", optionalAuth(http.HandlerFunc(srv.GetProfile)))

	// ── Any authenticated user ──────────────────────────────────────
	mux.Handle("GET /api/auth/me", auth(http.HandlerFunc(srv.Me)))
	mux.Handle("POST /api/auth/logout", auth(http.HandlerFunc(srv.Logout)))

	mux.Handle("POST /api/registrations/free", auth(http.HandlerFunc(srv.RegisterFree)))
	mux.Handle("GET /api/tickets/mine", auth(http.HandlerFunc(srv.ListMyTickets)))
	mux.Handle("GET /api/tickets/{id}", auth(http.HandlerFunc(srv.GetTicket)))

	mux.Handle("POST /api/payments/orders", auth(http.HandlerFunc(srv.CreateOrder)))
	mux.Handle("POST /api/payments/verify", auth(http.HandlerFunc(srv.VerifyPayment)))

	mux.Handle("GET /api/points/mine", auth(http.HandlerFunc(srv.GetMyPoints)))

	mux.Handle("POST /api/connections", auth(http.HandlerFunc(srv.RequestConnection)))
	mux.Handle("POST /api/connections/{id}/accept", auth(http.HandlerFunc(srv.AcceptConnection)))
	mux.Handle("POST /api/connections/{id}/decline", auth(http.HandlerFunc(srv.DeclineConnection)))
	mux.Handle("DELETE /api/connections/{user_id}", auth(http.HandlerFunc(srv.Disconnect)))

	mux.Handle("POST /api/join-requests", auth(http.HandlerFunc(srv.RequestJoin)))

	// ── Organizer / admin ───────────────────────────────────────────
	mux.Handle("POST /api/events", auth(onlyOrganizer(http.HandlerFunc(srv.CreateEvent))))
	mux.Handle("PATCH /api/events/{id}", auth(onlyOrganizer(http.HandlerFunc(srv.PatchEvent))))
	mux.Handle("DELETE /api/events/{id}", auth(onlyOrganizer(http.HandlerFunc(srv.DeleteEvent))))
	mux.Handle("GET /api/events/all", auth(onlyOrganizer(http.HandlerFunc(srv.ListAllEvents))))
	mux.Handle("GET /api/events/recent", auth(onlyOrganizer(http.HandlerFunc(srv.ListRecentEvents))))
	mux.Handle("PUT /api/events/featured/{slot}", auth(onlyOrganizer(http.HandlerFunc(srv.SetFeaturedSlot))))

	mux.Handle("POST /api/validations", auth(onlyOrganizer(http.HandlerFunc(srv.ValidateTicket))))

	mux.Handle("POST /api/join-requests/{id}/review", auth(onlyOrganizer(http.HandlerFunc(srv.ReviewJoinRequest))))
	mux.Handle("GET /api/events/{id}/join-requests", auth(onlyOrganizer(http.HandlerFunc(srv.ListJoinRequests))))

	// ── Admin only ──────────────────────────────────────────────────
	mux.Handle("POST /api/points/{user_id}/deduct", auth(onlyAdmin(http.HandlerFunc(srv.DeductPoints))))
	mux.Handle("GET /api/points/transactions", auth(onlyAdmin(http.HandlerFunc(srv.ListPointsTransactions))))

	return mux
}

// getenv returns the value of the named environment variable, or fallback
// if the variable is not set or is empty.
func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getenvDuration parses the named environment variable as a Go duration,
// falling back if it is unset or malformed.
func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

// isatty reports whether f is connected to an interactive terminal. Used
// to decide whether to emit ANSI colour codes.
func isatty(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// responseWriter wraps http.ResponseWriter to capture the status code
// written by a handler so the request logger can record it.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLogger logs every request: method, path, status, latency.
// 2xx/3xx → INFO, 4xx → WARN, 5xx → ERROR.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		latency := time.Since(start)

		level := slog.LevelInfo
		switch {
		case rw.status >= 500:
			level = slog.LevelError
		case rw.status >= 400:
			level = slog.LevelWarn
		}

		slog.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"latency", latency,
		)
	})
}
