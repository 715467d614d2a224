package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/crease/internal/adapters/http/api"
	"github.com/okian/crease/internal/adapters/http/auth"
	"github.com/okian/crease/internal/adapters/http/site"
	"github.com/okian/crease/internal/adapters/http/swagger"
	"github.com/okian/crease/internal/adapters/http/ws"
	app "github.com/okian/crease/internal/app"
	"github.com/okian/crease/internal/config"
	"github.com/okian/crease/pkg/logger"
	"github.com/okian/crease/pkg/metrics"
	"github.com/okian/crease/pkg/tracing"
)

// HTTP server timeout constants. WriteTimeout is zero so live websocket
// feeds are not cut off; handlers bound their own work.
const (
	readTimeout            = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	shutdownTracing, err := tracing.Setup(ctx, "crease", cfg.OTelEndpoint)
	if err != nil {
		loggerInstance.Warn(ctx, "tracing disabled", logger.Error(err))
	} else {
		defer func() {
			tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = shutdownTracing(tctx)
		}()
	}

	svc := app.New(
		app.WithConfig(cfg),
		app.WithLogger(loggerInstance),
	)
	if err := svc.Start(ctx); err != nil {
		loggerInstance.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop()

	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// newRouter mounts the scoreboard, API docs and scoring API.
func newRouter(ctx context.Context, cfg *config.Config, svc *app.Service) http.Handler {
	authn := auth.New(cfg.JWTSecret, cfg.JWTIssuer)
	if authn.DevMode() {
		logger.Get().Warn(ctx, "no jwt_secret configured; trusting actor headers")
	}

	r := chi.NewRouter()
	apiServer := api.NewServer(svc, svc,
		api.WithAuthenticator(authn),
		api.WithSpectator(ws.NewHandler(svc.Hub(),
			ws.WithSendBuffer(cfg.WSSendBuffer),
			ws.WithCheckOrigin(originPolicy(cfg.Origins())))),
		api.WithCORSOrigins(cfg.Origins()),
		api.WithLogger(logger.Get().Named("api")),
	)
	apiServer.Register(r)
	swagger.Register(ctx, r)
	site.Register(ctx, r)
	return r
}

// originPolicy accepts websocket upgrades from the configured CORS origins.
func originPolicy(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// startServiceMetricsUpdater mirrors service stats into gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
	if rooms, ok := stats["hubRooms"].(int); ok {
		metrics.UpdateHubRooms(rooms)
	}
	if open, ok := stats["openDisputes"].(int); ok {
		metrics.UpdateDisputesPending(open)
	}
}
