package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/openboard/realtime/internal/v1/config"
	"github.com/openboard/realtime/internal/v1/health"
	"github.com/openboard/realtime/internal/v1/logging"
	"github.com/openboard/realtime/internal/v1/logsink"
	"github.com/openboard/realtime/internal/v1/middleware"
	"github.com/openboard/realtime/internal/v1/pairing"
	"github.com/openboard/realtime/internal/v1/ratelimit"
	"github.com/openboard/realtime/internal/v1/store"
	"github.com/openboard/realtime/internal/v1/tracing"
	"github.com/openboard/realtime/internal/v1/transport"
)

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Tracing (Optional) ---
	if cfg.OtelEnabled {
		tp, err := tracing.InitTracer(context.Background(), "realtime-hub", cfg.OtelCollectorAddr)
		if err != nil {
			slog.Error("Failed to initialize tracer", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				slog.Error("Failed to shut down tracer provider", "error", err)
			}
		}()
		slog.Info("Tracing initialized", "collector", cfg.OtelCollectorAddr)
	}

	// --- Board Persistence ---
	boardStore, err := store.New(cfg.DataDir)
	if err != nil {
		slog.Error("Failed to initialize board store", "error", err)
		os.Exit(1)
	}

	// --- Pairing Token Registry ---
	pairs := pairing.NewRegistry(cfg.PairTokenTTL)
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go pairs.RunReaper(reaperCtx)

	// --- Rate Limiting ---
	rateLimiter, err := ratelimit.NewRateLimiter(cfg.RateLimitWsIp, cfg.RateLimitLogIp)
	if err != nil {
		slog.Error("Failed to initialize rate limiter", "error", err)
		os.Exit(1)
	}

	// --- Hub ---
	hub := transport.NewHub(boardStore, pairs, rateLimiter, cfg.SaveDebounce)

	// --- Set up Server ---
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	if cfg.OtelEnabled {
		router.Use(otelgin.Middleware("realtime-hub"))
	}

	// Clients connect from file:// contexts and arbitrary LAN hosts, so CORS
	// stays wide open.
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "X-Correlation-ID"}
	router.Use(cors.New(corsConfig))

	// Routing
	router.GET("/ws", hub.ServeWs)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	healthHandler := health.NewHandler(boardStore)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	// Client debug log sink, enabled only when a directory is configured
	sink, err := logsink.NewHandler(cfg.DebugLogDir)
	if err != nil {
		slog.Error("Failed to initialize log sink", "error", err)
		os.Exit(1)
	}
	if sink != nil {
		router.POST("/log", rateLimiter.LogMiddleware(), sink.Ingest)
		slog.Info("Debug log sink enabled", "dir", cfg.DebugLogDir)
	}

	// Any other URL upgrades if it looks like a WebSocket handshake, so
	// clients can connect without caring about the path. Plain requests get
	// a bare 200 for connectivity checks.
	router.NoRoute(func(c *gin.Context) {
		if isWebSocketRequest(c.Request) {
			hub.ServeWs(c)
			return
		}
		c.String(http.StatusOK, "ok")
	})

	// Start the server.
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		slog.Info("Realtime hub starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run server", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	// The context is used to inform the server it has 30 seconds to finish
	// the requests it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close all active rooms and WebSocket connections, flushing boards
	if err := hub.Shutdown(ctx); err != nil {
		slog.Error("Error during Hub shutdown:", "error", err)
	}

	// Shutdown HTTP server
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown:", "error", err)
	}

	slog.Info("Server exiting")
}

// isWebSocketRequest detects a WebSocket handshake by its required headers.
func isWebSocketRequest(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, v := range r.Header.Values("Connection") {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), "upgrade") {
				return true
			}
		}
	}
	return false
}
