package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/danielhkuo/tablepay/billing"
	"github.com/danielhkuo/tablepay/cliparse"
	"github.com/danielhkuo/tablepay/db"
	"github.com/danielhkuo/tablepay/events"
	"github.com/danielhkuo/tablepay/handlers"
	"github.com/danielhkuo/tablepay/middleware"
	"github.com/danielhkuo/tablepay/payments"
	"github.com/danielhkuo/tablepay/router"
	"github.com/danielhkuo/tablepay/telemetry"
)

func main() {
	var err error

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, "tablepay")
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	// Connect to the database
	dbConn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	// Create schema (tables)
	if err := db.CreateSchema(dbConn); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ready", "type", cfg.DatabaseType)

	if err := handlers.BootstrapAdmin(ctx, dbConn, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
		slog.Error("bootstrap admin failed", "error", err)
		os.Exit(1)
	}

	// Payment gateway
	var gateway payments.Gateway = payments.DisabledGateway{}
	if cfg.PaymentsEnabled() {
		gateway = payments.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayKey, otelhttp.NewTransport(http.DefaultTransport))
		slog.Info("card payments enabled", "gateway", cfg.GatewayURL)
	} else {
		slog.Warn("no gateway key configured, card payments disabled")
	}

	// Events: in-process unless Redis joins several instances together
	var hub events.Hub
	var locker *redislock.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid redis URL", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Error("redis ping failed", "error", err)
			os.Exit(1)
		}

		redisHub := events.NewRedisHub(client)
		go func() {
			if err := redisHub.Run(ctx); err != nil {
				slog.Error("redis event relay stopped", "error", err)
			}
		}()
		hub = redisHub
		locker = redislock.New(client)
	} else {
		hub = events.NewMemoryHub()
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		slog.Error("metrics setup failed", "error", err)
		os.Exit(1)
	}

	svc := billing.NewService(dbConn, gateway, billing.Options{
		Currency: cfg.Currency,
		PoolTTL:  cfg.PoolTTL,
		Hub:      hub,
		Metrics:  metrics,
	})
	sweeper := billing.NewSweeper(svc, billing.SweeperConfig{
		PaymentTTL:     cfg.PaymentTTL,
		SessionIdleTTL: cfg.SessionIdleTTL,
		Interval:       cfg.SweepInterval,
		Locker:         locker,
	})
	go sweeper.Run(ctx)

	// Create router
	mux := router.NewRouter(dbConn, cfg, router.Deps{
		Billing: svc,
		Sweeper: sweeper,
		Hub:     hub,
		Metrics: metrics,
	})

	// Create server
	server := http.Server{
		Handler: otelhttp.NewHandler(middleware.CORS(mux), "tablepay"),
		Addr:    ":" + strconv.Itoa(cfg.Port),
	}

	go func() {
		// Wait for Ctrl-C signal
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
		}
	}()

	// Start server
	slog.Info("Listening", "port", cfg.Port)
	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server closed", "error", err)
	} else {
		slog.Info("Server closed", "error", err)
	}
}
