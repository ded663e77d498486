// Command webhook starts the inbound webhook receiver.
//
// The service accepts Resend-style email-delivery events via
// POST /resend-webhook, verifies the svix signature, resolves the contact the
// event belongs to, and appends a tracking record. It provides a health
// endpoint at GET /health.
//
// Usage:
//
//	go run ./cmd/webhook [-config configs/development.yaml]
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

	"github.com/contactops/contact-pipeline/internal/contacts"
	"github.com/contactops/contact-pipeline/internal/webhook/handler"
	"github.com/contactops/contact-pipeline/internal/webhook/ingestor"
	"github.com/contactops/contact-pipeline/pkg/config"
	"github.com/contactops/contact-pipeline/pkg/health"
	"github.com/contactops/contact-pipeline/pkg/kafka"
	"github.com/contactops/contact-pipeline/pkg/logger"
	"github.com/contactops/contact-pipeline/pkg/metrics"
	"github.com/contactops/contact-pipeline/pkg/middleware"
	"github.com/contactops/contact-pipeline/pkg/postgres"
)

// main loads configuration, connects to PostgreSQL, creates the Kafka
// producer, wires up the webhook handler, and starts the HTTP server.
// Graceful shutdown is triggered by SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting webhook service", "port", cfg.Server.Port)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.TrackingEvents)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.TrackingEvents)

	m := metrics.New()
	repo := contacts.NewRepository(db)
	ing := ingestor.New(cfg.Webhook.SigningSecret, repo, producer)
	h := handler.New(ing, m)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /resend-webhook", h.Receive)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	// CORS answers the OPTIONS preflight before the mux is consulted.
	var root http.Handler = mux
	root = middleware.Metrics(m)(root)
	root = middleware.CORS(middleware.WebhookCORSConfig())(root)
	root = middleware.Timeout(cfg.Server.WriteTimeout)(root)
	root = middleware.RequestID(root)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if stopMetrics != nil {
			if err := stopMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()
	slog.Info("webhook service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("webhook service stopped")
}
