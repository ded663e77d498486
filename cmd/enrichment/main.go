// Command enrichment starts the batch geocoding service.
//
// The service geocodes under-located contacts against an external lookup
// service on a fixed schedule, and also on demand via
// POST /geocode-addresses. Lookups are paced to respect the external
// service's rate limit.
//
// Usage:
//
//	go run ./cmd/enrichment [-config configs/development.yaml]
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
	"time"

	"github.com/contactops/contact-pipeline/internal/contacts"
	"github.com/contactops/contact-pipeline/internal/enrichment/geocoder"
	"github.com/contactops/contact-pipeline/internal/enrichment/handler"
	"github.com/contactops/contact-pipeline/internal/enrichment/pace"
	"github.com/contactops/contact-pipeline/internal/enrichment/scheduler"
	"github.com/contactops/contact-pipeline/pkg/config"
	"github.com/contactops/contact-pipeline/pkg/health"
	"github.com/contactops/contact-pipeline/pkg/kafka"
	"github.com/contactops/contact-pipeline/pkg/logger"
	"github.com/contactops/contact-pipeline/pkg/metrics"
	"github.com/contactops/contact-pipeline/pkg/middleware"
	"github.com/contactops/contact-pipeline/pkg/postgres"
	pkgredis "github.com/contactops/contact-pipeline/pkg/redis"
)

// main wires the geocoder client, cache, pacer, and scheduler, then runs the
// HTTP trigger endpoint beside an interval loop. Graceful shutdown is
// triggered by SIGINT/SIGTERM.
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
	slog.Info("starting enrichment service", "port", cfg.Server.Port)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	m := metrics.New()

	var geo geocoder.Lookuper = geocoder.New(cfg.Geocoder)
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		// The cache is an optimisation; run uncached when Redis is down.
		slog.Warn("redis unavailable, geocode cache disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		geo = geocoder.NewCached(geo, redisClient, cfg.Redis.CacheTTL, m)
		slog.Info("geocode cache enabled", "ttl", cfg.Redis.CacheTTL)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.EnrichmentEvents)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.EnrichmentEvents)

	repo := contacts.NewRepository(db)
	pacer := pace.New(cfg.Enrichment.PaceInterval)
	sched := scheduler.New(repo, geo, pacer, cfg.Enrichment.BatchSize,
		scheduler.WithMetrics(m),
		scheduler.WithPublisher(producer),
	)
	h := handler.New(sched)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /geocode-addresses", h.Trigger)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	// CORS answers the OPTIONS preflight before the mux is consulted.
	var root http.Handler = mux
	root = middleware.Metrics(m)(root)
	root = middleware.CORS(middleware.DefaultCORSConfig())(root)
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

	// Interval loop beside the on-demand endpoint. Overlapping runs are
	// benign: the latest successful geocode wins.
	go func() {
		ticker := time.NewTicker(cfg.Enrichment.RunInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := sched.Run(ctx); err != nil {
					slog.Error("scheduled enrichment run failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

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
	slog.Info("enrichment service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("enrichment service stopped")
}
