package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/scheduler"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/tracing"
)

const analyticsSnapshotInterval = time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	tracing.SetEnabled(cfg.Tracing.Enabled)
	slog.Info("starting search service", "port", cfg.Server.Port, "corpora", len(cfg.Corpora))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()

	var db *sql.DB
	if needsPostgres(cfg) {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		db = pg.DB
		checker.Register("postgres", health.PingCheck(pg.Ping, true))
		slog.Info("postgres connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	reg := registry.New(cfg, scheduler.Background{Interval: cfg.Engine.TickInterval}, m)
	for _, cc := range cfg.Corpora {
		src, err := registry.SourceFor(cc, db)
		if err != nil {
			slog.Error("invalid corpus configuration", "corpus", cc.Name, "error", err)
			os.Exit(1)
		}
		if _, err := reg.Register(cc.Name, src); err != nil {
			slog.Error("failed to register corpus", "corpus", cc.Name, "error", err)
			os.Exit(1)
		}
	}
	checker.Register("index", health.IndexCheck(reg))
	go func() {
		if err := reg.LoadAll(ctx); err != nil {
			slog.Error("some corpora failed to load", "error", err)
		}
	}()

	var shared *cache.SharedCache[searcher.Result]
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, shared result cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			shared = cache.NewShared[searcher.Result](redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping, false))
			slog.Info("shared result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	aggregator := analytics.NewAggregator()
	var tracker handler.Tracker
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, 10000, 100, time.Second)
		collector.Start(ctx)
		defer collector.Close()
		tracker = collector

		eventConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
		go func() {
			if err := aggregator.Run(ctx, eventConsumer); err != nil {
				slog.Error("analytics aggregator stopped", "error", err)
			}
		}()

		reindexer := consumer.New(cfg.Kafka, reg)
		go func() {
			if err := reindexer.Run(ctx); err != nil {
				slog.Error("reindex consumer stopped", "error", err)
			}
		}()
		slog.Info("kafka wired",
			"brokers", cfg.Kafka.Brokers,
			"reindex_topic", cfg.Kafka.Topics.Reindex,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
		)
	} else {
		tracker = localTracker{aggregator}
	}
	if db != nil {
		go analytics.NewStore(db).SavePeriodically(ctx, aggregator, analyticsSnapshotInterval)
	}

	h := handler.New(reg, shared, tracker)
	mux := http.NewServeMux()
	h.Routes(mux)
	analytics.NewHandler(aggregator).Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	// Metrics wraps the mux directly so the matched route pattern is visible.
	var root http.Handler = mux
	if m != nil {
		root = middleware.Metrics(m)(mux)
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(root, middleware.RequestID, middleware.Deadline(cfg.Server.WriteTimeout)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

// localTracker feeds the aggregator directly when Kafka is disabled.
type localTracker struct {
	agg *analytics.Aggregator
}

func (t localTracker) Track(e analytics.SearchEvent) {
	t.agg.Record(e)
}

func needsPostgres(cfg *config.Config) bool {
	for _, cc := range cfg.Corpora {
		if cc.Postgres {
			return true
		}
	}
	return false
}
