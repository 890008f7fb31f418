// Command api serves the analytics HTTP API over the indexed search metrics
// and, when enabled, records hourly stats snapshots.
//
// Usage:
//
//	go run ./cmd/api [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/analytics/cache"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/analytics/snapshot"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/api"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/healthcheck"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics api", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	store, err := docstore.New(cfg.Elasticsearch, m)
	if err != nil {
		slog.Error("failed to create elasticsearch client", "error", err)
		os.Exit(1)
	}
	engine := analytics.NewEngine(store, cfg.Elasticsearch.IndexPrefix, cfg.Analytics, m)

	checker := health.NewChecker()
	checker.Register("elasticsearch", healthcheck.Elasticsearch(store))

	var runner api.Runner = engine
	if cfg.Analytics.CacheTTL > 0 {
		rdb, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		runner = cache.New(engine, rdb, cfg.Analytics.CacheTTL, m)
		checker.Register("redis", healthcheck.Ping(rdb))
		slog.Info("aggregation cache enabled", "ttl", cfg.Analytics.CacheTTL)
	}

	var snapshots api.SnapshotLister
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		checker.Register("postgres", healthcheck.Ping(db))

		snapStore := snapshot.NewStore(db)
		if err := snapStore.EnsureSchema(ctx); err != nil {
			slog.Error("failed to create snapshot schema", "error", err)
			os.Exit(1)
		}
		snapshots = snapStore
		if cfg.Snapshot.Enabled {
			if err := snapshot.NewRunner(engine, snapStore, cfg.Snapshot).Start(ctx); err != nil {
				slog.Error("failed to start snapshot scheduler", "error", err)
				os.Exit(1)
			}
		}
	}

	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateLimitWindow)
		go limiter.Run(ctx, 5*time.Minute)
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(api.RouterConfig{
			Handler:        api.NewHandler(runner, snapshots),
			Health:         checker,
			Metrics:        m,
			Limiter:        limiter,
			CORSOrigins:    cfg.CORS.AllowOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
			TrustProxy:     cfg.Server.TrustProxy,
		}),
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

	slog.Info("analytics api listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics api stopped")
}
