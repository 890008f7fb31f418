// Command worker consumes search-metric jobs from the Redis queue and indexes
// them into daily Elasticsearch partitions.
//
// Usage:
//
//	go run ./cmd/worker [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/healthcheck"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/indexwriter"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/queue"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/redis"
	"github.com/go-chi/chi/v5"
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
	slog.Info("starting ingestion worker",
		"queue", cfg.Queue.Name,
		"concurrency", cfg.Queue.Concurrency,
		"index_prefix", cfg.Elasticsearch.IndexPrefix,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	rdb, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	store, err := docstore.New(cfg.Elasticsearch, m)
	if err != nil {
		slog.Error("failed to create elasticsearch client", "error", err)
		os.Exit(1)
	}

	writer := indexwriter.New(store, cfg.Elasticsearch, m)
	writer.EnsureSchema(ctx)

	q := queue.New(rdb.Redis(), cfg.Queue)

	var sink ingest.DeadLetterSink
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.DeadLetterTopic != "" {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.DeadLetterTopic)
		defer producer.Close()
		sink = ingest.NewKafkaSink(producer)
		slog.Info("dead letters forwarded to kafka", "topic", cfg.Kafka.DeadLetterTopic)
	}

	processor := ingest.NewProcessor(writer, cfg.Queue.JobName, cfg.Queue.WriteTimeout)
	consumer := ingest.NewConsumer(q, processor, cfg.Queue, sink, m)

	checker := health.NewChecker()
	checker.Register("queue", healthcheck.Queue(q))
	checker.Register("elasticsearch", healthcheck.Elasticsearch(store))

	r := chi.NewRouter()
	r.Get("/health", checker.ReportHandler())
	r.Get("/health/live", checker.LiveHandler())
	r.Get("/health/ready", checker.ReadyHandler())
	r.Get("/queue/dead", ingest.DeadJobsHandler(q))
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		slog.Info("worker health listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server error", "error", err)
		}
	}()

	if err := consumer.Run(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("ingestion worker stopped")
}
