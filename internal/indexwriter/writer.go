// Package indexwriter persists search metric events into daily partitions
// of the document store.
package indexwriter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/event"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/metrics"
)

// Store is the subset of the document store the writer needs.
type Store interface {
	IndexDocument(ctx context.Context, index, id string, doc any) error
	PutIndexTemplate(ctx context.Context, name string, template any) error
}

// Writer routes each event to the partition for its own timestamp and
// upserts it by request id. It never retries and never deletes partitions.
type Writer struct {
	store   Store
	cfg     config.ElasticsearchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	schemaOnce sync.Once
}

// New creates a Writer. m may be nil.
func New(store Store, cfg config.ElasticsearchConfig, m *metrics.Metrics) *Writer {
	return &Writer{
		store:   store,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "index-writer", "prefix", cfg.IndexPrefix),
	}
}

// EnsureSchema installs the partition template. It runs at most once per
// Writer and a failure is logged rather than returned: writes still succeed
// against dynamically mapped indices.
func (w *Writer) EnsureSchema(ctx context.Context) {
	w.schemaOnce.Do(func() {
		name := event.TemplateName(w.cfg.IndexPrefix)
		if err := w.store.PutIndexTemplate(ctx, name, indexTemplate(w.cfg)); err != nil {
			w.logger.Warn("index template not installed", "template", name, "error", err)
			return
		}
		w.logger.Info("index template installed", "template", name)
	})
}

// Write stores ev in <prefix>-YYYY-MM-DD under id ev.RequestID. Writing the
// same event twice leaves one identical document.
func (w *Writer) Write(ctx context.Context, ev *event.SearchMetricEvent) error {
	index := event.PartitionName(w.cfg.IndexPrefix, ev.Timestamp)
	start := time.Now()
	err := w.store.IndexDocument(ctx, index, ev.RequestID, ev)
	w.observe(start, err)
	if err != nil {
		return fmt.Errorf("writing %s to %s: %w", ev.RequestID, index, err)
	}
	w.logger.Debug("search metric indexed", "index", index, "request_id", ev.RequestID)
	return nil
}

func (w *Writer) observe(start time.Time, err error) {
	if w.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		w.metrics.DocsIndexedTotal.Inc()
	}
	w.metrics.IndexWriteDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
