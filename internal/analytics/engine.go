// Package analytics answers the aggregation questions asked of indexed
// search metrics: top queries, zero-result queries, popular documents,
// latency trends and summary stats.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/event"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/metrics"
)

// Searcher runs an aggregation body against an index pattern and decodes the
// response into out.
type Searcher interface {
	Search(ctx context.Context, pattern string, body any, out any) error
}

// Engine builds and runs aggregations over every daily partition.
type Engine struct {
	store   Searcher
	pattern string
	cfg     config.AnalyticsConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewEngine(store Searcher, indexPrefix string, cfg config.AnalyticsConfig, m *metrics.Metrics) *Engine {
	return &Engine{
		store:   store,
		pattern: event.PartitionPattern(indexPrefix),
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "analytics"),
	}
}

// Normalize fills defaults into opts and rejects values outside the
// configured bounds. Limits above MaxLimit are clamped.
func (e *Engine) Normalize(kind Kind, tr TimeRange, opts Options) (Options, error) {
	if err := tr.Validate(); err != nil {
		return opts, err
	}
	switch kind {
	case KindTopSearches, KindZeroResults, KindPopularDocuments:
		limit, err := e.limit(opts.Limit)
		if err != nil {
			return opts, err
		}
		return Options{Limit: limit}, nil
	case KindPerformanceTrends:
		interval, err := e.interval(tr, opts.Interval)
		if err != nil {
			return opts, err
		}
		return Options{Interval: interval}, nil
	case KindStats:
		return Options{}, nil
	}
	return opts, apperrors.InvalidInput("unknown aggregation %q", kind)
}

func (e *Engine) limit(n int) (int, error) {
	switch {
	case n == 0:
		return e.cfg.DefaultLimit, nil
	case n < 0:
		return 0, apperrors.InvalidInput("limit must be positive, got %d", n)
	case e.cfg.MaxLimit > 0 && n > e.cfg.MaxLimit:
		return e.cfg.MaxLimit, nil
	}
	return n, nil
}

func (e *Engine) interval(tr TimeRange, s string) (string, error) {
	if s == "" {
		s = e.cfg.DefaultInterval
	}
	d, err := ParseInterval(s)
	if err != nil {
		return "", err
	}
	if e.cfg.MaxBuckets > 0 && bucketCount(tr, d) > int64(e.cfg.MaxBuckets) {
		return "", apperrors.InvalidInput("interval %s yields more than %d buckets for this range", s, e.cfg.MaxBuckets)
	}
	return s, nil
}

// Run dispatches kind and returns its typed result: a slice for the ranked
// and trend kinds, a SearchStatsResponse for KindStats.
func (e *Engine) Run(ctx context.Context, kind Kind, tr TimeRange, opts Options) (any, error) {
	opts, err := e.Normalize(kind, tr, opts)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindTopSearches:
		return e.TopSearches(ctx, tr, opts.Limit)
	case KindZeroResults:
		return e.ZeroResultQueries(ctx, tr, opts.Limit)
	case KindPopularDocuments:
		return e.PopularDocuments(ctx, tr, opts.Limit)
	case KindPerformanceTrends:
		return e.PerformanceTrends(ctx, tr, opts.Interval)
	default:
		return e.SearchStats(ctx, tr)
	}
}

func (e *Engine) TopSearches(ctx context.Context, tr TimeRange, limit int) ([]TopSearchResult, error) {
	limit, err := e.limit(limit)
	if err != nil {
		return nil, err
	}
	var resp searchResponse[topSearchesAggs]
	if err := e.search(ctx, KindTopSearches, tr, topSearchesQuery(tr, limit), &resp); err != nil {
		return nil, err
	}
	out := []TopSearchResult{}
	if resp.Aggregations == nil {
		return out, nil
	}
	for _, b := range resp.Aggregations.TopQueries.Buckets {
		out = append(out, TopSearchResult{
			Query:              b.Key,
			Count:              b.DocCount,
			AvgExecutionTimeMs: b.AvgExecutionTime.rounded(),
			AvgTotalResults:    b.AvgTotalResults.rounded(),
		})
	}
	return out, nil
}

func (e *Engine) ZeroResultQueries(ctx context.Context, tr TimeRange, limit int) ([]ZeroResultQuery, error) {
	limit, err := e.limit(limit)
	if err != nil {
		return nil, err
	}
	var resp searchResponse[zeroResultsAggs]
	if err := e.search(ctx, KindZeroResults, tr, zeroResultsQuery(tr, limit), &resp); err != nil {
		return nil, err
	}
	out := []ZeroResultQuery{}
	if resp.Aggregations == nil {
		return out, nil
	}
	for _, b := range resp.Aggregations.ZeroResultQueries.Buckets {
		out = append(out, ZeroResultQuery{
			Query:          b.Key,
			Count:          b.DocCount,
			LastOccurrence: millis(b.LastOccurrence.float()),
		})
	}
	return out, nil
}

func (e *Engine) PopularDocuments(ctx context.Context, tr TimeRange, limit int) ([]PopularDocument, error) {
	limit, err := e.limit(limit)
	if err != nil {
		return nil, err
	}
	var resp searchResponse[popularDocumentsAggs]
	if err := e.search(ctx, KindPopularDocuments, tr, popularDocumentsQuery(tr, limit), &resp); err != nil {
		return nil, err
	}
	out := []PopularDocument{}
	if resp.Aggregations == nil {
		return out, nil
	}
	for _, b := range resp.Aggregations.PopularDocs.ByDocument.Buckets {
		out = append(out, PopularDocument{
			DocumentID:  b.Key,
			URLHost:     b.URLHost.first(keyOf),
			URLPath:     b.URLPath.first(keyOf),
			Appearances: b.DocCount,
			AvgScore:    b.AvgScore.float(),
		})
	}
	return out, nil
}

func (e *Engine) PerformanceTrends(ctx context.Context, tr TimeRange, interval string) ([]PerformanceTrend, error) {
	interval, err := e.interval(tr, interval)
	if err != nil {
		return nil, err
	}
	var resp searchResponse[trendsAggs]
	if err := e.search(ctx, KindPerformanceTrends, tr, performanceTrendsQuery(tr, interval), &resp); err != nil {
		return nil, err
	}
	out := []PerformanceTrend{}
	if resp.Aggregations == nil {
		return out, nil
	}
	for _, b := range resp.Aggregations.Trends.Buckets {
		p := percentileValues(b.Percentiles.Values)
		out = append(out, PerformanceTrend{
			Interval:           time.UnixMilli(b.Key).UTC(),
			AvgExecutionTimeMs: b.AvgExecutionTime.rounded(),
			TotalSearches:      b.DocCount,
			P50ExecutionTimeMs: p[0],
			P95ExecutionTimeMs: p[1],
			P99ExecutionTimeMs: p[2],
		})
	}
	return out, nil
}

func (e *Engine) SearchStats(ctx context.Context, tr TimeRange) (SearchStatsResponse, error) {
	var resp searchResponse[statsAggs]
	if err := e.search(ctx, KindStats, tr, searchStatsQuery(tr), &resp); err != nil {
		return SearchStatsResponse{}, err
	}
	stats := SearchStatsResponse{TotalSearches: int64(resp.Hits.Total)}
	if resp.Aggregations != nil {
		stats.UniqueQueries = resp.Aggregations.UniqueQueries.rounded()
		stats.AvgExecutionTimeMs = resp.Aggregations.AvgExecutionTime.rounded()
		if stats.TotalSearches > 0 {
			stats.ZeroResultRate = float64(resp.Aggregations.ZeroResults.DocCount) / float64(stats.TotalSearches)
		}
	}
	return stats, nil
}

func (e *Engine) search(ctx context.Context, kind Kind, tr TimeRange, body map[string]any, out any) error {
	if err := tr.Validate(); err != nil {
		return err
	}
	if e.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	err := e.store.Search(ctx, e.pattern, body, out)
	e.observe(kind, start, err)
	if err != nil {
		e.logger.Error("aggregation failed", "kind", kind, "error", err)
		return fmt.Errorf("%s aggregation: %w", kind, err)
	}
	e.logger.Debug("aggregation complete", "kind", kind, "duration", time.Since(start))
	return nil
}

func (e *Engine) observe(kind Kind, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	e.metrics.AggregationsTotal.WithLabelValues(string(kind), result).Inc()
	e.metrics.AggregationDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
}
