package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind names one of the supported aggregations.
type Kind string

const (
	KindTopSearches       Kind = "top-searches"
	KindZeroResults       Kind = "zero-results"
	KindPopularDocuments  Kind = "popular-documents"
	KindPerformanceTrends Kind = "performance-trends"
	KindStats             Kind = "stats"
)

// Kinds lists every aggregation in a stable order.
var Kinds = []Kind{
	KindTopSearches,
	KindZeroResults,
	KindPopularDocuments,
	KindPerformanceTrends,
	KindStats,
}

// Options carries the per-kind knobs. Zero values take the engine defaults.
type Options struct {
	Limit    int
	Interval string
}

type TopSearchResult struct {
	Query              string `json:"query"`
	Count              int64  `json:"count"`
	AvgExecutionTimeMs int64  `json:"avgExecutionTimeMs"`
	AvgTotalResults    int64  `json:"avgTotalResults"`
}

type ZeroResultQuery struct {
	Query          string    `json:"query"`
	Count          int64     `json:"count"`
	LastOccurrence time.Time `json:"lastOccurrence"`
}

type PopularDocument struct {
	DocumentID  string  `json:"documentId"`
	URLHost     string  `json:"urlHost"`
	URLPath     string  `json:"urlPath"`
	Appearances int64   `json:"appearances"`
	AvgScore    float64 `json:"avgScore"`
}

// PerformanceTrend describes one histogram bucket starting at Interval.
type PerformanceTrend struct {
	Interval           time.Time `json:"interval"`
	AvgExecutionTimeMs int64     `json:"avgExecutionTimeMs"`
	TotalSearches      int64     `json:"totalSearches"`
	P50ExecutionTimeMs int64     `json:"p50ExecutionTimeMs"`
	P95ExecutionTimeMs int64     `json:"p95ExecutionTimeMs"`
	P99ExecutionTimeMs int64     `json:"p99ExecutionTimeMs"`
}

type SearchStatsResponse struct {
	TotalSearches      int64   `json:"totalSearches"`
	UniqueQueries      int64   `json:"uniqueQueries"`
	AvgExecutionTimeMs int64   `json:"avgExecutionTimeMs"`
	ZeroResultRate     float64 `json:"zeroResultRate"`
}

// DecodeResult decodes data as kind's result type and returns it the same
// way Run would.
func DecodeResult(kind Kind, data []byte) (any, error) {
	switch kind {
	case KindTopSearches:
		return decodeAs[[]TopSearchResult](data)
	case KindZeroResults:
		return decodeAs[[]ZeroResultQuery](data)
	case KindPopularDocuments:
		return decodeAs[[]PopularDocument](data)
	case KindPerformanceTrends:
		return decodeAs[[]PerformanceTrend](data)
	case KindStats:
		return decodeAs[SearchStatsResponse](data)
	}
	return nil, fmt.Errorf("unknown aggregation %q", kind)
}

func decodeAs[T any](data []byte) (any, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
