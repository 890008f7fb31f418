// Package event defines the search telemetry record carried on the queue and
// stored in the document store, along with its validation and partition
// naming rules.
package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/errors"
)

// JobName is the queue job name carrying a SearchMetricEvent payload.
const JobName = "search-metric"

// SearchHit is one ranked result returned for a query.
type SearchHit struct {
	DocumentID string  `json:"documentId"`
	URLHost    string  `json:"urlHost"`
	URLPath    string  `json:"urlPath"`
	Score      float64 `json:"score"`
}

// SearchMetricEvent records one executed search. RequestID doubles as the
// stored document id, so redelivery overwrites instead of duplicating.
type SearchMetricEvent struct {
	RequestID       string      `json:"requestId"`
	Query           string      `json:"query"`
	Offset          int         `json:"offset"`
	ExecutionTimeMs int64       `json:"executionTimeMs"`
	TotalResults    int64       `json:"totalResults"`
	HitsCount       int         `json:"hitsCount"`
	Hits            []SearchHit `json:"hits"`
	Timestamp       time.Time   `json:"timestamp"`
	UserAgent       string      `json:"userAgent,omitempty"`
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrMalformedPayload
}

// Validate checks the invariants every stored event must satisfy.
func (e *SearchMetricEvent) Validate() error {
	errs := make(map[string]string)
	if strings.TrimSpace(e.RequestID) == "" {
		errs["requestId"] = "is required"
	}
	if e.Timestamp.IsZero() {
		errs["timestamp"] = "is required"
	}
	if e.Offset < 0 {
		errs["offset"] = "must be >= 0"
	}
	if e.ExecutionTimeMs < 0 {
		errs["executionTimeMs"] = "must be >= 0"
	}
	if e.TotalResults < 0 {
		errs["totalResults"] = "must be >= 0"
	}
	if e.HitsCount < 0 {
		errs["hitsCount"] = "must be >= 0"
	}
	for i, h := range e.Hits {
		if h.DocumentID == "" {
			errs[fmt.Sprintf("hits[%d].documentId", i)] = "is required"
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// HitsMismatch reports whether the reported hitsCount disagrees with the
// number of hit records carried. Such events are still stored.
func (e *SearchMetricEvent) HitsMismatch() bool {
	return e.HitsCount != len(e.Hits)
}

// IsZeroResult reports whether the query matched nothing.
func (e *SearchMetricEvent) IsZeroResult() bool {
	return e.TotalResults == 0
}

// Decode parses and validates a queue payload. Any failure wraps
// ErrMalformedPayload.
func Decode(data []byte) (*SearchMetricEvent, error) {
	var ev SearchMetricEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decoding search metric: %w: %v", apperrors.ErrMalformedPayload, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("validating search metric: %w", err)
	}
	ev.Timestamp = ev.Timestamp.UTC()
	return &ev, nil
}
