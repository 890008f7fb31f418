package analytics

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

type searchResponse[A any] struct {
	Hits struct {
		Total totalHits `json:"total"`
	} `json:"hits"`
	Aggregations *A `json:"aggregations"`
}

// totalHits accepts both the bare number and the {"value": n} object forms.
type totalHits int64

func (t *totalHits) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = 0
		return nil
	}
	if b[0] == '{' {
		var obj struct {
			Value int64 `json:"value"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*t = totalHits(obj.Value)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = totalHits(n)
	return nil
}

// valueAgg is a single-value metric; null means no documents contributed.
type valueAgg struct {
	Value *float64 `json:"value"`
}

func (v valueAgg) float() float64 {
	if v.Value == nil || math.IsNaN(*v.Value) {
		return 0
	}
	return *v.Value
}

func (v valueAgg) rounded() int64 {
	return int64(math.Round(v.float()))
}

type termsAgg[B any] struct {
	Buckets []B `json:"buckets"`
}

type keyBucket struct {
	Key      string `json:"key"`
	DocCount int64  `json:"doc_count"`
}

// first returns the leading bucket key or "" when there is none.
func (t termsAgg[B]) first(key func(B) string) string {
	if len(t.Buckets) == 0 {
		return ""
	}
	return key(t.Buckets[0])
}

type topSearchesAggs struct {
	TopQueries termsAgg[struct {
		keyBucket
		AvgExecutionTime valueAgg `json:"avg_execution_time"`
		AvgTotalResults  valueAgg `json:"avg_total_results"`
	}] `json:"top_queries"`
}

type zeroResultsAggs struct {
	ZeroResultQueries termsAgg[struct {
		keyBucket
		LastOccurrence valueAgg `json:"last_occurrence"`
	}] `json:"zero_result_queries"`
}

type popularDocumentsAggs struct {
	PopularDocs struct {
		ByDocument termsAgg[struct {
			keyBucket
			AvgScore valueAgg           `json:"avg_score"`
			URLHost  termsAgg[keyBucket] `json:"url_host"`
			URLPath  termsAgg[keyBucket] `json:"url_path"`
		}] `json:"by_document"`
	} `json:"popular_docs"`
}

type trendsAggs struct {
	Trends termsAgg[struct {
		Key              int64    `json:"key"`
		DocCount         int64    `json:"doc_count"`
		AvgExecutionTime valueAgg `json:"avg_execution_time"`
		Percentiles      struct {
			Values map[string]*float64 `json:"values"`
		} `json:"percentiles_execution_time"`
	}] `json:"trends"`
}

type statsAggs struct {
	UniqueQueries    valueAgg `json:"unique_queries"`
	AvgExecutionTime valueAgg `json:"avg_execution_time"`
	ZeroResults      struct {
		DocCount int64 `json:"doc_count"`
	} `json:"zero_results"`
}

// percentileValues rounds the requested percentiles and forces them to be
// non-decreasing, since the digest estimate can invert on skewed buckets.
func percentileValues(values map[string]*float64) [3]int64 {
	var out [3]int64
	for i, p := range percents {
		v := lookupPercentile(values, p)
		if v != nil && !math.IsNaN(*v) {
			out[i] = int64(math.Round(*v))
		}
		if i > 0 && out[i] < out[i-1] {
			out[i] = out[i-1]
		}
	}
	return out
}

func lookupPercentile(values map[string]*float64, p float64) *float64 {
	if v, ok := values[strconv.FormatFloat(p, 'f', 1, 64)]; ok {
		return v
	}
	return values[strconv.FormatFloat(p, 'f', -1, 64)]
}

func keyOf(b keyBucket) string { return b.Key }

func millis(v float64) time.Time {
	return time.UnixMilli(int64(v)).UTC()
}
