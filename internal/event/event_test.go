package event

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{
  "requestId": "req-1",
  "query": "redis caching",
  "offset": 0,
  "executionTimeMs": 42,
  "totalResults": 2,
  "hitsCount": 2,
  "hits": [
    {"documentId": "d1", "urlHost": "docs.example.com", "urlPath": "/redis", "score": 1.5},
    {"documentId": "d2", "urlHost": "blog.example.com", "urlPath": "/cache", "score": 0.7}
  ],
  "timestamp": "2024-03-15T10:00:00+02:00",
  "userAgent": "curl/8"
}`

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(samplePayload))
	require.NoError(t, err)

	assert.Equal(t, "req-1", ev.RequestID)
	assert.Equal(t, int64(42), ev.ExecutionTimeMs)
	assert.Len(t, ev.Hits, 2)
	assert.Equal(t, "docs.example.com", ev.Hits[0].URLHost)
	assert.Equal(t, time.UTC, ev.Timestamp.Location())
	assert.Equal(t, 8, ev.Timestamp.Hour())
	assert.False(t, ev.HitsMismatch())
	assert.False(t, ev.IsZeroResult())
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{"requestId":`},
		{"wrong type", `{"requestId": 5}`},
		{"missing id", `{"query": "q", "timestamp": "2024-03-15T10:00:00Z"}`},
		{"missing timestamp", `{"requestId": "r"}`},
		{"negative latency", `{"requestId": "r", "timestamp": "2024-03-15T10:00:00Z", "executionTimeMs": -1}`},
		{"hit without id", `{"requestId": "r", "timestamp": "2024-03-15T10:00:00Z", "hits": [{"score": 1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrMalformedPayload))
		})
	}
}

func TestValidationErrorFields(t *testing.T) {
	ev := SearchMetricEvent{Offset: -1}
	err := ev.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "requestId")
	assert.Contains(t, verr.Fields, "timestamp")
	assert.Contains(t, verr.Fields, "offset")
	assert.Equal(t, "offset: must be >= 0; requestId: is required; timestamp: is required", err.Error())
}

func TestHitsMismatchIsAccepted(t *testing.T) {
	ev := SearchMetricEvent{
		RequestID: "r",
		Timestamp: time.Now(),
		HitsCount: 10,
		Hits:      []SearchHit{{DocumentID: "d1"}},
	}
	assert.NoError(t, ev.Validate())
	assert.True(t, ev.HitsMismatch())
}

func TestPartitionName(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "search-metrics-2024-03-15", PartitionName("search-metrics", ts))

	// 23:30 on the 14th in UTC-5 is the 15th in UTC.
	est := time.FixedZone("EST", -5*3600)
	late := time.Date(2024, 3, 14, 23, 30, 0, 0, est)
	assert.Equal(t, "search-metrics-2024-03-15", PartitionName("search-metrics", late))

	assert.Equal(t, "search-metrics-*", PartitionPattern("search-metrics"))
	assert.Equal(t, "search-metrics-template", TemplateName("search-metrics"))
}
