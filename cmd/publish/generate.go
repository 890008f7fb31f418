package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/event"
	"github.com/google/uuid"
)

var sampleQueries = []string{
	"kubernetes tutorial",
	"docker compose",
	"go microservices",
	"redis caching",
	"elasticsearch aggregations",
	"go generics",
	"react hooks",
	"grpc streaming",
	"graphql federation",
	"postgresql optimization",
}

var sampleHosts = []string{
	"docs.example.com",
	"blog.example.com",
	"guides.example.com",
	"tutorials.example.com",
}

const generatedSpread = 7 * 24 * time.Hour

// generateEvent builds a random event timestamped within the week before now.
func generateEvent(rng *rand.Rand, now time.Time) event.SearchMetricEvent {
	query := sampleQueries[rng.IntN(len(sampleQueries))]
	totalResults := rng.Int64N(10001)
	hitsCount := int(min(totalResults, 10))

	hits := make([]event.SearchHit, 0, hitsCount)
	for range hitsCount {
		hits = append(hits, event.SearchHit{
			DocumentID: fmt.Sprintf("doc-%d", 1000+rng.IntN(9000)),
			URLHost:    sampleHosts[rng.IntN(len(sampleHosts))],
			URLPath:    "/docs/" + strings.ReplaceAll(query, " ", "-"),
			Score:      math.Round(rng.Float64()*1000) / 100,
		})
	}

	return event.SearchMetricEvent{
		RequestID:       "generated-" + uuid.NewString(),
		Query:           query,
		ExecutionTimeMs: 10 + rng.Int64N(141),
		TotalResults:    totalResults,
		HitsCount:       hitsCount,
		Hits:            hits,
		Timestamp:       now.Add(-time.Duration(rng.Int64N(int64(generatedSpread)))).UTC(),
		UserAgent:       "statsgoblin publisher",
	}
}

// sampleEvent is the fixed event used for smoke tests.
func sampleEvent(now time.Time) event.SearchMetricEvent {
	return event.SearchMetricEvent{
		RequestID:       "test-" + uuid.NewString(),
		Query:           "go microservices",
		ExecutionTimeMs: 42,
		TotalResults:    150,
		HitsCount:       10,
		Hits: []event.SearchHit{
			{DocumentID: "doc-123", URLHost: "docs.example.com", URLPath: "/guides/microservices", Score: 9.5},
			{DocumentID: "doc-456", URLHost: "docs.example.com", URLPath: "/tutorials/go", Score: 8.2},
		},
		Timestamp: now.UTC(),
		UserAgent: "Mozilla/5.0 Test Client",
	}
}
