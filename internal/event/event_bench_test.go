package event

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func benchPayload(hits int) []byte {
	ev := SearchMetricEvent{
		RequestID:       "bench-1",
		Query:           "distributed search engines",
		ExecutionTimeMs: 42,
		TotalResults:    1200,
		HitsCount:       hits,
		Timestamp:       time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		UserAgent:       "bench",
	}
	for i := range hits {
		ev.Hits = append(ev.Hits, SearchHit{
			DocumentID: fmt.Sprintf("doc-%d", i),
			URLHost:    "docs.example.com",
			URLPath:    fmt.Sprintf("/guides/%d", i),
			Score:      float64(hits-i) / 3,
		})
	}
	data, _ := json.Marshal(ev)
	return data
}

func BenchmarkDecode(b *testing.B) {
	for _, hits := range []int{0, 10, 100} {
		data := benchPayload(hits)
		b.Run(fmt.Sprintf("hits=%d", hits), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			for b.Loop() {
				if _, err := Decode(data); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
