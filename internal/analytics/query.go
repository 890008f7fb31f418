package analytics

// termsOrder makes equal counts come back in lexical key order.
var termsOrder = []map[string]string{
	{"_count": "desc"},
	{"_key": "asc"},
}

var percents = []float64{50, 95, 99}

func terms(field string, size int) map[string]any {
	return map[string]any{
		"field": field,
		"size":  size,
		"order": termsOrder,
	}
}

func avg(field string) map[string]any {
	return map[string]any{"avg": map[string]any{"field": field}}
}

func topSearchesQuery(tr TimeRange, limit int) map[string]any {
	return map[string]any{
		"size":  0,
		"query": tr.filter(),
		"aggs": map[string]any{
			"top_queries": map[string]any{
				"terms": terms("query.keyword", limit),
				"aggs": map[string]any{
					"avg_execution_time": avg("executionTimeMs"),
					"avg_total_results":  avg("totalResults"),
				},
			},
		},
	}
}

func zeroResultsQuery(tr TimeRange, limit int) map[string]any {
	return map[string]any{
		"size": 0,
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					tr.filter(),
					map[string]any{"term": map[string]any{"totalResults": 0}},
				},
			},
		},
		"aggs": map[string]any{
			"zero_result_queries": map[string]any{
				"terms": terms("query.keyword", limit),
				"aggs": map[string]any{
					"last_occurrence": map[string]any{
						"max": map[string]any{"field": "timestamp"},
					},
				},
			},
		},
	}
}

func popularDocumentsQuery(tr TimeRange, limit int) map[string]any {
	return map[string]any{
		"size":  0,
		"query": tr.filter(),
		"aggs": map[string]any{
			"popular_docs": map[string]any{
				"nested": map[string]any{"path": "hits"},
				"aggs": map[string]any{
					"by_document": map[string]any{
						"terms": terms("hits.documentId", limit),
						"aggs": map[string]any{
							"avg_score": avg("hits.score"),
							"url_host":  map[string]any{"terms": terms("hits.urlHost", 1)},
							"url_path":  map[string]any{"terms": terms("hits.urlPath.keyword", 1)},
						},
					},
				},
			},
		},
	}
}

func performanceTrendsQuery(tr TimeRange, interval string) map[string]any {
	return map[string]any{
		"size":  0,
		"query": tr.filter(),
		"aggs": map[string]any{
			"trends": map[string]any{
				"date_histogram": map[string]any{
					"field":          "timestamp",
					"fixed_interval": interval,
					"min_doc_count":  0,
					"extended_bounds": map[string]any{
						"min": tr.Start.UnixMilli(),
						"max": tr.End.UnixMilli(),
					},
				},
				"aggs": map[string]any{
					"avg_execution_time": avg("executionTimeMs"),
					"percentiles_execution_time": map[string]any{
						"percentiles": map[string]any{
							"field":    "executionTimeMs",
							"percents": percents,
						},
					},
				},
			},
		},
	}
}

func searchStatsQuery(tr TimeRange) map[string]any {
	return map[string]any{
		"size":             0,
		"track_total_hits": true,
		"query":            tr.filter(),
		"aggs": map[string]any{
			"unique_queries": map[string]any{
				"cardinality": map[string]any{"field": "query.keyword"},
			},
			"avg_execution_time": avg("executionTimeMs"),
			"zero_results": map[string]any{
				"filter": map[string]any{"term": map[string]any{"totalResults": 0}},
			},
		},
	}
}
