package indexwriter

import (
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/event"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/config"
)

// keywordSubfield adds an exact-match "keyword" field next to base. It has no
// ignore_above: values over the cap would be left out of terms buckets.
func keywordSubfield(base string) map[string]any {
	return map[string]any{
		"type": base,
		"fields": map[string]any{
			"keyword": map[string]any{"type": "keyword"},
		},
	}
}

// mappings is the field layout shared by every daily partition.
func mappings() map[string]any {
	return map[string]any{
		"dynamic": "strict",
		"properties": map[string]any{
			"requestId":       map[string]any{"type": "keyword"},
			"query":           keywordSubfield("text"),
			"offset":          map[string]any{"type": "integer"},
			"executionTimeMs": map[string]any{"type": "integer"},
			"totalResults":    map[string]any{"type": "integer"},
			"hitsCount":       map[string]any{"type": "integer"},
			"timestamp":       map[string]any{"type": "date"},
			"userAgent":       keywordSubfield("text"),
			"hits": map[string]any{
				"type": "nested",
				"properties": map[string]any{
					"documentId": map[string]any{"type": "keyword"},
					"urlHost":    map[string]any{"type": "keyword"},
					"urlPath":    keywordSubfield("text"),
					"score":      map[string]any{"type": "float"},
				},
			},
		},
	}
}

// indexTemplate builds the composable template body for cfg's partitions.
func indexTemplate(cfg config.ElasticsearchConfig) map[string]any {
	settings := map[string]any{
		"number_of_shards":   cfg.Shards,
		"number_of_replicas": cfg.Replicas,
	}
	if cfg.LifecyclePolicy != "" {
		settings["index.lifecycle.name"] = cfg.LifecyclePolicy
	}
	return map[string]any{
		"index_patterns": []string{event.PartitionPattern(cfg.IndexPrefix)},
		"priority":       100,
		"template": map[string]any{
			"settings": settings,
			"mappings": mappings(),
		},
	}
}
