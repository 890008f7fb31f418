package docstore_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/docstore/docstoretest"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexDocumentPutsByID(t *testing.T) {
	srv := docstoretest.NewServer(t, func(w http.ResponseWriter, r *http.Request) {
		docstoretest.Reply(w, http.StatusCreated, `{"result":"created"}`)
	})
	c := srv.Client(t)

	err := c.IndexDocument(context.Background(), "search-metrics-2024-03-15", "req-1", map[string]any{"query": "q"})
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/search-metrics-2024-03-15/_doc/req-1", reqs[0].Path)
	assert.Equal(t, "q", reqs[0].JSON(t)["query"])
}

func TestSearchDecodesAndTolerantOfMissingIndices(t *testing.T) {
	srv := docstoretest.NewServer(t, func(w http.ResponseWriter, r *http.Request) {
		docstoretest.Reply(w, http.StatusOK, `{"hits":{"total":{"value":3}}}`)
	})
	c := srv.Client(t)

	var out struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
		} `json:"hits"`
	}
	err := c.Search(context.Background(), "search-metrics-*", map[string]any{"size": 0}, &out)
	require.NoError(t, err)
	assert.EqualValues(t, 3, out.Hits.Total.Value)

	req := srv.Requests()[0]
	assert.Equal(t, "/search-metrics-*/_search", req.Path)
	assert.Equal(t, "true", req.Query.Get("ignore_unavailable"))
	assert.Equal(t, "true", req.Query.Get("allow_no_indices"))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
		errType   string
	}{
		{"mapping conflict", http.StatusBadRequest, `{"error":{"type":"mapper_parsing_exception","reason":"failed to parse"},"status":400}`, false, "mapper_parsing_exception"},
		{"rejected", http.StatusTooManyRequests, `{"error":{"type":"es_rejected_execution_exception","reason":"queue full"},"status":429}`, true, "es_rejected_execution_exception"},
		{"unavailable", http.StatusServiceUnavailable, `{"error":"no master"}`, true, ""},
		{"forbidden", http.StatusForbidden, `{}`, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := docstoretest.NewServer(t, func(w http.ResponseWriter, r *http.Request) {
				docstoretest.Reply(w, tt.status, tt.body)
			})
			err := srv.Client(t).IndexDocument(context.Background(), "i", "id", map[string]any{})
			require.Error(t, err)

			var se *docstore.Error
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, tt.errType, se.Type)
			assert.Equal(t, tt.transient, docstore.IsTransient(err))
			assert.Equal(t, tt.transient, errors.Is(err, apperrors.ErrStoreUnavailable))
		})
	}
}

func TestTimeoutIsTransient(t *testing.T) {
	srv := docstoretest.NewServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		docstoretest.Reply(w, http.StatusOK, `{}`)
	})
	c, err := docstore.New(config.ElasticsearchConfig{
		Addresses:      []string{srv.URL},
		RequestTimeout: 50 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	err = c.IndexDocument(context.Background(), "i", "id", map[string]any{})
	require.Error(t, err)
	assert.True(t, docstore.IsTransient(err))
	assert.True(t, errors.Is(err, apperrors.ErrTimeout))
}

func TestBreakerOpensOnTransientFailures(t *testing.T) {
	srv := docstoretest.NewServer(t, func(w http.ResponseWriter, r *http.Request) {
		docstoretest.Reply(w, http.StatusServiceUnavailable, `{}`)
	})
	c, err := docstore.New(config.ElasticsearchConfig{
		Addresses:       []string{srv.URL},
		RequestTimeout:  time.Second,
		BreakerFailures: 2,
		BreakerReset:    time.Minute,
	}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.Error(t, c.IndexDocument(ctx, "i", "id", map[string]any{}))
	}
	before := len(srv.Requests())

	err = c.IndexDocument(ctx, "i", "id", map[string]any{})
	require.Error(t, err)
	assert.True(t, docstore.IsTransient(err))
	assert.Equal(t, before, len(srv.Requests()), "open breaker short-circuits the call")
}

func TestClusterHealth(t *testing.T) {
	srv := docstoretest.NewServer(t, func(w http.ResponseWriter, r *http.Request) {
		docstoretest.Reply(w, http.StatusOK, `{"cluster_name":"c","status":"yellow"}`)
	})
	status, err := srv.Client(t).ClusterHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, docstore.ClusterYellow, status)
	assert.Equal(t, "/_cluster/health", srv.Requests()[0].Path)
}

func TestPutIndexTemplate(t *testing.T) {
	srv := docstoretest.NewServer(t, func(w http.ResponseWriter, r *http.Request) {
		docstoretest.Reply(w, http.StatusOK, `{"acknowledged":true}`)
	})
	err := srv.Client(t).PutIndexTemplate(context.Background(), "search-metrics-template", map[string]any{
		"index_patterns": []string{"search-metrics-*"},
	})
	require.NoError(t, err)
	req := srv.Requests()[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/_index_template/search-metrics-template", req.Path)
}
