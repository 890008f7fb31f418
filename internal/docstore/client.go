// Package docstore is the Elasticsearch access layer shared by the index
// writer and the aggregation engine. Every call runs under a per-call
// timeout and a circuit breaker, and failures come back as *Error carrying
// a transient/permanent classification.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/resilience"
	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
)

// ClusterStatus is the colour reported by _cluster/health.
type ClusterStatus string

const (
	ClusterGreen  ClusterStatus = "green"
	ClusterYellow ClusterStatus = "yellow"
	ClusterRed    ClusterStatus = "red"
)

// Client wraps the Elasticsearch client.
type Client struct {
	es      *elasticsearch.Client
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// New builds a Client from cfg. m may be nil.
func New(cfg config.ElasticsearchConfig, m *metrics.Metrics) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		MaxRetries:   cfg.MaxRetries,
		DisableRetry: cfg.MaxRetries <= 0,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	breakerCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerFailures,
		ResetTimeout:     cfg.BreakerReset,
		IsFailure:        IsTransient,
	}
	if m != nil {
		breakerCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}

	return &Client{
		es:      es,
		timeout: cfg.RequestTimeout,
		breaker: resilience.NewCircuitBreaker("elasticsearch", breakerCfg),
		logger:  slog.Default().With("component", "docstore"),
	}, nil
}

// IndexDocument creates or fully replaces the document id in index.
func (c *Client) IndexDocument(ctx context.Context, index, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document %s: %w", id, err)
	}
	return c.do(ctx, "index", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Index(index, bytes.NewReader(body),
			c.es.Index.WithDocumentID(id),
			c.es.Index.WithContext(ctx),
		)
	}, nil)
}

// Search runs body against the indices matching pattern and decodes the raw
// response into out. Missing indices yield an empty response rather than an
// error.
func (c *Client) Search(ctx context.Context, pattern string, body any, out any) error {
	query, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling search body: %w", err)
	}
	return c.do(ctx, "search", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Search(
			c.es.Search.WithContext(ctx),
			c.es.Search.WithIndex(pattern),
			c.es.Search.WithBody(bytes.NewReader(query)),
			c.es.Search.WithIgnoreUnavailable(true),
			c.es.Search.WithAllowNoIndices(true),
		)
	}, out)
}

// PutIndexTemplate creates or replaces the composable template name.
func (c *Client) PutIndexTemplate(ctx context.Context, name string, template any) error {
	body, err := json.Marshal(template)
	if err != nil {
		return fmt.Errorf("marshaling index template %s: %w", name, err)
	}
	return c.do(ctx, "put_index_template", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Indices.PutIndexTemplate(name, bytes.NewReader(body),
			c.es.Indices.PutIndexTemplate.WithContext(ctx),
		)
	}, nil)
}

// ClusterHealth returns the cluster status colour.
func (c *Client) ClusterHealth(ctx context.Context) (ClusterStatus, error) {
	var out struct {
		Status ClusterStatus `json:"status"`
	}
	err := c.do(ctx, "cluster_health", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	}, &out)
	if err != nil {
		return ClusterRed, err
	}
	return out.Status, nil
}

// do runs call under the timeout and breaker, classifies failures and, on
// success, decodes the body into out when out is non-nil.
func (c *Client) do(ctx context.Context, op string, call func(context.Context) (*esapi.Response, error), out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var result error
	breakerErr := c.breaker.Execute(func() error {
		res, err := call(ctx)
		if err != nil {
			result = transportError(op, err)
			return result
		}
		defer res.Body.Close()

		if res.IsError() {
			result = statusError(op, res.StatusCode, res.Body)
			return result
		}
		if out != nil {
			if err := json.NewDecoder(res.Body).Decode(out); err != nil {
				result = &Error{Op: op, StatusCode: res.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
				return result
			}
		}
		return nil
	})

	if errors.Is(breakerErr, resilience.ErrCircuitOpen) && result == nil {
		return transportError(op, breakerErr)
	}
	if result != nil {
		c.logger.Debug("elasticsearch call failed",
			"op", op,
			"transient", IsTransient(result),
			"error", result,
		)
	}
	return result
}
