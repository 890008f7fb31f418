package healthcheck

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/docstore/docstoretest"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/queue"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/health"
	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type countsFunc func(ctx context.Context) (queue.Counts, error)

func (f countsFunc) Counts(ctx context.Context) (queue.Counts, error) { return f(ctx) }

func TestPing(t *testing.T) {
	up := Ping(pingFunc(func(context.Context) error { return nil }))(context.Background())
	assert.Equal(t, health.StatusUp, up.Status)

	down := Ping(pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }))(context.Background())
	assert.Equal(t, health.StatusDown, down.Status)
	assert.Contains(t, down.Message, "refused")
}

func TestElasticsearch(t *testing.T) {
	tests := []struct {
		body string
		want health.Status
	}{
		{`{"status":"green"}`, health.StatusUp},
		{`{"status":"yellow"}`, health.StatusDegraded},
		{`{"status":"red"}`, health.StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			srv := docstoretest.NewServer(t, func(w http.ResponseWriter, r *http.Request) {
				docstoretest.Reply(w, http.StatusOK, tt.body)
			})
			got := Elasticsearch(srv.Client(t))(context.Background())
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestQueue(t *testing.T) {
	got := Queue(countsFunc(func(context.Context) (queue.Counts, error) {
		return queue.Counts{Waiting: 3, Dead: 1}, nil
	}))(context.Background())
	assert.Equal(t, health.StatusUp, got.Status)
	assert.Equal(t, "waiting=3 active=0 delayed=0 dead=1", got.Message)

	got = Queue(countsFunc(func(context.Context) (queue.Counts, error) {
		return queue.Counts{}, errors.New("connection refused")
	}))(context.Background())
	assert.Equal(t, health.StatusDown, got.Status)
}
