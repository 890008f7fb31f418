package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type limitRecorder struct {
	limit int64
	err   error
}

func (l *limitRecorder) DeadJobs(_ context.Context, limit int64) ([]*queue.Job, error) {
	l.limit = limit
	return nil, l.err
}

func getDeadJobs(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestDeadJobsHandlerListsDeadLetters(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Add(ctx, "search-metric", []byte("{bad"))
	require.NoError(t, err)
	job, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.DeadLetter(ctx, job, "malformed payload"))

	rec := getDeadJobs(DeadJobsHandler(q), "/queue/dead")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []deadJobView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, job.ID, got[0].ID)
	assert.Equal(t, "{bad", got[0].Data)
	assert.Equal(t, "malformed payload", got[0].FailedReason)
}

func TestDeadJobsHandlerLimit(t *testing.T) {
	lister := &limitRecorder{}
	h := DeadJobsHandler(lister)

	rec := getDeadJobs(h, "/queue/dead")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
	assert.Equal(t, int64(defaultDeadJobLimit), lister.limit)

	getDeadJobs(h, "/queue/dead?limit=5000")
	assert.Equal(t, int64(maxDeadJobLimit), lister.limit)

	for _, bad := range []string{"0", "-1", "ten"} {
		assert.Equal(t, http.StatusBadRequest, getDeadJobs(h, "/queue/dead?limit="+bad).Code, bad)
	}

	lister.err = errors.New("redis down")
	assert.Equal(t, http.StatusInternalServerError, getDeadJobs(h, "/queue/dead").Code)
}
