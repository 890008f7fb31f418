package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/queue"
	apperrors "github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/logger"
)

const (
	defaultDeadJobLimit = 50
	maxDeadJobLimit     = 1000
)

type DeadJobLister interface {
	DeadJobs(ctx context.Context, limit int64) ([]*queue.Job, error)
}

// deadJobView is the wire form of a dead-lettered job. Data is a string
// because malformed payloads are dead-lettered too.
type deadJobView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Data         string    `json:"data"`
	AttemptsMade int       `json:"attemptsMade"`
	StalledCount int       `json:"stalledCount"`
	Timestamp    time.Time `json:"timestamp"`
	FailedReason string    `json:"failedReason"`
}

// DeadJobsHandler lists dead-lettered jobs, newest first, for operators.
// The optional limit parameter defaults to 50 and is capped at 1000.
func DeadJobsHandler(q DeadJobLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultDeadJobLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				writeError(w, r, apperrors.InvalidInput("limit must be a positive integer, got %q", s))
				return
			}
			limit = min(n, maxDeadJobLimit)
		}

		jobs, err := q.DeadJobs(r.Context(), int64(limit))
		if err != nil {
			writeError(w, r, err)
			return
		}
		views := make([]deadJobView, 0, len(jobs))
		for _, j := range jobs {
			views = append(views, deadJobView{
				ID:           j.ID,
				Name:         j.Name,
				Data:         string(j.Data),
				AttemptsMade: j.AttemptsMade,
				StalledCount: j.StalledCount,
				Timestamp:    j.Timestamp,
				FailedReason: j.FailedReason,
			})
		}
		writeJSON(w, r, http.StatusOK, views)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		message = http.StatusText(status)
	}
	writeJSON(w, r, status, map[string]string{"error": message})
}
