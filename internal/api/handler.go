// Package api serves the analytics HTTP API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/analytics/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/logger"
)

const (
	defaultSnapshotLimit = 24
	maxSnapshotLimit     = 1000
)

// Runner executes one aggregation. *analytics.Engine and *cache.Cached both
// satisfy it.
type Runner interface {
	Run(ctx context.Context, kind analytics.Kind, tr analytics.TimeRange, opts analytics.Options) (any, error)
}

// CacheInvalidator is implemented by runners that cache results.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type SnapshotLister interface {
	List(ctx context.Context, limit int) ([]snapshot.Snapshot, error)
}

type Handler struct {
	runner    Runner
	snapshots SnapshotLister
}

// NewHandler builds the analytics handlers. snapshots may be nil, in which
// case the snapshots route answers 404.
func NewHandler(runner Runner, snapshots SnapshotLister) *Handler {
	return &Handler{runner: runner, snapshots: snapshots}
}

// Aggregate serves one aggregation kind from the start, end, limit and
// interval query parameters.
func (h *Handler) Aggregate(kind analytics.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		tr, err := analytics.ParseTimeRange(q.Get("start"), q.Get("end"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		var opts analytics.Options
		switch kind {
		case analytics.KindTopSearches, analytics.KindZeroResults, analytics.KindPopularDocuments:
			if opts.Limit, err = parseLimit(q.Get("limit")); err != nil {
				writeError(w, r, err)
				return
			}
		case analytics.KindPerformanceTrends:
			opts.Interval = q.Get("interval")
		}

		result, err := h.runner.Run(r.Context(), kind, tr, opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, result)
	}
}

// Snapshots lists stored hourly stats, newest first.
func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		writeError(w, r, apperrors.New(apperrors.ErrNotConfigured, http.StatusNotFound, "snapshots are disabled"))
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	switch {
	case limit == 0:
		limit = defaultSnapshotLimit
	case limit > maxSnapshotLimit:
		limit = maxSnapshotLimit
	}

	snaps, err := h.snapshots.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snaps)
}

// InvalidateCache drops every cached aggregation, for use after reindexing
// or backfilling old partitions. It answers 404 when results are not cached.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.runner.(CacheInvalidator)
	if !ok {
		writeError(w, r, apperrors.New(apperrors.ErrNotConfigured, http.StatusNotFound, "aggregation cache is disabled"))
		return
	}
	if err := inv.Invalidate(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseLimit returns 0 for an absent limit so callers apply their default.
func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, apperrors.InvalidInput("limit must be a positive integer, got %q", s)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).Error("failed to write response", "error", err)
	}
}

// writeError maps err to its status. Server-side failures are logged and
// answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "status", status, "error", err)
		message = http.StatusText(status)
	}
	writeJSON(w, r, status, map[string]string{"error": message})
}
