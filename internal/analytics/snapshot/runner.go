package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/resilience"
	"github.com/robfig/cron/v3"
)

type StatsSource interface {
	SearchStats(ctx context.Context, tr analytics.TimeRange) (analytics.SearchStatsResponse, error)
}

type Saver interface {
	Save(ctx context.Context, snap Snapshot) error
}

// Runner computes and saves a snapshot for the most recently closed window
// on every cron tick.
type Runner struct {
	source StatsSource
	saver  Saver
	cfg    config.SnapshotConfig
	retry  resilience.RetryConfig
	cron   *cron.Cron
	now    func() time.Time
	logger *slog.Logger
}

func NewRunner(source StatsSource, saver Saver, cfg config.SnapshotConfig) *Runner {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	return &Runner{
		source: source,
		saver:  saver,
		cfg:    cfg,
		retry: resilience.RetryConfig{
			MaxAttempts: 3,
			Backoff:     resilience.Backoff{Initial: time.Second, Max: 10 * time.Second, Multiplier: 2},
		},
		cron:   cron.New(cron.WithLocation(time.UTC)),
		now:    time.Now,
		logger: slog.Default().With("component", "snapshot"),
	}
}

// Window returns the last full window that closed at or before now, aligned
// to multiples of the window size.
func (r *Runner) Window(now time.Time) (start, end time.Time) {
	end = now.UTC().Truncate(r.cfg.Window)
	return end.Add(-r.cfg.Window), end
}

// RunOnce snapshots the window that most recently closed.
func (r *Runner) RunOnce(ctx context.Context) error {
	start, end := r.Window(r.now())
	tr := analytics.TimeRange{Start: start, End: end.Add(-time.Millisecond)}

	var stats analytics.SearchStatsResponse
	err := resilience.Retry(ctx, "snapshot-stats", r.retry, func(ctx context.Context) error {
		var err error
		stats, err = r.source.SearchStats(ctx, tr)
		return err
	})
	if err != nil {
		return fmt.Errorf("computing snapshot for %s: %w", start.Format(time.RFC3339), err)
	}

	snap := Snapshot{PeriodStart: start, PeriodEnd: end, Stats: stats}
	return resilience.Retry(ctx, "snapshot-save", r.retry, func(ctx context.Context) error {
		return r.saver.Save(ctx, snap)
	})
}

// Start schedules RunOnce on cfg.Schedule until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.cfg.Schedule, func() {
		if err := r.RunOnce(ctx); err != nil {
			r.logger.Error("snapshot failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid snapshot schedule %q: %w", r.cfg.Schedule, err)
	}
	r.cron.Start()
	r.logger.Info("snapshot scheduler started", "schedule", r.cfg.Schedule, "window", r.cfg.Window)

	go func() {
		<-ctx.Done()
		<-r.cron.Stop().Done()
		r.logger.Info("snapshot scheduler stopped")
	}()
	return nil
}
