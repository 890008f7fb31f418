package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/queue"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/resilience"
	"golang.org/x/sync/errgroup"
)

// JobQueue is the queue surface the consumer drives.
type JobQueue interface {
	Name() string
	Reserve(ctx context.Context, wait time.Duration) (*queue.Job, error)
	Ack(ctx context.Context, job *queue.Job) error
	Retry(ctx context.Context, job *queue.Job, delay time.Duration, reason string) error
	DeadLetter(ctx context.Context, job *queue.Job, reason string) error
	Reclaim(ctx context.Context) (requeued, dead int, err error)
	Counts(ctx context.Context) (queue.Counts, error)
}

// Consumer runs a fixed pool of workers, each holding at most one job, so
// backlog stays in the queue rather than in memory.
type Consumer struct {
	queue        JobQueue
	processor    *Processor
	sink         DeadLetterSink
	metrics      *metrics.Metrics
	concurrency  int
	maxAttempts  int
	backoff      resilience.Backoff
	pollTimeout  time.Duration
	reclaimEvery time.Duration
	logger       *slog.Logger
}

// NewConsumer wires a consumer from cfg. sink and m may be nil.
func NewConsumer(q JobQueue, p *Processor, cfg config.QueueConfig, sink DeadLetterSink, m *metrics.Metrics) *Consumer {
	c := &Consumer{
		queue:       q,
		processor:   p,
		sink:        sink,
		metrics:     m,
		concurrency: cfg.Concurrency,
		maxAttempts: cfg.MaxAttempts,
		backoff: resilience.Backoff{
			Initial:    cfg.InitialDelay,
			Max:        cfg.MaxDelay,
			Multiplier: cfg.Multiplier,
			Jitter:     0.1,
		},
		pollTimeout:  cfg.PollTimeout,
		reclaimEvery: cfg.ReclaimEvery,
		logger:       slog.Default().With("component", "ingest-consumer", "queue", q.Name()),
	}
	if c.concurrency <= 0 {
		c.concurrency = 1
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 1
	}
	if c.pollTimeout <= 0 {
		c.pollTimeout = 2 * time.Second
	}
	return c
}

// Run blocks until ctx is cancelled. Jobs already in flight are finished
// before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer starting",
		"concurrency", c.concurrency,
		"max_attempts", c.maxAttempts,
	)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.concurrency; i++ {
		worker := i
		g.Go(func() error {
			c.work(ctx, worker)
			return nil
		})
	}
	if c.reclaimEvery > 0 {
		g.Go(func() error {
			c.maintain(ctx)
			return nil
		})
	}
	err := g.Wait()
	c.logger.Info("consumer stopped")
	return err
}

func (c *Consumer) work(ctx context.Context, worker int) {
	logger := c.logger.With("worker", worker)
	failures := 0
	for ctx.Err() == nil {
		job, err := c.queue.Reserve(ctx, c.pollTimeout)
		if errors.Is(err, queue.ErrNoJob) {
			failures = 0
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			delay := c.backoff.Delay(failures)
			logger.Error("reserve failed", "error", err, "next_delay", delay)
			sleep(ctx, delay)
			continue
		}
		failures = 0
		c.Handle(ctx, job)
	}
}

// Handle processes one reserved job and applies its outcome. The job's own
// work is not cut short by ctx cancellation so that shutdown drains cleanly.
func (c *Consumer) Handle(ctx context.Context, job *queue.Job) Outcome {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	logger := c.logger.With("job_id", job.ID, "attempt", job.AttemptsMade+1)

	res := c.processor.Process(ctx, job)
	outcome := res.Outcome
	var err error
	switch outcome {
	case OutcomeAck:
		err = c.queue.Ack(ctx, job)
		logger.Debug("job completed")
	case OutcomeRetry:
		attempt := job.AttemptsMade + 1
		if attempt >= c.maxAttempts {
			outcome = OutcomeDeadLetter
			err = c.deadLetter(ctx, job, fmt.Sprintf("exhausted %d attempts: %v", attempt, res.Err))
			break
		}
		delay := c.backoff.Delay(attempt)
		logger.Warn("job failed, retrying", "error", res.Err, "next_delay", delay)
		err = c.queue.Retry(ctx, job, delay, res.Err.Error())
	case OutcomeDeadLetter:
		err = c.deadLetter(ctx, job, res.Err.Error())
	}
	if err != nil {
		// The job stays active; its lease expiry returns it to the queue.
		logger.Error("failed to record job outcome", "outcome", outcome, "error", err)
	}

	if c.metrics != nil {
		c.metrics.JobsProcessedTotal.WithLabelValues(outcome.String()).Inc()
		c.metrics.JobDuration.Observe(time.Since(start).Seconds())
	}
	return outcome
}

func (c *Consumer) deadLetter(ctx context.Context, job *queue.Job, reason string) error {
	if err := c.queue.DeadLetter(ctx, job, reason); err != nil {
		return err
	}
	c.logger.Warn("job dead-lettered",
		"job_id", job.ID,
		"attempts", job.AttemptsMade,
		"reason", reason,
	)
	if c.sink != nil {
		dl := newDeadLetter(c.queue.Name(), job, reason, time.Now())
		if err := c.sink.Notify(ctx, dl); err != nil {
			c.logger.Error("dead letter notification failed", "job_id", job.ID, "error", err)
		}
	}
	return nil
}

// maintain periodically reclaims stalled jobs and publishes queue depth.
func (c *Consumer) maintain(ctx context.Context) {
	ticker := time.NewTicker(c.reclaimEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := c.queue.Reclaim(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("reclaim failed", "error", err)
			}
			c.recordDepth(ctx)
		}
	}
}

func (c *Consumer) recordDepth(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	counts, err := c.queue.Counts(ctx)
	if err != nil {
		return
	}
	c.metrics.QueueDepth.WithLabelValues("waiting").Set(float64(counts.Waiting))
	c.metrics.QueueDepth.WithLabelValues("active").Set(float64(counts.Active))
	c.metrics.QueueDepth.WithLabelValues("delayed").Set(float64(counts.Delayed))
	c.metrics.QueueDepth.WithLabelValues("dead").Set(float64(counts.Dead))
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
