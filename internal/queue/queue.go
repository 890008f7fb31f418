// Package queue is a durable job queue on Redis. Jobs move from waiting to
// active when a worker reserves them and leave active only through Ack,
// Retry or DeadLetter, so a job is never lost between delivery and outcome.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoJob is returned by Reserve when nothing became ready before the poll
// timeout.
var ErrNoJob = errors.New("no job available")

const (
	promoteBatch     = 100
	defaultMaxStalls = 1
)

// Job is one unit of work.
type Job struct {
	ID           string
	Name         string
	Data         []byte
	AttemptsMade int
	StalledCount int
	Timestamp    time.Time
	FailedReason string
}

// Counts is a snapshot of the queue's state sizes.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Dead      int64 `json:"dead"`
	Completed int64 `json:"completed"`
}

type keys struct {
	wait, active, lease, delayed, dead, completed, jobPrefix string
}

func newKeys(prefix, name string) keys {
	base := name + ":"
	if prefix != "" {
		base = prefix + ":" + base
	}
	return keys{
		wait:      base + "wait",
		active:    base + "active",
		lease:     base + "lease",
		delayed:   base + "delayed",
		dead:      base + "dead",
		completed: base + "completed",
		jobPrefix: base + "job:",
	}
}

// Queue is safe for concurrent use by many workers and processes.
type Queue struct {
	rdb       redis.UniversalClient
	name      string
	keys      keys
	lease     time.Duration
	maxStalls int
	now       func() time.Time
	logger    *slog.Logger
}

// New binds a queue named cfg.Name to rdb.
func New(rdb redis.UniversalClient, cfg config.QueueConfig) *Queue {
	lease := cfg.LeaseDuration
	if lease <= 0 {
		lease = 30 * time.Second
	}
	return &Queue{
		rdb:       rdb,
		name:      cfg.Name,
		keys:      newKeys(cfg.KeyPrefix, cfg.Name),
		lease:     lease,
		maxStalls: defaultMaxStalls,
		now:       time.Now,
		logger:    slog.Default().With("component", "queue", "queue", cfg.Name),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) jobKey(id string) string {
	return q.keys.jobPrefix + id
}

// Add enqueues data under a new job id and returns it.
func (q *Queue) Add(ctx context.Context, name string, data []byte) (string, error) {
	id := uuid.NewString()
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(id),
			"name", name,
			"data", data,
			"attemptsMade", 0,
			"timestamp", q.now().UnixMilli(),
		)
		pipe.LPush(ctx, q.keys.wait, id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("adding job to %s: %w", q.name, err)
	}
	return id, nil
}

// AddJSON encodes v and enqueues it.
func (q *Queue) AddJSON(ctx context.Context, name string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding job payload: %w", err)
	}
	return q.Add(ctx, name, data)
}

// Reserve hands the oldest waiting job to the caller, blocking up to wait.
// The job stays leased to the caller until Ack, Retry or DeadLetter; if none
// happens before the lease expires, Reclaim makes it available again.
// Leases are fixed-length and never renewed, so the caller must finish
// within the configured lease duration.
func (q *Queue) Reserve(ctx context.Context, wait time.Duration) (*Job, error) {
	if _, err := q.PromoteDelayed(ctx); err != nil {
		return nil, err
	}

	id, err := q.rdb.BLMove(ctx, q.keys.wait, q.keys.active, "RIGHT", "LEFT", wait).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("reserving job from %s: %w", q.name, err)
	}

	deadline := q.now().Add(q.lease).UnixMilli()
	if err := q.rdb.ZAdd(ctx, q.keys.lease, redis.Z{Score: float64(deadline), Member: id}).Err(); err != nil {
		return nil, fmt.Errorf("leasing job %s: %w", id, err)
	}

	fields, err := q.rdb.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}
	if len(fields) == 0 {
		q.logger.Warn("dropping job without data", "job_id", id)
		q.release(ctx, id)
		return nil, ErrNoJob
	}
	return parseJob(id, fields), nil
}

func parseJob(id string, fields map[string]string) *Job {
	job := &Job{
		ID:           id,
		Name:         fields["name"],
		Data:         []byte(fields["data"]),
		FailedReason: fields["failedReason"],
	}
	job.AttemptsMade, _ = strconv.Atoi(fields["attemptsMade"])
	job.StalledCount, _ = strconv.Atoi(fields["stalledCount"])
	if ms, err := strconv.ParseInt(fields["timestamp"], 10, 64); err == nil {
		job.Timestamp = time.UnixMilli(ms).UTC()
	}
	return job
}

func (q *Queue) release(ctx context.Context, id string) {
	q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.keys.active, 1, id)
		pipe.ZRem(ctx, q.keys.lease, id)
		return nil
	})
}

// Ack marks job completed and removes its data.
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.keys.active, 1, job.ID)
		pipe.ZRem(ctx, q.keys.lease, job.ID)
		pipe.Del(ctx, q.jobKey(job.ID))
		pipe.Incr(ctx, q.keys.completed)
		return nil
	})
	if err != nil {
		return fmt.Errorf("acking job %s: %w", job.ID, err)
	}
	return nil
}

// Retry records a failed attempt and schedules job to run again after delay.
func (q *Queue) Retry(ctx context.Context, job *Job, delay time.Duration, reason string) error {
	runAt := q.now().Add(delay).UnixMilli()
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.keys.active, 1, job.ID)
		pipe.ZRem(ctx, q.keys.lease, job.ID)
		pipe.HIncrBy(ctx, q.jobKey(job.ID), "attemptsMade", 1)
		pipe.HSet(ctx, q.jobKey(job.ID), "failedReason", reason)
		pipe.ZAdd(ctx, q.keys.delayed, redis.Z{Score: float64(runAt), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("scheduling retry of job %s: %w", job.ID, err)
	}
	job.AttemptsMade++
	job.FailedReason = reason
	return nil
}

// DeadLetter records a final failed attempt and parks job on the dead list,
// where it stays until an operator removes it.
func (q *Queue) DeadLetter(ctx context.Context, job *Job, reason string) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.keys.active, 1, job.ID)
		pipe.ZRem(ctx, q.keys.lease, job.ID)
		pipe.HIncrBy(ctx, q.jobKey(job.ID), "attemptsMade", 1)
		pipe.HSet(ctx, q.jobKey(job.ID),
			"failedReason", reason,
			"finishedOn", q.now().UnixMilli(),
		)
		pipe.LPush(ctx, q.keys.dead, job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-lettering job %s: %w", job.ID, err)
	}
	job.AttemptsMade++
	job.FailedReason = reason
	return nil
}

// PromoteDelayed moves delayed jobs whose time has come onto the wait list.
func (q *Queue) PromoteDelayed(ctx context.Context) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb,
		[]string{q.keys.delayed, q.keys.wait},
		q.now().UnixMilli(), promoteBatch,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("promoting delayed jobs: %w", err)
	}
	return n, nil
}

// Reclaim requeues active jobs whose lease has expired and returns how many
// were requeued and how many were dead-lettered.
func (q *Queue) Reclaim(ctx context.Context) (requeued, dead int, err error) {
	res, err := reclaimScript.Run(ctx, q.rdb,
		[]string{q.keys.active, q.keys.lease, q.keys.wait, q.keys.dead},
		q.now().UnixMilli(), q.lease.Milliseconds(), q.maxStalls, q.keys.jobPrefix,
	).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("reclaiming stalled jobs: %w", err)
	}
	if len(res) == 2 {
		requeued, dead = int(res[0]), int(res[1])
	}
	if requeued > 0 || dead > 0 {
		q.logger.Warn("stalled jobs reclaimed", "requeued", requeued, "dead_lettered", dead)
	}
	return requeued, dead, nil
}

// Counts returns the number of jobs in each state.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	var (
		wait, active, dead *redis.IntCmd
		delayed            *redis.IntCmd
		completed          *redis.StringCmd
	)
	_, err := q.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		wait = pipe.LLen(ctx, q.keys.wait)
		active = pipe.LLen(ctx, q.keys.active)
		delayed = pipe.ZCard(ctx, q.keys.delayed)
		dead = pipe.LLen(ctx, q.keys.dead)
		completed = pipe.Get(ctx, q.keys.completed)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Counts{}, fmt.Errorf("counting jobs in %s: %w", q.name, err)
	}
	c := Counts{
		Waiting: wait.Val(),
		Active:  active.Val(),
		Delayed: delayed.Val(),
		Dead:    dead.Val(),
	}
	c.Completed, _ = strconv.ParseInt(completed.Val(), 10, 64)
	return c, nil
}

// DeadJobs returns up to limit dead-lettered jobs, newest first.
func (q *Queue) DeadJobs(ctx context.Context, limit int64) ([]*Job, error) {
	ids, err := q.rdb.LRange(ctx, q.keys.dead, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing dead jobs: %w", err)
	}
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		fields, err := q.rdb.HGetAll(ctx, q.jobKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("loading dead job %s: %w", id, err)
		}
		jobs = append(jobs, parseJob(id, fields))
	}
	return jobs, nil
}
