// Package ingest drains search metric jobs from the queue into the index
// writer. Each job ends acknowledged, scheduled for retry, or dead-lettered.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/event"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/queue"
	apperrors "github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/errors"
)

// Outcome is what should happen to a job after one processing attempt.
type Outcome int

const (
	OutcomeAck Outcome = iota
	OutcomeRetry
	OutcomeDeadLetter
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeRetry:
		return "retry"
	case OutcomeDeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// Result carries the outcome of one attempt and, for failures, the cause.
type Result struct {
	Outcome Outcome
	Err     error
}

// Writer persists a decoded event.
type Writer interface {
	Write(ctx context.Context, ev *event.SearchMetricEvent) error
}

// Processor turns one job into a Result. It never panics on bad input and
// never signals retry through a returned error.
type Processor struct {
	writer       Writer
	jobName      string
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewProcessor creates a Processor accepting jobs named jobName.
func NewProcessor(w Writer, jobName string, writeTimeout time.Duration) *Processor {
	if jobName == "" {
		jobName = event.JobName
	}
	return &Processor{
		writer:       w,
		jobName:      jobName,
		writeTimeout: writeTimeout,
		logger:       slog.Default().With("component", "ingest-processor"),
	}
}

// Process decodes job and writes it. Malformed payloads and permanent store
// rejections are dead-lettered at once; transient failures ask for a retry.
func (p *Processor) Process(ctx context.Context, job *queue.Job) Result {
	if job.Name != p.jobName {
		return Result{
			Outcome: OutcomeDeadLetter,
			Err:     fmt.Errorf("unexpected job name %q: %w", job.Name, apperrors.ErrMalformedPayload),
		}
	}

	ev, err := event.Decode(job.Data)
	if err != nil {
		return Result{Outcome: OutcomeDeadLetter, Err: err}
	}
	if ev.HitsMismatch() {
		p.logger.Debug("hitsCount differs from hits",
			"request_id", ev.RequestID,
			"hits_count", ev.HitsCount,
			"hits", len(ev.Hits),
		)
	}

	if p.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.writeTimeout)
		defer cancel()
	}
	if err := p.writer.Write(ctx, ev); err != nil {
		if retryable(err) {
			return Result{Outcome: OutcomeRetry, Err: err}
		}
		return Result{Outcome: OutcomeDeadLetter, Err: err}
	}
	return Result{Outcome: OutcomeAck}
}

func retryable(err error) bool {
	return docstore.IsTransient(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
