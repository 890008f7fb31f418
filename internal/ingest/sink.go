package ingest

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/queue"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/kafka"
)

// DeadLetter describes a job that will not be retried.
type DeadLetter struct {
	JobID        string    `json:"jobId"`
	JobName      string    `json:"jobName"`
	Queue        string    `json:"queue"`
	AttemptsMade int       `json:"attemptsMade"`
	Reason       string    `json:"reason"`
	Data         string    `json:"data"`
	FailedAt     time.Time `json:"failedAt"`
}

func newDeadLetter(queueName string, job *queue.Job, reason string, at time.Time) DeadLetter {
	return DeadLetter{
		JobID:        job.ID,
		JobName:      job.Name,
		Queue:        queueName,
		AttemptsMade: job.AttemptsMade,
		Reason:       reason,
		Data:         string(job.Data),
		FailedAt:     at.UTC(),
	}
}

// DeadLetterSink is told about every dead-lettered job after it is parked.
type DeadLetterSink interface {
	Notify(ctx context.Context, dl DeadLetter) error
}

// Publisher is the Kafka producer surface the sink uses.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// KafkaSink publishes dead letters keyed by job id.
type KafkaSink struct {
	publisher Publisher
}

func NewKafkaSink(p Publisher) *KafkaSink {
	return &KafkaSink{publisher: p}
}

func (s *KafkaSink) Notify(ctx context.Context, dl DeadLetter) error {
	return s.publisher.Publish(ctx, kafka.Event{
		Key:   dl.JobID,
		Value: dl,
		Headers: map[string]string{
			"queue":    dl.Queue,
			"job-name": dl.JobName,
		},
	})
}
