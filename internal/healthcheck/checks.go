// Package healthcheck builds health.Check probes for the services this
// system depends on.
package healthcheck

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/queue"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/health"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type ClusterHealther interface {
	ClusterHealth(ctx context.Context) (docstore.ClusterStatus, error)
}

type QueueCounter interface {
	Counts(ctx context.Context) (queue.Counts, error)
}

// Ping reports down when p cannot be reached.
func Ping(p Pinger) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		if err := p.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	}
}

// Elasticsearch maps the cluster colour: red is down, yellow degraded.
func Elasticsearch(c ClusterHealther) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		status, err := c.ClusterHealth(ctx)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		msg := "cluster " + string(status)
		switch status {
		case docstore.ClusterGreen:
			return health.ComponentHealth{Status: health.StatusUp, Message: msg}
		case docstore.ClusterYellow:
			return health.ComponentHealth{Status: health.StatusDegraded, Message: msg}
		default:
			return health.ComponentHealth{Status: health.StatusDown, Message: msg}
		}
	}
}

// Queue reports the queue backlog. Reading the counts doubles as the Redis
// probe.
func Queue(q QueueCounter) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		c, err := q.Counts(ctx)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{
			Status: health.StatusUp,
			Message: fmt.Sprintf("waiting=%d active=%d delayed=%d dead=%d",
				c.Waiting, c.Active, c.Delayed, c.Dead),
		}
	}
}
