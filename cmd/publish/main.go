// Command publish enqueues search-metric jobs for local testing: either
// -count random events spread over the past week or one fixed -sample event.
//
// Usage:
//
//	go run ./cmd/publish [-config configs/development.yaml] [-count 100] [-sample]
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/queue"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/redis"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	count := flag.Int("count", 100, "number of generated events")
	sample := flag.Bool("sample", false, "publish the single fixed sample event")
	concurrency := flag.Int("concurrency", 8, "parallel publishers")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to redis: %v\n", err)
		os.Exit(1)
	}
	defer rdb.Close()
	q := queue.New(rdb.Redis(), cfg.Queue)

	if *sample {
		ev := sampleEvent(time.Now())
		id, err := q.AddJSON(ctx, cfg.Queue.JobName, ev)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to publish sample event: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("published sample event\n  job id:     %s\n  request id: %s\n  query:      %s\n", id, ev.RequestID, ev.Query)
		return
	}

	fmt.Printf("publishing %d events to %s\n", *count, q.Name())
	start := time.Now()
	published, err := publish(ctx, q, cfg.Queue.JobName, *count, *concurrency)
	elapsed := time.Since(start)
	fmt.Printf("published:   %d\n", published)
	fmt.Printf("elapsed:     %s\n", elapsed.Round(time.Millisecond))
	if elapsed > 0 {
		fmt.Printf("rate:        %.0f events/s\n", float64(published)/elapsed.Seconds())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "publish failed: %v\n", err)
		os.Exit(1)
	}
}

type jobAdder interface {
	AddJSON(ctx context.Context, name string, v any) (string, error)
}

// publish enqueues count generated events using up to concurrency
// goroutines and returns how many were accepted.
func publish(ctx context.Context, q jobAdder, jobName string, count, concurrency int) (int64, error) {
	var published atomic.Int64
	now := time.Now()
	seed := uint64(now.UnixNano())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i := range count {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(seed, uint64(i)))
			ev := generateEvent(rng, now)
			if _, err := q.AddJSON(ctx, jobName, ev); err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
			published.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return published.Load(), err
}
