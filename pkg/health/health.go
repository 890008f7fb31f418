// Package health runs dependency probes concurrently and serves the
// liveness, readiness and report endpoints built from them.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// probeTimeout bounds a whole Run when served over HTTP.
const probeTimeout = 5 * time.Second

// Check probes one dependency. It should honour ctx and never panic.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Checker is a registry of named checks. It is safe for concurrent use.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
	logger *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]Check),
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

func (c *Checker) snapshot() (names []string, checks []Check) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		checks = append(checks, c.checks[name])
	}
	return names, checks
}

// Run executes every check in parallel. The report is up when all
// components are up, down when all are down and degraded in between.
func (c *Checker) Run(ctx context.Context) Report {
	names, checks := c.snapshot()
	results := make([]ComponentHealth, len(checks))

	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Go(func() {
			start := time.Now()
			results[i] = check(ctx)
			results[i].Latency = time.Since(start).Round(time.Millisecond).String()
		})
	}
	wg.Wait()

	report := Report{
		Components: make(map[string]ComponentHealth, len(names)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	up, down := 0, 0
	for i, name := range names {
		report.Components[name] = results[i]
		switch results[i].Status {
		case StatusUp:
			up++
		case StatusDown:
			down++
		}
	}
	switch {
	case up == len(names):
		report.Status = StatusUp
	case down == len(names):
		report.Status = StatusDown
	default:
		report.Status = StatusDegraded
	}
	if report.Status != StatusUp {
		c.logger.Warn("health check not passing", "status", report.Status)
	}
	return report
}

// LiveHandler always answers 200 while the process can serve HTTP.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 200 only when every component is up.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return c.serveReport(func(s Status) bool { return s == StatusUp })
}

// ReportHandler serves the full report, answering 503 only when every
// component is down.
func (c *Checker) ReportHandler() http.HandlerFunc {
	return c.serveReport(func(s Status) bool { return s != StatusDown })
}

func (c *Checker) serveReport(healthy func(Status) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()
		report := c.Run(ctx)
		status := http.StatusOK
		if !healthy(report.Status) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
