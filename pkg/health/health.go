// Package health runs dependency probes for the liveness and readiness
// endpoints.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// Component is the outcome of one probe.
type Component struct {
	Status    Status  `json:"status"`
	Error     string  `json:"error,omitempty"`
	Optional  bool    `json:"optional,omitempty"`
	LatencyMs float64 `json:"latency_ms"`
}

// Report aggregates every probe. Status is the worst component status,
// where a failing optional dependency only degrades the service.
type Report struct {
	Status     Status               `json:"status"`
	Components map[string]Component `json:"components"`
	CheckedAt  time.Time            `json:"checked_at"`
}

type probe struct {
	check    Check
	optional bool
}

// Checker holds the registered probes. It is safe for concurrent use.
type Checker struct {
	mu      sync.RWMutex
	probes  map[string]probe
	timeout time.Duration
	log     *slog.Logger
}

// NewChecker creates a Checker whose readiness probes time out after
// five seconds.
func NewChecker() *Checker {
	return &Checker{
		probes:  make(map[string]probe),
		timeout: 5 * time.Second,
		log:     slog.Default().With("component", "health"),
	}
}

// Register adds a required dependency; its failure marks the service down.
func (c *Checker) Register(name string, check Check) {
	c.add(name, probe{check: check})
}

// RegisterOptional adds a dependency the service can run without.
func (c *Checker) RegisterOptional(name string, check Check) {
	c.add(name, probe{check: check, optional: true})
}

func (c *Checker) add(name string, p probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = p
}

// Run probes every dependency in parallel.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	probes := make(map[string]probe, len(c.probes))
	for name, p := range c.probes {
		probes[name] = p
	}
	c.mu.RUnlock()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out = make(map[string]Component, len(probes))
	)
	for name, p := range probes {
		wg.Go(func() {
			comp := runProbe(ctx, p)
			mu.Lock()
			out[name] = comp
			mu.Unlock()
		})
	}
	wg.Wait()

	report := Report{Status: StatusUp, Components: out, CheckedAt: time.Now().UTC()}
	for name, comp := range out {
		switch {
		case comp.Status == StatusDown:
			c.log.Warn("dependency down", "dependency", name, "error", comp.Error)
			report.Status = StatusDown
		case comp.Status == StatusDegraded && report.Status == StatusUp:
			report.Status = StatusDegraded
		}
	}
	return report
}

func runProbe(ctx context.Context, p probe) Component {
	start := time.Now()
	err := p.check(ctx)
	comp := Component{
		Status:    StatusUp,
		Optional:  p.optional,
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		comp.Error = err.Error()
		comp.Status = StatusDown
		if p.optional {
			comp.Status = StatusDegraded
		}
	}
	return comp
}

// LiveHandler answers 200 while the process can serve HTTP at all.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]Status{"status": StatusUp})
	}
}

// ReadyHandler answers 503 when a required dependency is down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
		defer cancel()
		report := c.Run(ctx)
		status := http.StatusOK
		if report.Status == StatusDown {
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
