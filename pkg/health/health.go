// Package health exposes liveness and readiness probes for the API server.
//
// Probes run on a shared ticker in a single background goroutine. A probe
// flips to unhealthy only after three consecutive failures, and back to
// healthy on the first success, so transient blips do not flap the readiness
// endpoint.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const failureThreshold = 3

// ProbeFunc reports nil when the probed component is healthy.
type ProbeFunc func(ctx context.Context) error

type probe struct {
	name    string
	timeout time.Duration
	fn      ProbeFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]
	fails   int
}

func (p *probe) exec(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.fn(ctx)
	p.lastErr.Store(&err)

	if err != nil {
		p.fails++
		if p.fails >= failureThreshold {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	p.healthy.Store(true)
}

func (p *probe) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	if errp := p.lastErr.Load(); errp != nil && *errp != nil {
		return (*errp).Error(), true
	}
	return "probe is unhealthy", true
}

// Checker runs registered probes and serves /livez and /readyz.
type Checker struct {
	ready atomic.Bool

	mu        sync.Mutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

func New() *Checker {
	return &Checker{}
}

// AddLiveness registers a probe gating the liveness endpoint.
func (c *Checker) AddLiveness(name string, timeout time.Duration, fn ProbeFunc) {
	c.add(&c.liveness, name, timeout, fn)
}

// AddReadiness registers a probe gating the readiness endpoint.
func (c *Checker) AddReadiness(name string, timeout time.Duration, fn ProbeFunc) {
	c.add(&c.readiness, name, timeout, fn)
}

func (c *Checker) add(dst *[]*probe, name string, timeout time.Duration, fn ProbeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := &probe{name: name, timeout: timeout, fn: fn}
	p.healthy.Store(true)
	*dst = append(*dst, p)
}

// Start runs all registered probes at the given interval until Stop is
// called or ctx is cancelled. Register probes before calling Start.
func (c *Checker) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	probes := make([]*probe, 0, len(c.liveness)+len(c.readiness))
	probes = append(probes, c.liveness...)
	probes = append(probes, c.readiness...)
	c.mu.Unlock()

	go func() {
		for _, p := range probes {
			p.exec(ctx)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, p := range probes {
					p.exec(ctx)
				}
			}
		}
	}()
}

// Stop cancels the probe loop. Safe to call more than once.
func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// SetReady marks the service ready (after startup) or not ready (during
// graceful shutdown, to drain traffic).
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// LiveEndpoint serves the liveness probe.
func (c *Checker) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	c.mu.Lock()
	probes := append([]*probe(nil), c.liveness...)
	c.mu.Unlock()

	writeStatus(w, collect(probes))
}

// ReadyEndpoint serves the readiness probe. It fails unless the service has
// been marked ready and every readiness probe is passing.
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	c.mu.Lock()
	probes := append([]*probe(nil), c.readiness...)
	c.mu.Unlock()

	failures := collect(probes)
	if !c.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

func collect(probes []*probe) map[string]string {
	failures := make(map[string]string)
	for _, p := range probes {
		if msg, failed := p.failure(); failed {
			failures[p.name] = msg
		}
	}
	return failures
}

func writeStatus(w http.ResponseWriter, failures map[string]string) {
	type response struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}

	w.Header().Set("Content-Type", "application/json")
	resp := response{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
