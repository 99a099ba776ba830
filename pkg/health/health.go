// Package health serves liveness and readiness probes.
//
// Checks run on demand when a probe is requested, concurrently and each under
// its own timeout. Results are cached for a short period so that aggressive
// probing does not turn into load on the dependencies being checked.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc reports nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Pinger is implemented by clients that can cheaply verify connectivity,
// such as *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger to a CheckFunc.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc
}

type kind int

const (
	liveness kind = iota
	readiness
)

type result struct {
	at       time.Time
	failures map[string]string
}

// Prober evaluates registered checks.
type Prober struct {
	ready atomic.Bool
	ttl   time.Duration
	now   func() time.Time

	mu     sync.Mutex
	checks [2][]check
	cache  [2]*result
}

// New returns a Prober that caches results for ttl. The service starts not
// ready; call SetReady(true) once initialization is complete.
func New(ttl time.Duration) *Prober {
	return &Prober{ttl: ttl, now: time.Now}
}

// AddLiveness registers a check that decides whether the process should be
// restarted.
func (p *Prober) AddLiveness(name string, timeout time.Duration, fn CheckFunc) {
	p.add(liveness, check{name: name, timeout: timeout, fn: fn})
}

// AddReadiness registers a check that decides whether the process should
// receive traffic.
func (p *Prober) AddReadiness(name string, timeout time.Duration, fn CheckFunc) {
	p.add(readiness, check{name: name, timeout: timeout, fn: fn})
}

func (p *Prober) add(k kind, c check) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks[k] = append(p.checks[k], c)
	p.cache[k] = nil
}

// SetReady toggles the manual readiness gate. It is cleared during graceful
// shutdown so load balancers stop routing before the server closes.
func (p *Prober) SetReady(ready bool) {
	p.ready.Store(ready)
}

// Live returns failing liveness checks by name.
func (p *Prober) Live(ctx context.Context) map[string]string {
	return p.evaluate(ctx, liveness)
}

// Ready returns failing readiness checks by name, including the manual gate.
func (p *Prober) Ready(ctx context.Context) map[string]string {
	failures := p.evaluate(ctx, readiness)
	if !p.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	return failures
}

func (p *Prober) evaluate(ctx context.Context, k kind) map[string]string {
	p.mu.Lock()
	if r := p.cache[k]; r != nil && p.now().Sub(r.at) < p.ttl {
		p.mu.Unlock()
		return clone(r.failures)
	}
	checks := slices.Clone(p.checks[k])
	p.mu.Unlock()

	var (
		mu       sync.Mutex
		failures = make(map[string]string)
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, c.timeout)
			defer cancel()
			if err := c.fn(cctx); err != nil {
				mu.Lock()
				failures[c.name] = err.Error()
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	p.cache[k] = &result{at: p.now(), failures: failures}
	p.mu.Unlock()
	return clone(failures)
}

// LiveHandler serves /livez.
func (p *Prober) LiveHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, p.Live(r.Context()))
}

// ReadyHandler serves /readyz.
func (p *Prober) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, p.Ready(r.Context()))
}

// writeStatus renders {"status":"ok"} or
// {"status":"unhealthy","checks":{...}} with 503.
func writeStatus(w http.ResponseWriter, failures map[string]string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	status := http.StatusOK
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func clone(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
