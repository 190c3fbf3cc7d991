package healthprobe

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/mharriscode/aoai-priority-transport/internal/backend"
)

// registry is the subset of *backend.Registry the prober depends on.
type registry interface {
	Len() int
	BackendView(index int) (host string, priority int, apiKey string)
	MarkThrottled(index int, retryAfterSeconds int, now time.Time)
}

// Config controls probe cadence and the path probed on each backend.
type Config struct {
	// Interval between probe rounds for a given backend.
	Interval time.Duration
	// Path is the request path probed on each backend, e.g. "/" or
	// "/healthz". Defaults to "/" when empty.
	Path string
	// Timeout bounds a single probe request.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that stops
	// probing for ResetTimeout.
	FailureThreshold int
	// ResetTimeout is how long probing stays paused after FailureThreshold
	// consecutive failures, before the prober tries again.
	ResetTimeout time.Duration
	// BackoffSeconds is the retry_after duration applied via
	// MarkThrottled when a probe streak trips the gate.
	BackoffSeconds int
	// Transport overrides the http.RoundTripper used to issue probe
	// requests. Defaults to http.DefaultTransport; tests substitute a fake
	// here instead of dialing real hosts over TLS.
	Transport http.RoundTripper
}

// DefaultConfig returns the probe defaults used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Interval:         30 * time.Second,
		Path:             "/",
		Timeout:          5 * time.Second,
		FailureThreshold: 3,
		ResetTimeout:     60 * time.Second,
		BackoffSeconds:   30,
	}
}

// probeGate is the one piece of circuit-breaking behavior the prober
// actually needs: after FailureThreshold consecutive probe failures, stop
// probing a backend until ResetTimeout elapses. There is no half-open
// trial state and no separate CLOSED/OPEN bookkeeping -- a success at any
// point resets the streak, and once blockedUntil passes, probing simply
// resumes on the next tick.
type probeGate struct {
	mu           sync.Mutex
	failures     int
	threshold    int
	resetTimeout time.Duration
	blockedUntil time.Time
}

func newProbeGate(threshold int, resetTimeout time.Duration) *probeGate {
	return &probeGate{threshold: threshold, resetTimeout: resetTimeout}
}

// allow reports whether a probe may run now.
func (g *probeGate) allow(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blockedUntil.IsZero() || !now.Before(g.blockedUntil)
}

func (g *probeGate) recordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = 0
	g.blockedUntil = time.Time{}
}

// recordFailure counts a failed probe and reports whether this failure
// just crossed the threshold, blocking further probes until resetTimeout
// elapses.
func (g *probeGate) recordFailure(now time.Time) (tripped bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failures++
	if g.failures >= g.threshold {
		g.blockedUntil = now.Add(g.resetTimeout)
		return true
	}
	return false
}

// Prober periodically issues a GET against every configured backend on its
// own goroutine and marks a backend throttling once its probe gate trips.
// It is entirely additive: the reactive 429/5xx path keeps working whether
// or not a Prober is running.
type Prober struct {
	registry registry
	gates    []*probeGate
	client   *http.Client
	cfg      Config
	logger   backend.Logger
}

// New builds a Prober. A nil logger is replaced with a no-op implementation.
func New(reg *backend.Registry, cfg Config, logger backend.Logger) *Prober {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig().ResetTimeout
	}
	if cfg.BackoffSeconds <= 0 {
		cfg.BackoffSeconds = DefaultConfig().BackoffSeconds
	}
	if logger == nil {
		logger = noopLogger{}
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	gates := make([]*probeGate, reg.Len())
	for i := range gates {
		gates[i] = newProbeGate(cfg.FailureThreshold, cfg.ResetTimeout)
	}

	return &Prober{
		registry: reg,
		gates:    gates,
		client:   &http.Client{Timeout: cfg.Timeout, Transport: transport},
		cfg:      cfg,
		logger:   logger,
	}
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Run launches one goroutine per backend and blocks until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	done := make(chan struct{}, p.registry.Len())
	for i := 0; i < p.registry.Len(); i++ {
		go func(index int) {
			p.probeLoop(ctx, index)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < p.registry.Len(); i++ {
		<-done
	}
}

func (p *Prober) probeLoop(ctx context.Context, index int) {
	host, _, _ := p.registry.BackendView(index)
	gate := p.gates[index]

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !gate.allow(time.Now()) {
				continue
			}
			p.probeOnce(ctx, index, host, gate)
		}
	}
}

func (p *Prober) probeOnce(ctx context.Context, index int, host string, gate *probeGate) {
	url := "https://" + host + p.cfg.Path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.fail(index, host, gate)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.fail(index, host, gate)
		return
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.fail(index, host, gate)
		return
	}

	gate.recordSuccess()
	p.logger.Info("health probe succeeded", "host", host, "status", resp.StatusCode)
}

func (p *Prober) fail(index int, host string, gate *probeGate) {
	if gate.recordFailure(time.Now()) {
		p.logger.Warn("health probe failure streak tripped the gate, throttling backend", "host", host)
		p.registry.MarkThrottled(index, p.cfg.BackoffSeconds, time.Now())
	}
}
