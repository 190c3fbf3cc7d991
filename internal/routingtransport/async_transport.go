package routingtransport

import (
	"net/http"

	"github.com/sourcegraph/conc/pool"

	"github.com/mharriscode/aoai-priority-transport/internal/backend"
	"github.com/mharriscode/aoai-priority-transport/internal/selector"
)

// AsyncTransport is the cooperative-suspension variant of the routing
// transport (spec.md Section 5). It shares the exact same state machine as
// Transport; the only difference is how DISPATCH is performed: the
// underlying RoundTrip call runs on a goroutine drawn from a worker pool
// (bounded when maxGoroutines > 0), and the calling goroutine suspends on a
// channel select against the request's context instead of blocking
// directly on the call. That means a cancelled context returns control
// immediately even if the underlying dispatch is still in flight. The
// abandoned attempt stays counted in the backend's attempts (recorded
// before dispatch), but no success or throttle is recorded for it.
type AsyncTransport struct {
	core       *core
	Underlying http.RoundTripper
	pool       *pool.Pool
}

// NewAsyncTransport builds an AsyncTransport. maxGoroutines bounds the
// dispatch pool; a value <= 0 leaves it unbounded, matching conc/pool's own
// default. If underlying is nil, http.DefaultTransport is used.
func NewAsyncTransport(reg *backend.Registry, sel *selector.Selector, logger backend.Logger, underlying http.RoundTripper, maxGoroutines int) *AsyncTransport {
	if underlying == nil {
		underlying = http.DefaultTransport
	}

	p := pool.New()
	if maxGoroutines > 0 {
		p = p.WithMaxGoroutines(maxGoroutines)
	}

	return &AsyncTransport{
		core:       newCore(reg, sel, logger),
		Underlying: underlying,
		pool:       p,
	}
}

// RoundTrip implements http.RoundTripper. It is "cooperative" in the sense
// that the one blocking call per attempt -- the underlying dispatch -- runs
// off the caller's goroutine, freeing the caller to be interrupted by
// context cancellation instead of being pinned to the network call.
func (t *AsyncTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.core.handle(req, t.dispatch)
}

type dispatchResult struct {
	resp *http.Response
	err  error
}

func (t *AsyncTransport) dispatch(req *http.Request) (*http.Response, error) {
	resultCh := make(chan dispatchResult, 1)

	t.pool.Go(func() {
		resp, err := t.Underlying.RoundTrip(req)
		resultCh <- dispatchResult{resp: resp, err: err}
	})

	select {
	case result := <-resultCh:
		return result.resp, result.err
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
}

// Wait blocks until every dispatch the pool has been asked to run so far
// has completed. Intended for orderly shutdown; not required for ordinary
// request handling.
func (t *AsyncTransport) Wait() {
	t.pool.Wait()
}

// SetMetrics wires an optional MetricsSink that receives every attempt,
// success, and throttle observation the state machine makes, alongside the
// registry's own counters. Passing nil detaches it.
func (t *AsyncTransport) SetMetrics(sink MetricsSink) {
	t.core.setMetrics(sink)
}
