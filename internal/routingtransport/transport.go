package routingtransport

import (
	"net/http"

	"github.com/mharriscode/aoai-priority-transport/internal/backend"
	"github.com/mharriscode/aoai-priority-transport/internal/selector"
)

// Transport is the blocking variant of the routing transport: it
// implements http.RoundTripper and dispatches to the underlying transport
// directly on the calling goroutine. Wrap it in an *http.Client the same
// way any other custom RoundTripper is wired in.
type Transport struct {
	core       *core
	Underlying http.RoundTripper
}

// NewTransport builds a blocking Transport. If underlying is nil,
// http.DefaultTransport is used. A nil logger is replaced with a no-op
// implementation.
func NewTransport(reg *backend.Registry, sel *selector.Selector, logger backend.Logger, underlying http.RoundTripper) *Transport {
	if underlying == nil {
		underlying = http.DefaultTransport
	}
	return &Transport{
		core:       newCore(reg, sel, logger),
		Underlying: underlying,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.core.handle(req, t.Underlying.RoundTrip)
}

// SetMetrics wires an optional MetricsSink that receives every attempt,
// success, and throttle observation the state machine makes, alongside the
// registry's own counters. Passing nil detaches it.
func (t *Transport) SetMetrics(sink MetricsSink) {
	t.core.setMetrics(sink)
}
