package routingtransport

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mharriscode/aoai-priority-transport/internal/backend"
	"github.com/mharriscode/aoai-priority-transport/internal/selector"
)

// retriableServerErrors is the pinned set of 5xx codes treated the same
// way as 429 (spec.md Section 9: "this spec pins it to {500, 502, 503,
// 504} and treats others as pass-through").
var retriableServerErrors = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// defaultRetryAfterSeconds is used when a 429/5xx response is missing a
// usable Retry-After header (spec.md Section 9 resolves the source's
// inconsistency in favor of a flat 10 seconds).
const defaultRetryAfterSeconds = 10

// registry is the subset of *backend.Registry the core depends on.
type registry interface {
	RecordAttempt(index int)
	RecordSuccess(index int)
	MarkThrottled(index int, retryAfterSeconds int, now time.Time)
	BackendView(index int) (host string, priority int, apiKey string)
}

// MetricsSink receives attempt/success/throttle observations alongside the
// registry's own counters, so an admin-facing snapshot (internal/obsmetrics)
// can be kept without the core importing that package directly. Wiring one
// via Transport.SetMetrics / AsyncTransport.SetMetrics is optional; a
// Transport with none set records to the registry only.
type MetricsSink interface {
	RecordAttempt(host string)
	RecordSuccess(host string, duration time.Duration, statusCode int)
	RecordThrottle(host string, statusCode int)
}

type noopMetricsSink struct{}

func (noopMetricsSink) RecordAttempt(string) {}
func (noopMetricsSink) RecordSuccess(string, time.Duration, int) {}
func (noopMetricsSink) RecordThrottle(string, int) {}

// dispatchFunc sends a fully-rewritten request through the underlying
// transport. Transport supplies a direct call; AsyncTransport supplies a
// pooled, cancellation-aware call. This is the one seam the two transport
// variants differ on (spec.md Section 9).
type dispatchFunc func(*http.Request) (*http.Response, error)

type core struct {
	registry registry
	selector *selector.Selector
	logger   backend.Logger
	metrics  MetricsSink
}

func newCore(reg registry, sel *selector.Selector, logger backend.Logger) *core {
	if logger == nil {
		logger = noopLogger{}
	}
	return &core{registry: reg, selector: sel, logger: logger, metrics: noopMetricsSink{}}
}

// setMetrics wires an optional metrics sink after construction. Passing nil
// restores the no-op default.
func (c *core) setMetrics(sink MetricsSink) {
	if sink == nil {
		sink = noopMetricsSink{}
	}
	c.metrics = sink
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// handle runs the SELECT -> DISPATCH -> INTERPRET -> (SELECT | RETURN)
// state machine for one inbound request, using dispatch to perform the
// underlying HTTP call at the DISPATCH step.
func (c *core) handle(req *http.Request, dispatch dispatchFunc) (*http.Response, error) {
	first := true

	for {
		now := time.Now()
		decision := c.selector.Select(now)

		if !decision.Available {
			c.logger.Warn("no backend available", "retry_after_seconds", decision.RetryAfterSeconds)
			return synthesizeTooManyRequests(decision.RetryAfterSeconds), nil
		}

		host, _, apiKey := c.registry.BackendView(decision.Index)

		if !first {
			if err := rewindBody(req); err != nil {
				return nil, err
			}
		}
		first = false

		rewriteRequest(req, host, apiKey)
		c.registry.RecordAttempt(decision.Index)
		c.metrics.RecordAttempt(host)
		attemptStart := time.Now()

		resp, err := dispatch(req)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode <= 299:
			c.registry.RecordSuccess(decision.Index)
			c.metrics.RecordSuccess(host, time.Since(attemptStart), resp.StatusCode)
			c.logger.Info("attempt succeeded", "host", host, "status", resp.StatusCode)
			return resp, nil

		case resp.StatusCode == http.StatusTooManyRequests || retriableServerErrors[resp.StatusCode]:
			retryAfter := parseRetryAfterSeconds(resp)
			c.logger.Info("attempt failed, backend throttled", "host", host, "status", resp.StatusCode, "retry_after_seconds", retryAfter)
			c.registry.MarkThrottled(decision.Index, retryAfter, time.Now())
			c.metrics.RecordThrottle(host, resp.StatusCode)
			continue

		default:
			c.logger.Info("attempt returned non-retriable status", "host", host, "status", resp.StatusCode)
			return resp, nil
		}
	}
}

// rewriteRequest applies the bit-exact rewrite contract from spec.md
// Section 6: force https, replace the host (URL and Host header), and -- if
// the backend has its own API key -- swap api-key in and Authorization out.
// Path, query, fragment, and body are left untouched.
func rewriteRequest(req *http.Request, host, apiKey string) {
	req.URL.Scheme = "https"
	req.URL.Host = host
	req.Host = host
	req.Header.Set("Host", host)

	if apiKey != "" {
		req.Header.Set("api-key", apiKey)
		req.Header.Del("Authorization")
	}
}

// rewindBody re-derives the request body from GetBody before a retry, when
// the caller made the request re-readable. If GetBody is unset, the
// original req.Body is forwarded as-is -- safe only for bodies the caller
// already made re-readable, exactly as spec.md Section 6 requires.
func rewindBody(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return err
	}
	req.Body = body
	return nil
}

// parseRetryAfterSeconds reads the Retry-After header as an integer
// seconds count, defaulting to 10 when absent or unparsable (spec.md
// Section 9).
func parseRetryAfterSeconds(resp *http.Response) int {
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return defaultRetryAfterSeconds
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return defaultRetryAfterSeconds
	}
	if seconds == 0 {
		// A zero-second throttle would clear before the next loop
		// iteration observes a later time.Now(), breaking the
		// at-most-N-dispatches bound the state machine relies on to
		// terminate. Treat it as the shortest meaningful backoff instead.
		return 1
	}
	return seconds
}

// synthesizeTooManyRequests builds the 429 response the core fabricates
// when no backend is available (spec.md Section 6, "Response synthesis").
func synthesizeTooManyRequests(retryAfterSeconds int) *http.Response {
	const body = "Too Many Requests"

	header := make(http.Header)
	header.Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	header.Set("Content-Type", "text/plain; charset=utf-8")

	return &http.Response{
		Status:        "429 Too Many Requests",
		StatusCode:    http.StatusTooManyRequests,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}
