package obsmetrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mharriscode/aoai-priority-transport/internal/backend"
)

// EventType identifies what a MetricEvent reports.
type EventType string

const (
	EventAttempt  EventType = "attempt"
	EventSuccess  EventType = "success"
	EventThrottle EventType = "throttle"
)

// MetricEvent is one observation pushed onto a Collector's event channel.
type MetricEvent struct {
	Type       EventType
	Host       string
	Duration   time.Duration
	StatusCode int
}

// Collector drains events from a buffered channel on a dedicated goroutine
// and aggregates them into a Metrics instance, so recording a metric never
// blocks the request path.
type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  backend.Logger
}

// NewCollector builds a Collector with the given channel buffer size. A nil
// logger is replaced with a no-op implementation.
func NewCollector(bufferSize int, logger backend.Logger) *Collector {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// EventChannel returns the send-only side of the event channel.
func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// RecordAttempt, RecordSuccess, and RecordThrottle satisfy
// routingtransport.MetricsSink, letting a Collector be wired directly onto
// a Transport/AsyncTransport via SetMetrics. Each is a non-blocking send:
// a full buffer drops the event and logs a warning rather than stalling
// the request path.
func (c *Collector) RecordAttempt(host string) {
	c.send(MetricEvent{Type: EventAttempt, Host: host})
}

func (c *Collector) RecordSuccess(host string, duration time.Duration, statusCode int) {
	c.send(MetricEvent{Type: EventSuccess, Host: host, Duration: duration, StatusCode: statusCode})
}

func (c *Collector) RecordThrottle(host string, statusCode int) {
	c.send(MetricEvent{Type: EventThrottle, Host: host, StatusCode: statusCode})
}

func (c *Collector) send(event MetricEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("metrics event dropped, buffer full", "type", string(event.Type))
	}
}

// Start launches the collector's drain goroutine. It returns immediately;
// the goroutine runs until ctx is done, draining any buffered events before
// exiting.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("metrics collector started")
	defer c.logger.Info("metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventAttempt:
		c.metrics.recordAttempt(event.Host)
	case EventSuccess:
		c.metrics.recordSuccess(event.Host, event.Duration, event.StatusCode)
	case EventThrottle:
		c.metrics.recordThrottle(event.Host, event.StatusCode)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

// Snapshot returns the collector's current aggregated metrics.
func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}

// Handler returns an http.HandlerFunc serving the current snapshot as JSON,
// suitable for mounting at an admin "/metrics" route.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(c.Snapshot()); err != nil {
			c.logger.Warn("failed to encode metrics snapshot", "error", err.Error())
		}
	}
}
