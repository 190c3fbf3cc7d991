package backend

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoBackends is returned by NewRegistry when given an empty descriptor
// list. The spec requires this to fail construction synchronously rather
// than surface as a runtime routing failure.
var ErrNoBackends = errors.New("backend: registry requires at least one backend")

// Logger is the minimal structured-logging surface the backend and
// transport packages depend on. *slog.Logger satisfies it directly. A
// nil Logger passed to NewRegistry is replaced with a no-op implementation,
// matching spec.md Section 6: "the logger is optional; absence must not
// alter behavior."
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Available describes one non-throttling backend as of a SnapshotAvailable
// call.
type Available struct {
	Index    int
	Priority int
}

// View is a point-in-time, lock-safe copy of one backend's full state,
// used for reporting and tests.
type View struct {
	Host                string
	Priority            int
	APIKey              string
	IsThrottling        bool
	RetryAfter          time.Time
	SuccessfulCallCount uint64
	Attempts            uint64
}

// Registry holds the ordered, fixed-size list of configured backends and
// the single mutex protecting every mutable field on every Backend. No
// finer-grained locking is used: per spec.md Section 4.1, critical
// sections are O(N) over a handful of backends, so one lock is simpler and
// fast enough.
type Registry struct {
	mu       sync.Mutex
	backends []*Backend
	logger   Logger
}

// NewRegistry validates and wraps a list of backend descriptors. It fails
// if the list is empty or any priority is not >= 1 -- this is the spec's
// "configuration error" class, raised synchronously at construction
// (spec.md Section 7).
func NewRegistry(descriptors []Descriptor, logger Logger) (*Registry, error) {
	if len(descriptors) == 0 {
		return nil, ErrNoBackends
	}

	backends := make([]*Backend, len(descriptors))
	for i, d := range descriptors {
		if d.Priority < 1 {
			return nil, fmt.Errorf("backend: descriptor %d (%s) has non-positive priority %d", i, d.Host, d.Priority)
		}
		backends[i] = newBackend(d)
	}

	if logger == nil {
		logger = noopLogger{}
	}

	return &Registry{backends: backends, logger: logger}, nil
}

// Len returns the number of configured backends.
func (r *Registry) Len() int { return len(r.backends) }

// SnapshotAvailable clears throttling on any backend whose retry_after has
// passed, then returns the indices and priorities of all non-throttling
// backends. If none remain, soonestRetryAfter/hasSoonest report the
// earliest deadline among the still-throttling backends so the caller can
// compute a Retry-After value.
func (r *Registry) SnapshotAvailable(now time.Time) (available []Available, soonestRetryAfter time.Time, hasSoonest bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.backends {
		if b.isThrottling && !now.Before(b.retryAfter) {
			b.isThrottling = false
			b.retryAfter = time.Time{}
			r.logger.Info("backend no longer throttling", "host", b.host)
		}
	}

	for i, b := range r.backends {
		if !b.isThrottling {
			available = append(available, Available{Index: i, Priority: b.priority})
		}
	}

	if len(available) > 0 {
		return available, time.Time{}, false
	}

	for _, b := range r.backends {
		if !b.isThrottling {
			continue
		}
		if !hasSoonest || b.retryAfter.Before(soonestRetryAfter) {
			soonestRetryAfter = b.retryAfter
			hasSoonest = true
		}
	}

	return available, soonestRetryAfter, hasSoonest
}

// MarkThrottled sets is_throttling and recomputes retry_after for the
// backend at index. Idempotent with respect to repeated calls: the latest
// call wins, matching repeated 429s against the same backend.
func (r *Registry) MarkThrottled(index int, retryAfterSeconds int, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.backends[index]
	b.isThrottling = true
	b.retryAfter = now.Add(time.Duration(retryAfterSeconds) * time.Second)
	r.logger.Info("backend marked throttling", "host", b.host, "retry_after_seconds", retryAfterSeconds)
}

// RecordSuccess clears throttling (a success is conclusive proof the
// backend is reachable, even ahead of its retry_after) and increments the
// success counter.
func (r *Registry) RecordSuccess(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.backends[index]
	b.isThrottling = false
	b.successfulCallCount++
}

// RecordAttempt increments the attempt counter for the backend at index.
func (r *Registry) RecordAttempt(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.backends[index].attempts++
}

// BackendView returns the immutable identity fields (host, priority,
// api key) of the backend at index. These fields never change after
// construction, so reading them does not require the registry lock.
func (r *Registry) BackendView(index int) (host string, priority int, apiKey string) {
	b := r.backends[index]
	return b.host, b.priority, b.apiKey
}

// Snapshot returns a lock-safe copy of every backend's full state, in
// registry order. Intended for tests and the observability/metrics
// endpoint, not for the hot routing path.
func (r *Registry) Snapshot() []View {
	r.mu.Lock()
	defer r.mu.Unlock()

	views := make([]View, len(r.backends))
	for i, b := range r.backends {
		views[i] = View{
			Host:                b.host,
			Priority:            b.priority,
			APIKey:              b.apiKey,
			IsThrottling:        b.isThrottling,
			RetryAfter:          b.retryAfter,
			SuccessfulCallCount: b.successfulCallCount,
			Attempts:            b.attempts,
		}
	}
	return views
}
