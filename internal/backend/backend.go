package backend

import "time"

// Backend is an immutable-at-construction descriptor for one upstream
// endpoint, plus the mutable throttling state and counters that the
// Registry mutates under its single lock. Only the Registry may write to
// the fields below; callers read them through the accessor methods, which
// are safe to call concurrently only when the caller itself holds (or is
// not racing with) the owning Registry's lock -- see Registry.Snapshot and
// Registry.BackendView for lock-safe reads.
type Backend struct {
	host     string
	priority int
	apiKey   string

	isThrottling        bool
	retryAfter          time.Time
	successfulCallCount uint64
	attempts            uint64
}

// Descriptor is the construction-time input for one backend.
type Descriptor struct {
	Host     string
	Priority int
	APIKey   string
}

func newBackend(d Descriptor) *Backend {
	return &Backend{
		host:     d.Host,
		priority: d.Priority,
		apiKey:   d.APIKey,
	}
}

// Host returns the backend's DNS name. Immutable after construction.
func (b *Backend) Host() string { return b.host }

// Priority returns the backend's priority tier (lower is more preferred).
// Immutable after construction.
func (b *Backend) Priority() int { return b.priority }

// APIKey returns the per-backend API key, or "" if none was configured.
// Immutable after construction.
func (b *Backend) APIKey() string { return b.apiKey }

// IsThrottling reports the last-observed throttling state. Must only be
// read while holding the owning Registry's lock.
func (b *Backend) IsThrottling() bool { return b.isThrottling }

// RetryAfter reports the deadline at which throttling lifts. Meaningless
// unless IsThrottling is true. Must only be read while holding the owning
// Registry's lock.
func (b *Backend) RetryAfter() time.Time { return b.retryAfter }

// SuccessfulCallCount reports the number of 2xx responses recorded for this
// backend. Must only be read while holding the owning Registry's lock.
func (b *Backend) SuccessfulCallCount() uint64 { return b.successfulCallCount }

// Attempts reports the number of dispatches attempted against this
// backend. Must only be read while holding the owning Registry's lock.
func (b *Backend) Attempts() uint64 { return b.attempts }
