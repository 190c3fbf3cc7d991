package selector

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/mharriscode/aoai-priority-transport/internal/backend"
)

// sentinelRetryAfterSeconds is returned when SnapshotAvailable reports no
// available backend and no throttled backend either -- the pathological
// case of an empty configuration (spec.md Section 4.2, step 2). A properly
// constructed Registry never has zero backends, so this path only guards
// against a future registry implementation relaxing that invariant.
const sentinelRetryAfterSeconds = 10

// registry is the subset of *backend.Registry the selector depends on.
type registry interface {
	SnapshotAvailable(now time.Time) (available []backend.Available, soonestRetryAfter time.Time, hasSoonest bool)
}

// Result is the outcome of one Select call: either an available backend's
// index, or a signal that nothing is available along with how many
// seconds the caller should wait before trying again.
type Result struct {
	Available         bool
	Index             int
	RetryAfterSeconds int
}

// Selector implements the policy in spec.md Section 4.2. It owns a
// mutex-guarded PRNG seeded at construction, per spec.md Section 9
// ("thread-safe PRNG seeded at registry construction"); it does not
// persist any selection history between calls.
type Selector struct {
	registry registry

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a Selector over the given registry, seeding its PRNG from the
// host's entropy source.
func New(reg *backend.Registry) *Selector {
	return &Selector{
		registry: reg,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Select returns either the index of a backend to attempt, or a
// NoneAvailable-style Result carrying how long the caller should wait.
func (s *Selector) Select(now time.Time) Result {
	available, soonestRetryAfter, hasSoonest := s.registry.SnapshotAvailable(now)

	if len(available) == 0 {
		if !hasSoonest {
			return Result{Available: false, RetryAfterSeconds: sentinelRetryAfterSeconds}
		}

		delay := int(math.Ceil(soonestRetryAfter.Sub(now).Seconds()))
		if delay < 1 {
			delay = 1
		}
		return Result{Available: false, RetryAfterSeconds: delay}
	}

	minPriority := available[0].Priority
	for _, a := range available[1:] {
		if a.Priority < minPriority {
			minPriority = a.Priority
		}
	}

	var tier []backend.Available
	for _, a := range available {
		if a.Priority == minPriority {
			tier = append(tier, a)
		}
	}

	return Result{Available: true, Index: tier[s.randIntN(len(tier))].Index}
}

func (s *Selector) randIntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}
