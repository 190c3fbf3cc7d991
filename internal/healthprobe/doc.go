// Package healthprobe implements an optional, out-of-band active health
// check that supplements the reactive 429/5xx throttling path with a
// periodic synthetic GET. It is not part of the routing decision: a
// disabled or absent Prober changes nothing about how Transport and
// AsyncTransport behave. When enabled, a failing probe reaches the
// registry through the exact same MarkThrottled entry point the reactive
// path uses, so the selector has no notion of "probe-throttled" versus
// "429-throttled" -- they are the same state.
//
// Probe frequency against a backend that is hard down is gated by a
// per-backend probeGate: after FailureThreshold consecutive failures,
// probing that backend pauses for ResetTimeout instead of firing once per
// tick forever. The gate is intentionally simpler than a full CLOSED/OPEN/
// HALF-OPEN breaker -- there is no half-open trial distinct from "blocked
// until elapsed" -- because that is all the prober needs.
package healthprobe
