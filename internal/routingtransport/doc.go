// Package routingtransport implements the routing/retry state machine
// (spec.md Section 4.3): given an outbound *http.Request, ask the selector
// for a backend, rewrite the request to target it, dispatch it through an
// underlying http.RoundTripper, interpret the response, and either return
// it or retry against a different backend. When every backend is
// throttled, it synthesizes a 429 response carrying the soonest recovery
// time instead of making a network call.
//
// Two exported types share this state machine and differ only in how they
// perform the underlying dispatch (spec.md Section 5): Transport dispatches
// synchronously on the calling goroutine; AsyncTransport hands the dispatch
// to a goroutine pool (bounded when configured with a positive
// maxGoroutines) and suspends the caller on a channel select,
// so cancellation of the request's context can return control before the
// dispatch completes.
package routingtransport
