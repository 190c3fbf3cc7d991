// Package selector implements the priority-tiered, randomized backend
// selection policy described in spec.md Section 4.2: ask the registry for
// the currently available backends, restrict to the lowest (most
// preferred) priority tier present among them, then pick uniformly at
// random within that tier. It deliberately does not implement round-robin,
// least-connections, or weighted strategies -- the spec rules those out
// (Non-goals: "true fairness or weighted routing"; deterministic
// round-robin would synchronize independent worker processes).
package selector
