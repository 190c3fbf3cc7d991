// Package backend holds the static backend descriptors used by the priority
// load balancer and the single-mutex Registry that tracks their mutable
// throttling state (is_throttling, retry_after, and the attempt/success
// counters). Every mutation to that state goes through the Registry; the
// Backend type itself exposes only read accessors.
package backend
