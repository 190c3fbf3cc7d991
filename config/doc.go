// Package config loads and validates the example binary's configuration
// from a YAML file (with environment-variable overrides), covering the
// admin server address, the backend pool (host, priority, optional API
// key), the transport mode (blocking or async), and the optional health
// prober.
package config
