// Package config loads, normalizes, and validates proxyfarm configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PROXYFARM_PROXY_ROOT. The Config type centralizes every knob the coordinator,
// the workers, and the CLI need, so proxy roots, segment scratch space, and the
// shared queue database are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, compiled suffix patterns, and clear validation errors.
package config
