// Package config loads, normalizes, and validates nopg configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PGCONFIG and NOPG_TIMEOUT. The Config type centralizes every knob the daemon
// and CLI need so both sides of the socket agree on store location, timeouts,
// and listener pool sizing.
package config
