// Package config loads, normalizes, and validates mixtape configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// NAVIDROME_API_KEY and MIXTAPE_API_TOKEN. The Config type centralizes every
// knob the daemon and CLI need, so storage, download and log directories are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
