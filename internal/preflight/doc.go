// Package preflight provides readiness checks for the filesystem paths and
// external services mixtape depends on.
//
// The daemon runs RunAll at startup and logs failures without refusing to
// start; `mixtape daemon status` shows the same results. Checks for optional
// integrations are skipped when they are not configured.
package preflight
