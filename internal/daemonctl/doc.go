// Package daemonctl implements the CLI side of daemon lifecycle control:
// launching a detached daemon, waiting for its API, stopping it by pid, and
// assembling the status snapshot shown by `mixtape daemon status`.
package daemonctl
