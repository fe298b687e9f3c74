// Package daemonrun hosts the foreground daemon process started by
// `mixtape daemon run`: per-run log files, log retention, the pid file, and
// the daemon lifecycle bound to SIGINT/SIGTERM.
package daemonrun
