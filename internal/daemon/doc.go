// Package daemon coordinates the long-running mixtape process.
//
// It wires configuration, the batch store and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances.
// Startup runs preflight and dependency checks, recovers batches interrupted
// by a previous run, then serves the JSON API and the websocket progress
// stream that the CLI talks to.
//
// Keep orchestration logic here: batch semantics live in the workflow and
// batch packages while the daemon focuses on startup, shutdown, and
// transport.
package daemon
