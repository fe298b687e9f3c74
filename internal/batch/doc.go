// Package batch defines the batch and task records, their lifecycle states and
// the single transition routine that keeps per-task status and aggregate
// counters consistent.
//
// A Batch is mutated only through UpdateTaskStatus, MarkStarted, Cancel,
// Resolve and Fail. The workflow manager serialises those calls per batch and
// hands out deep copies from Clone to everything else.
package batch
