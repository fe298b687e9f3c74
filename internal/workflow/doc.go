// Package workflow orchestrates batches.
//
// The Manager keeps an index of active batches and runs one worker goroutine
// per started batch. Workers process their tasks strictly in order, calling the
// Fetcher for each one and persisting the batch after every transition. All
// status changes go through batch.Batch.UpdateTaskStatus; the public methods
// only read snapshots or request cancellation.
//
// Cancellation is cooperative at task boundaries. Stop aborts in-flight fetches
// without recording their outcome; Recover settles those tasks on the next
// start according to the configured recovery mode.
package workflow
