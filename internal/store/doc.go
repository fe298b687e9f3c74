// Package store persists batch records.
//
// Two backends implement Store: DirStore writes one JSON document per batch
// into a directory, replacing it atomically on every save, and SQLiteStore
// keeps the same document in a single-table SQLite database. Both expose the
// last write time so retention sweeps can prune by age.
package store
