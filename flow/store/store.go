// Package store provides the persistence backends for the flow repository
// ports: in-memory workflow and telemetry repositories for development and
// testing, and in-memory, SQLite, and MySQL execution history stores.
//
// The in-memory implementations are fully thread-safe and preserve
// insertion order where the ports require stable ordering. The SQL-backed
// history stores share one schema shape (one row per node transition,
// unique on execution id and step) and auto-migrate on first use.
package store

import "errors"

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("store is closed")
