// Package store provides the SQLite-backed event store.
//
// The store is reconciled once at startup against the loaded schema:
// missing tables are created from their configured columns, existing
// tables are validated against the live catalog, and one parameterized
// INSERT plan per table is built and cached. After reconciliation the
// store is read-mostly shared state; each ingestion runs inside its own
// transaction.
package store
