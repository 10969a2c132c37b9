// Package store persists sensor readings in a SQLite file. A Store owns the
// database handle and serves ingest and control messages received on NATS
// (or through its Go API). Direct database access is not provided; all
// writes go through the Store so state changes are ordered and logged.
package store
