// Package docstore provides the revision-tagged document store used as the user registry.
//
// # Overview
//
// The store holds schemaless JSON documents addressed by a generated ID. Every read
// returns an opaque revision tag and every write must present the revision it read;
// a mismatch fails the whole write with ConflictError and never partially applies.
// Conflicts are reported to the caller, never retried inside the store.
//
// # Backends
//
// MemoryStore: in-process map, used by tests and single-process development.
//
//	store := docstore.NewMemoryStore()
//
// SQLStore: a documents table with a JSON body column, backed by PostgreSQL (lib/pq)
// or SQLite (mattn/go-sqlite3):
//
//	store, err := docstore.OpenSQL(docstore.Config{
//		Driver: "postgres",
//		DSN:    "postgres://localhost/firn",
//	})
//
// # Related Packages
//
//   - pkg/identity: user registry built on this contract
package docstore
