package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("document not found")

// ConflictError indicates an optimistic-concurrency loss: the revision presented
// with a write no longer matches the stored revision. The write did not apply.
// Retrying is the caller's decision.
type ConflictError struct {
	ID  string
	Rev string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision conflict on document %s (presented rev %s)", e.ID, e.Rev)
}

// IsConflict reports whether err is a revision conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// RawDocument is a stored document together with its identity and revision tag.
type RawDocument struct {
	ID   string
	Rev  string
	Body json.RawMessage
}

// Store is the document store contract. All writes are revision-checked and atomic
// per document: a write either fully applies under a fresh revision or fails.
type Store interface {
	// Create stores a new document and returns its generated ID and first revision.
	Create(ctx context.Context, body json.RawMessage) (id, rev string, err error)

	// Get returns the document with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*RawDocument, error)

	// Update replaces the document body. rev must match the current revision or the
	// update fails with ConflictError.
	Update(ctx context.Context, id string, body json.RawMessage, rev string) (newRev string, err error)

	// Delete removes the document. rev must match the current revision.
	Delete(ctx context.Context, id, rev string) error

	// QueryByEquality returns every document whose top-level fields equal all values
	// in selector.
	QueryByEquality(ctx context.Context, selector map[string]any) ([]RawDocument, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// Config for the SQL-backed store.
type Config struct {
	// Driver is "postgres" or "sqlite3".
	Driver string
	DSN    string

	MaxConns int
	MinConns int
	Timeout  time.Duration
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Driver:   "sqlite3",
		DSN:      "file:firn.db?_journal=WAL",
		MaxConns: 20,
		MinConns: 2,
		Timeout:  10 * time.Second,
	}
}
