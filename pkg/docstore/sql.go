package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id   TEXT PRIMARY KEY,
	rev  TEXT NOT NULL,
	body TEXT NOT NULL
)`

// SQLStore implements Store on top of a documents table with a JSON body column.
// The same implementation serves PostgreSQL (production) and SQLite (development).
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQL connects to the configured database and ensures the documents table exists.
func OpenSQL(cfg Config) (*SQLStore, error) {
	if cfg.Driver != "postgres" && cfg.Driver != "sqlite3" {
		return nil, fmt.Errorf("unsupported docstore driver: %s", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Driver, err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", cfg.Driver, err)
	}

	store := &SQLStore{db: db, driver: cfg.Driver}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an existing database handle. Used by tests with sqlmock.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

// rebind converts ?-style placeholders to the driver's dialect.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Create stores a new document under a generated UUID.
func (s *SQLStore) Create(ctx context.Context, body json.RawMessage) (string, string, error) {
	id := uuid.NewString()
	rev := newRevision("")

	query := s.rebind(`INSERT INTO documents (id, rev, body) VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, id, rev, string(body)); err != nil {
		return "", "", fmt.Errorf("failed to create document: %w", err)
	}
	return id, rev, nil
}

// Get returns the document with the given ID, or ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, id string) (*RawDocument, error) {
	query := s.rebind(`SELECT rev, body FROM documents WHERE id = ?`)

	var rev, body string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&rev, &body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &RawDocument{ID: id, Rev: rev, Body: json.RawMessage(body)}, nil
}

// Update replaces the body if rev matches the current revision. The revision check
// and the write happen in a single statement so the update can never half-apply.
func (s *SQLStore) Update(ctx context.Context, id string, body json.RawMessage, rev string) (string, error) {
	newRev := newRevision(rev)

	query := s.rebind(`UPDATE documents SET rev = ?, body = ? WHERE id = ? AND rev = ?`)
	res, err := s.db.ExecContext(ctx, query, newRev, string(body), id, rev)
	if err != nil {
		return "", fmt.Errorf("failed to update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return "", s.missOrConflict(ctx, id, rev)
	}
	return newRev, nil
}

// Delete removes the document if rev matches the current revision.
func (s *SQLStore) Delete(ctx context.Context, id, rev string) error {
	query := s.rebind(`DELETE FROM documents WHERE id = ? AND rev = ?`)
	res, err := s.db.ExecContext(ctx, query, id, rev)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return s.missOrConflict(ctx, id, rev)
	}
	return nil
}

// missOrConflict distinguishes a vanished document from a stale revision.
func (s *SQLStore) missOrConflict(ctx context.Context, id, rev string) error {
	query := s.rebind(`SELECT 1 FROM documents WHERE id = ?`)
	var one int
	err := s.db.QueryRowContext(ctx, query, id).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check document: %w", err)
	}
	return &ConflictError{ID: id, Rev: rev}
}

// QueryByEquality returns every document whose top-level fields equal all selector
// values. PostgreSQL pushes the match down with JSONB containment; SQLite filters
// in process, which is fine at user-registry cardinality.
func (s *SQLStore) QueryByEquality(ctx context.Context, selector map[string]any) ([]RawDocument, error) {
	if s.driver == "postgres" {
		raw, err := json.Marshal(selector)
		if err != nil {
			return nil, fmt.Errorf("invalid selector: %w", err)
		}
		query := s.rebind(`SELECT id, rev, body FROM documents WHERE body::jsonb @> ?::jsonb`)
		return s.collect(ctx, query, string(raw))
	}

	docs, err := s.collect(ctx, `SELECT id, rev, body FROM documents`)
	if err != nil {
		return nil, err
	}
	want, err := normalize(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector: %w", err)
	}
	var out []RawDocument
	for _, doc := range docs {
		var fields map[string]any
		if err := json.Unmarshal(doc.Body, &fields); err != nil {
			continue
		}
		if matches(fields, want) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *SQLStore) collect(ctx context.Context, query string, args ...any) ([]RawDocument, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var out []RawDocument
	for rows.Next() {
		var id, rev, body string
		if err := rows.Scan(&id, &rev, &body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, RawDocument{ID: id, Rev: rev, Body: json.RawMessage(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return out, nil
}

// HealthCheck pings the database.
func (s *SQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
