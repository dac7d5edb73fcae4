package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and single-process development.
// It enforces the same revision semantics as the SQL backends.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]RawDocument
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]RawDocument)}
}

func newRevision(current string) string {
	gen := 0
	if current != "" {
		fmt.Sscanf(current, "%d-", &gen)
	}
	return fmt.Sprintf("%d-%s", gen+1, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// Create stores a new document under a generated UUID.
func (s *MemoryStore) Create(ctx context.Context, body json.RawMessage) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	rev := newRevision("")
	s.docs[id] = RawDocument{ID: id, Rev: rev, Body: append(json.RawMessage(nil), body...)}
	return id, rev, nil
}

// Get returns a copy of the stored document.
func (s *MemoryStore) Get(ctx context.Context, id string) (*RawDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := RawDocument{ID: doc.ID, Rev: doc.Rev, Body: append(json.RawMessage(nil), doc.Body...)}
	return &cp, nil
}

// Update replaces the body if rev matches the current revision.
func (s *MemoryStore) Update(ctx context.Context, id string, body json.RawMessage, rev string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return "", ErrNotFound
	}
	if doc.Rev != rev {
		return "", &ConflictError{ID: id, Rev: rev}
	}
	newRev := newRevision(doc.Rev)
	s.docs[id] = RawDocument{ID: id, Rev: newRev, Body: append(json.RawMessage(nil), body...)}
	return newRev, nil
}

// Delete removes the document if rev matches the current revision.
func (s *MemoryStore) Delete(ctx context.Context, id, rev string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return ErrNotFound
	}
	if doc.Rev != rev {
		return &ConflictError{ID: id, Rev: rev}
	}
	delete(s.docs, id)
	return nil
}

// QueryByEquality scans all documents and returns those whose top-level fields
// equal every selector value.
func (s *MemoryStore) QueryByEquality(ctx context.Context, selector map[string]any) ([]RawDocument, error) {
	want, err := normalize(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []RawDocument
	for _, doc := range s.docs {
		var fields map[string]any
		if err := json.Unmarshal(doc.Body, &fields); err != nil {
			continue
		}
		if matches(fields, want) {
			out = append(out, RawDocument{ID: doc.ID, Rev: doc.Rev, Body: append(json.RawMessage(nil), doc.Body...)})
		}
	}
	return out, nil
}

// HealthCheck always succeeds for the in-memory backend.
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

// normalize round-trips the selector through JSON so typed values compare equal
// to decoded document fields.
func normalize(selector map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func matches(fields, want map[string]any) bool {
	for k, v := range want {
		if !reflect.DeepEqual(fields[k], v) {
			return false
		}
	}
	return true
}
