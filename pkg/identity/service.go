package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ngi-firn/firn-auth/pkg/docstore"
)

// Service is the user registry. It owns all reads and writes of user documents;
// the store handle is passed in explicitly so tests can substitute a double and
// deployments can point separate services at separate logical databases.
type Service struct {
	store docstore.Store

	// allowedDomain restricts admin-created account e-mails when non-empty.
	allowedDomain string

	now func() time.Time
}

// NewService creates a user registry over the given store. allowedDomain may be
// empty to disable the e-mail domain restriction on admin-created users.
func NewService(store docstore.Store, allowedDomain string) *Service {
	return &Service{
		store:         store,
		allowedDomain: allowedDomain,
		now:           time.Now,
	}
}

func decodeUser(doc *docstore.RawDocument) (*UserRecord, error) {
	var u UserRecord
	if err := json.Unmarshal(doc.Body, &u); err != nil {
		return nil, fmt.Errorf("failed to decode user document %s: %w", doc.ID, err)
	}
	u.ID = doc.ID
	u.Rev = doc.Rev
	return &u, nil
}

func encodeUser(u *UserRecord) (json.RawMessage, error) {
	body, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user document: %w", err)
	}
	return body, nil
}

// GetByID fetches a user by document ID.
func (s *Service) GetByID(ctx context.Context, id string) (*UserRecord, error) {
	doc, err := s.store.Get(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeUser(doc)
}

// GetByGoogleID fetches a user by Google subject ID.
func (s *Service) GetByGoogleID(ctx context.Context, googleID string) (*UserRecord, error) {
	return s.findByGoogleID(ctx, googleID)
}

// Save persists the record with its current revision and returns the record
// carrying the fresh revision. A revision conflict propagates unchanged.
func (s *Service) Save(ctx context.Context, u *UserRecord) (*UserRecord, error) {
	body, err := encodeUser(u)
	if err != nil {
		return nil, err
	}
	newRev, err := s.store.Update(ctx, u.ID, body, u.Rev)
	if err != nil {
		return nil, err
	}
	saved := *u
	saved.Rev = newRev
	return &saved, nil
}

func (s *Service) create(ctx context.Context, u *UserRecord) (*UserRecord, error) {
	body, err := encodeUser(u)
	if err != nil {
		return nil, err
	}
	id, rev, err := s.store.Create(ctx, body)
	if err != nil {
		return nil, err
	}
	created := *u
	created.ID = id
	created.Rev = rev
	return &created, nil
}

// queryOne runs an equality query expected to match at most one user.
func (s *Service) queryOne(ctx context.Context, selector map[string]any) (*UserRecord, error) {
	selector["type"] = DocType
	docs, err := s.store.QueryByEquality(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrUserNotFound
	}
	return decodeUser(&docs[0])
}

// ListAll returns every user record. Used by administrative listings and the
// expired-token sweep.
func (s *Service) ListAll(ctx context.Context) ([]*UserRecord, error) {
	return s.queryAll(ctx)
}

func (s *Service) queryAll(ctx context.Context) ([]*UserRecord, error) {
	docs, err := s.store.QueryByEquality(ctx, map[string]any{"type": DocType})
	if err != nil {
		return nil, err
	}
	users := make([]*UserRecord, 0, len(docs))
	for i := range docs {
		u, err := decodeUser(&docs[i])
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *Service) findByGoogleID(ctx context.Context, googleID string) (*UserRecord, error) {
	return s.queryOne(ctx, map[string]any{"googleId": googleID})
}

func (s *Service) findByGoogleEmail(ctx context.Context, email string) (*UserRecord, error) {
	return s.queryOne(ctx, map[string]any{"googleEmail": email})
}

func (s *Service) findByGitHubID(ctx context.Context, githubID string) (*UserRecord, error) {
	return s.queryOne(ctx, map[string]any{"githubId": githubID})
}
