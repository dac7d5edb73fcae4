package identity

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// CreateUserByAdminInput is the minimal shape an admin supplies when pre-creating
// an account. Only the e-mail has to be known in advance; the Google ID is adopted
// on the user's first real login.
type CreateUserByAdminInput struct {
	Email      string
	GivenName  string
	FamilyName string
	AllowLogin bool
	IsRetired  bool
	IsAdmin    bool
}

// SetUserAccessInput carries an admin's access decision for a user.
type SetUserAccessInput struct {
	GoogleID   string
	AllowLogin bool
	IsRetired  bool
	IsAdmin    bool
}

// CreateUserByAdmin pre-creates an account from an e-mail address. The record gets
// a provisional Google ID in a reserved range, replaced when the real subject ID is
// adopted at first login. Duplicate e-mails are a ValidationError.
func (s *Service) CreateUserByAdmin(ctx context.Context, in CreateUserByAdminInput) (*UserRecord, error) {
	if err := s.checkDomain(in.Email); err != nil {
		return nil, err
	}

	if _, err := s.findByGoogleEmail(ctx, in.Email); err == nil {
		return nil, validationErrorf("user with e-mail %s already exists", in.Email)
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	googleID, err := s.provisionalGoogleID(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &UserRecord{
		Type:                DocType,
		Schema:              SchemaVersion,
		GoogleID:            googleID,
		GoogleGivenName:     in.GivenName,
		GoogleFamilyName:    in.FamilyName,
		GoogleEmail:         in.Email,
		GoogleEmailVerified: true,
		CreatedAt:           now,
		LastSeenAt:          now,
		AllowLogin:          in.AllowLogin,
		IsRetired:           in.IsRetired,
		IsAdmin:             in.IsAdmin,
		Permissions:         []string{},
		Tokens:              []TokenRecord{},
	}
	return s.create(ctx, user)
}

// SetUserAccess applies an admin access decision (approve, retire, promote) under
// a revision-checked write.
func (s *Service) SetUserAccess(ctx context.Context, in SetUserAccessInput) (*UserRecord, error) {
	user, err := s.findByGoogleID(ctx, in.GoogleID)
	if err != nil {
		return nil, err
	}
	user.AllowLogin = in.AllowLogin
	user.IsRetired = in.IsRetired
	user.IsAdmin = in.IsAdmin
	return s.Save(ctx, user)
}

// DeleteUserByAdmin removes a user document entirely.
func (s *Service) DeleteUserByAdmin(ctx context.Context, googleID string) (*UserRecord, error) {
	user, err := s.findByGoogleID(ctx, googleID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, user.ID, user.Rev); err != nil {
		return nil, err
	}
	return user, nil
}

// ListPending returns users awaiting approval: not allowed to log in, not retired.
func (s *Service) ListPending(ctx context.Context) ([]*UserRecord, error) {
	return s.listWhere(ctx, func(u *UserRecord) bool { return !u.AllowLogin && !u.IsRetired })
}

// ListApproved returns users currently allowed to log in.
func (s *Service) ListApproved(ctx context.Context) ([]*UserRecord, error) {
	return s.listWhere(ctx, func(u *UserRecord) bool { return u.AllowLogin })
}

// ListRetired returns retired users.
func (s *Service) ListRetired(ctx context.Context) ([]*UserRecord, error) {
	return s.listWhere(ctx, func(u *UserRecord) bool { return u.IsRetired })
}

func (s *Service) listWhere(ctx context.Context, keep func(*UserRecord) bool) ([]*UserRecord, error) {
	users, err := s.queryAll(ctx)
	if err != nil {
		return nil, err
	}
	out := users[:0]
	for _, u := range users {
		if keep(u) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Service) checkDomain(email string) error {
	if s.allowedDomain == "" {
		return nil
	}
	if !strings.HasSuffix(strings.ToLower(email), "@"+strings.ToLower(s.allowedDomain)) {
		return validationErrorf("e-mail must be a %s address", s.allowedDomain)
	}
	return nil
}

// provisionalGoogleID draws a 9-digit ID from the reserved 9xxxxxxxx range, far
// from real Google subject IDs, regenerating on the unlikely collision.
func (s *Service) provisionalGoogleID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("failed to generate provisional id: %w", err)
		}
		id := fmt.Sprintf("9%08d", binary.BigEndian.Uint32(buf[:])%100000000)

		_, err := s.findByGoogleID(ctx, id)
		if errors.Is(err, ErrUserNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("failed to find a free provisional id")
}
