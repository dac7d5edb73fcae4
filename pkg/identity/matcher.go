package identity

import (
	"context"
	"errors"
)

// MatchOrRegister resolves a Google identity assertion to a UserRecord.
//
// Lookup order:
//  1. By Google subject ID. Found records get their profile fields and LastSeenAt
//     refreshed under a revision-checked write.
//  2. By e-mail. This covers accounts an admin created in advance, when only the
//     e-mail was known; the incoming Google ID is adopted into the record and
//     binds it permanently.
//  3. Otherwise a new, unapproved record is created (AllowLogin=false) and
//     created=true is returned so the caller can route to the pending-approval flow.
//
// The organization/domain restriction on the identity is a caller precondition,
// enforced by the OAuth layer before calling here.
func (s *Service) MatchOrRegister(ctx context.Context, g GoogleIdentity) (user *UserRecord, created bool, err error) {
	existing, err := s.findByGoogleID(ctx, g.GoogleID)
	if err == nil {
		refreshGoogleProfile(existing, g)
		existing.LastSeenAt = s.now().UTC()
		updated, err := s.Save(ctx, existing)
		return updated, false, err
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	// Admin-pre-created account: only the e-mail was known in advance.
	byEmail, err := s.findByGoogleEmail(ctx, g.Email)
	if err == nil {
		byEmail.GoogleID = g.GoogleID
		refreshGoogleProfile(byEmail, g)
		byEmail.LastSeenAt = s.now().UTC()
		updated, err := s.Save(ctx, byEmail)
		return updated, false, err
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	fresh := s.newUserFromGoogle(g)
	createdUser, err := s.create(ctx, fresh)
	if err != nil {
		return nil, false, err
	}
	return createdUser, true, nil
}

// MatchGoogle resolves a Google identity to an existing record without creating
// one, refreshing profile fields on a hit.
func (s *Service) MatchGoogle(ctx context.Context, g GoogleIdentity) (*UserRecord, error) {
	existing, err := s.findByGoogleID(ctx, g.GoogleID)
	if err != nil {
		return nil, err
	}
	refreshGoogleProfile(existing, g)
	existing.LastSeenAt = s.now().UTC()
	return s.Save(ctx, existing)
}

// MatchByGoogleQuery resolves a Google ID to a record and cross-checks the
// e-mail. Used by admin actions that act on other users, where both identifiers
// arrive from the client and must agree.
func (s *Service) MatchByGoogleQuery(ctx context.Context, googleID, email string) (*UserRecord, error) {
	user, err := s.findByGoogleID(ctx, googleID)
	if err != nil {
		return nil, err
	}
	if user.GoogleEmail != email {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func refreshGoogleProfile(u *UserRecord, g GoogleIdentity) {
	u.GoogleName = g.Name
	u.GoogleGivenName = g.GivenName
	u.GoogleFamilyName = g.FamilyName
	u.GoogleAvatar = g.Avatar
	u.GoogleEmail = g.Email
	u.GoogleEmailVerified = g.EmailVerified
}

// newUserFromGoogle builds an unapproved record for a self-registered user.
func (s *Service) newUserFromGoogle(g GoogleIdentity) *UserRecord {
	now := s.now().UTC()
	return &UserRecord{
		Type:                DocType,
		Schema:              SchemaVersion,
		GoogleID:            g.GoogleID,
		GoogleName:          g.Name,
		GoogleGivenName:     g.GivenName,
		GoogleFamilyName:    g.FamilyName,
		GoogleAvatar:        g.Avatar,
		GoogleEmail:         g.Email,
		GoogleEmailVerified: g.EmailVerified,
		CreatedAt:           now,
		LastSeenAt:          now,
		AllowLogin:          false,
		IsRetired:           false,
		IsAdmin:             false,
		Permissions:         []string{},
		Tokens:              []TokenRecord{},
	}
}
