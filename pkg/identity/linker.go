package identity

import (
	"context"
	"errors"
)

// LinkGitHub binds a GitHub identity to the target record. The bind is atomic:
// all six GitHub fields plus LastSeenAt go out in one revision-checked write.
//
// Fails with ErrAlreadyLinkedToOther when the target already carries a different
// GitHub ID, and with ErrSecondaryAlreadyClaimed when another record already
// claims this GitHub identity. Neither case is ever resolved by overwriting.
func (s *Service) LinkGitHub(ctx context.Context, target *UserRecord, gh GitHubIdentity) (*UserRecord, error) {
	if target.LinkedGitHub() && *target.GitHubID != gh.GitHubID {
		return nil, ErrAlreadyLinkedToOther
	}

	claimed, err := s.findByGitHubID(ctx, gh.GitHubID)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	if err == nil && claimed.ID != target.ID {
		return nil, ErrSecondaryAlreadyClaimed
	}

	applyGitHubProfile(target, gh)
	target.LastSeenAt = s.now().UTC()
	return s.Save(ctx, target)
}

// MatchGitHub resolves a GitHub sign-in to the linked record by GitHub ID only.
// E-mail matching is deliberately not a fallback here: GitHub profile e-mails are
// user-editable and unverified from our point of view, unlike the Google side.
func (s *Service) MatchGitHub(ctx context.Context, gh GitHubIdentity) (*UserRecord, error) {
	user, err := s.findByGitHubID(ctx, gh.GitHubID)
	if err != nil {
		return nil, err
	}

	applyGitHubProfile(user, gh)
	user.LastSeenAt = s.now().UTC()
	return s.Save(ctx, user)
}

func applyGitHubProfile(u *UserRecord, gh GitHubIdentity) {
	u.GitHubID = &gh.GitHubID
	u.GitHubNodeID = &gh.NodeID
	u.GitHubName = &gh.Name
	u.GitHubAvatar = &gh.Avatar
	u.GitHubEmail = &gh.Email
	u.GitHubURL = &gh.URL
}
