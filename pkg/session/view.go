package session

import "github.com/ngi-firn/firn-auth/pkg/identity"

// Channel identifies how the current session was established.
type Channel string

const (
	ChannelGoogle Channel = "google"
	ChannelGitHub Channel = "github"
	ChannelToken  Channel = "token"
)

// PublicProfile is the client-visible partition of a session. The three
// authorization mirrors exist purely so the UI can render state without a round
// trip; they are not authoritative and every privileged operation re-checks the
// secure partition.
type PublicProfile struct {
	Provider   Channel `json:"provider"`
	Name       string  `json:"name"`
	GivenName  string  `json:"givenName"`
	FamilyName string  `json:"familyName"`
	Avatar     string  `json:"avatar"`

	LinkedGitHub bool `json:"linkedGitHub"`

	AllowLogin bool `json:"allowLoginClientside"`
	IsRetired  bool `json:"isRetiredClientside"`
	IsAdmin    bool `json:"isAdminClientside"`
}

// SecureCapabilities is the server-only partition. UserID and Rev are the exact
// identifiers needed to re-fetch and re-write the backing UserRecord.
type SecureCapabilities struct {
	UserID      string   `json:"id"`
	Rev         string   `json:"rev"`
	AllowLogin  bool     `json:"allowLogin"`
	IsRetired   bool     `json:"isRetired"`
	IsAdmin     bool     `json:"isAdmin"`
	Permissions []string `json:"permissions"`
}

// Project converts a full UserRecord into the two session partitions.
//
// Display name and avatar follow the channel: a GitHub-established session
// prefers the GitHub name and avatar, falling back to the Google name when the
// GitHub field is absent. Google and token sessions use Google fields.
func Project(u *identity.UserRecord, ch Channel) (PublicProfile, SecureCapabilities) {
	name := u.GoogleName
	avatar := u.GoogleAvatar
	if ch == ChannelGitHub {
		if u.GitHubName != nil && *u.GitHubName != "" {
			name = *u.GitHubName
		}
		if u.GitHubAvatar != nil {
			avatar = *u.GitHubAvatar
		}
	}

	profile := PublicProfile{
		Provider:     ch,
		Name:         name,
		GivenName:    u.GoogleGivenName,
		FamilyName:   u.GoogleFamilyName,
		Avatar:       avatar,
		LinkedGitHub: u.LinkedGitHub(),
		AllowLogin:   u.AllowLogin,
		IsRetired:    u.IsRetired,
		IsAdmin:      u.IsAdmin,
	}

	secure := SecureCapabilities{
		UserID:      u.ID,
		Rev:         u.Rev,
		AllowLogin:  u.AllowLogin,
		IsRetired:   u.IsRetired,
		IsAdmin:     u.IsAdmin,
		Permissions: u.Permissions,
	}

	return profile, secure
}
