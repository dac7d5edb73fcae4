package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ngi-firn/firn-auth/pkg/identity"
)

func strptr(s string) *string { return &s }

func linkedUser() *identity.UserRecord {
	return &identity.UserRecord{
		ID:               "doc-1",
		Rev:              "3-abc",
		GoogleID:         "104938201",
		GoogleName:       "Alice Larsson",
		GoogleGivenName:  "Alice",
		GoogleFamilyName: "Larsson",
		GoogleAvatar:     "https://lh3.example/alice.png",
		GitHubID:         strptr("5551212"),
		GitHubNodeID:     strptr("MDQ6"),
		GitHubName:       strptr("alice-dev"),
		GitHubAvatar:     strptr("https://avatars.example/a"),
		GitHubEmail:      strptr("x@y"),
		GitHubURL:        strptr("https://github.com/alice-dev"),
		AllowLogin:       true,
		IsAdmin:          true,
		Permissions:      []string{"reports:read"},
	}
}

func TestProject_GoogleChannel(t *testing.T) {
	profile, secure := Project(linkedUser(), ChannelGoogle)

	assert.Equal(t, ChannelGoogle, profile.Provider)
	assert.Equal(t, "Alice Larsson", profile.Name)
	assert.Equal(t, "https://lh3.example/alice.png", profile.Avatar)
	assert.True(t, profile.LinkedGitHub)

	assert.Equal(t, "doc-1", secure.UserID)
	assert.Equal(t, "3-abc", secure.Rev)
	assert.True(t, secure.AllowLogin)
	assert.True(t, secure.IsAdmin)
	assert.Equal(t, []string{"reports:read"}, secure.Permissions)
}

func TestProject_GitHubChannelPrefersGitHubFields(t *testing.T) {
	profile, _ := Project(linkedUser(), ChannelGitHub)

	assert.Equal(t, "alice-dev", profile.Name)
	assert.Equal(t, "https://avatars.example/a", profile.Avatar)
}

func TestProject_GitHubChannelFallsBackToGoogleName(t *testing.T) {
	u := linkedUser()
	u.GitHubName = strptr("")

	profile, _ := Project(u, ChannelGitHub)
	assert.Equal(t, "Alice Larsson", profile.Name, "empty GitHub name falls back to Google name")
}

func TestProject_TokenChannelUsesGoogleFields(t *testing.T) {
	profile, _ := Project(linkedUser(), ChannelToken)

	assert.Equal(t, ChannelToken, profile.Provider)
	assert.Equal(t, "Alice Larsson", profile.Name)
	assert.True(t, profile.LinkedGitHub, "link flag independent of channel")
}

func TestProject_UnlinkedUser(t *testing.T) {
	u := linkedUser()
	u.GitHubID = nil
	u.GitHubName = nil
	u.GitHubAvatar = nil

	profile, _ := Project(u, ChannelGitHub)
	assert.False(t, profile.LinkedGitHub)
	assert.Equal(t, "Alice Larsson", profile.Name)
	assert.Equal(t, "https://lh3.example/alice.png", profile.Avatar)
}
