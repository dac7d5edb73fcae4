package identity

import "time"

const (
	// DocType tags user documents in the schemaless store.
	DocType = "user"
	// SchemaVersion is bumped when the document layout changes.
	SchemaVersion = 1
)

// UserRecord is the authoritative, persisted identity and authorization document.
// One record exists per human; the Google subject ID is the stable key.
type UserRecord struct {
	// ID and Rev identify the backing document. Rev is the optimistic-concurrency
	// tag required on every write. Both live outside the JSON body.
	ID  string `json:"-"`
	Rev string `json:"-"`

	Type   string `json:"type"`
	Schema int    `json:"schema"`

	// Primary (Google) identity. Refreshed on every login.
	GoogleID            string `json:"googleId"`
	GoogleName          string `json:"googleName"`
	GoogleGivenName     string `json:"googleGivenName"`
	GoogleFamilyName    string `json:"googleFamilyName"`
	GoogleAvatar        string `json:"googleAvatar"`
	GoogleEmail         string `json:"googleEmail"`
	GoogleEmailVerified bool   `json:"googleEmailVerified"`

	// Linked secondary (GitHub) identity. All six fields are set together by
	// LinkGitHub or all nil; partial linkage is not a valid state.
	GitHubID     *string `json:"githubId"`
	GitHubNodeID *string `json:"githubNodeId"`
	GitHubName   *string `json:"githubName"`
	GitHubAvatar *string `json:"githubAvatar"`
	GitHubEmail  *string `json:"githubEmail"`
	GitHubURL    *string `json:"githubUrl"`

	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`

	// Authorization flags. AllowLogin defaults to false for self-registered users
	// and true for admin-created ones.
	AllowLogin bool `json:"allowLogin"`
	IsRetired  bool `json:"isRetired"`
	IsAdmin    bool `json:"isAdmin"`

	// Permissions is a reserved extension point, carried but not interpreted here.
	Permissions []string `json:"permissions"`

	// Tokens is the live registry of issued bearer tokens. Embedded in the user
	// document rather than a separate collection, so concurrent issuance for one
	// user is a read-modify-write race resolved by the revision check.
	Tokens []TokenRecord `json:"tokens"`
}

// TokenRecord is the revocation-registry entry for one issued bearer token. The
// signed blob itself is handed to the caller once and never persisted.
type TokenRecord struct {
	// TokenID is unique within the owning user's token list, not globally.
	TokenID string `json:"tokenID"`
	// Audience scopes the token to a resource. Empty means valid for any resource.
	Audience   string    `json:"audience"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// GoogleIdentity is the assertion produced by the Google OAuth collaborator.
type GoogleIdentity struct {
	GoogleID      string
	Email         string
	EmailVerified bool
	Name          string
	GivenName     string
	FamilyName    string
	Avatar        string
	// HostedDomain is Google's verified "hd" claim, checked by the OAuth layer
	// before the identity ever reaches the matcher.
	HostedDomain string
}

// GitHubIdentity is the assertion produced by the GitHub OAuth collaborator.
type GitHubIdentity struct {
	GitHubID string
	NodeID   string
	Name     string
	Avatar   string
	Email    string
	URL      string
}

// LinkedGitHub reports whether a GitHub identity is bound to this record.
func (u *UserRecord) LinkedGitHub() bool {
	return u.GitHubID != nil && *u.GitHubID != ""
}

// FindToken returns the token record with the given ID, or nil.
func (u *UserRecord) FindToken(tokenID string) *TokenRecord {
	for i := range u.Tokens {
		if u.Tokens[i].TokenID == tokenID {
			return &u.Tokens[i]
		}
	}
	return nil
}
