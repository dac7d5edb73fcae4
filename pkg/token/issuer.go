package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/ngi-firn/firn-auth/pkg/docstore"
	"github.com/ngi-firn/firn-auth/pkg/identity"
)

const (
	// DefaultIssuerURN is the fixed issuer claim. Deployments may override it,
	// but every token minted and verified by one deployment uses one value.
	DefaultIssuerURN = "urn:firn:auth"

	// DefaultTTL applies when issuance is requested without an expiry.
	DefaultTTL = 7 * 24 * time.Hour

	audienceURNPrefix = "urn:firn:aud:"

	// tokenIDBytes gives 12 base64url characters, unique enough within one
	// user's token list.
	tokenIDBytes = 9
)

// VerificationError covers every way a presented token can fail verification.
// Callers get one opaque error with a readable reason; wrong key, expiry, and a
// revoked registry entry are all equally terminal for them.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return "token verification failed: " + e.Reason
}

func verificationErrorf(format string, args ...any) error {
	return &VerificationError{Reason: fmt.Sprintf(format, args...)}
}

// IsVerification reports whether err is a VerificationError.
func IsVerification(err error) bool {
	var ve *VerificationError
	return errors.As(err, &ve)
}

// NormalizeAudience lower-cases the audience and strips every non-alphanumeric
// rune. Applied identically at issuance and verification so cosmetic differences
// in the requested audience cannot bypass scoping.
func NormalizeAudience(audience string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(audience) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AudienceURN derives the audience claim value for a requested audience.
func AudienceURN(audience string) string {
	return audienceURNPrefix + NormalizeAudience(audience)
}

// firnClaims are the private claims carried next to the registered ones.
type firnClaims struct {
	TokenID  string `json:"tokenID"`
	FirnUser string `json:"firnUser"`
}

// Options tune an Issuer. Zero values select the defaults above.
type Options struct {
	IssuerURN  string
	DefaultTTL time.Duration
}

// Issuer mints, verifies, and revokes bearer tokens. It is stateless between
// calls except for the token registry embedded in each UserRecord, which it
// reads and writes through the identity service.
type Issuer struct {
	users      *identity.Service
	keys       KeySource
	issuerURN  string
	defaultTTL time.Duration

	now func() time.Time
}

// NewIssuer creates a token issuer over the given user registry and key source.
func NewIssuer(users *identity.Service, keys KeySource, opts Options) *Issuer {
	if opts.IssuerURN == "" {
		opts.IssuerURN = DefaultIssuerURN
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	return &Issuer{
		users:      users,
		keys:       keys,
		issuerURN:  opts.IssuerURN,
		defaultTTL: opts.DefaultTTL,
		now:        time.Now,
	}
}

// Issue mints a bearer token for the user and records it in the user's token
// registry. The registry write happens before the bearer is returned; if the
// revision-checked write loses a race, the whole issuance fails and no token
// exists that the registry cannot revoke. The caller retries from scratch with
// a re-read user.
func (i *Issuer) Issue(ctx context.Context, user *identity.UserRecord, audience string, expiresAt time.Time) (string, *identity.UserRecord, error) {
	now := i.now().UTC()
	if expiresAt.IsZero() {
		expiresAt = now.Add(i.defaultTTL)
	}
	if !expiresAt.After(now) {
		return "", nil, &identity.ValidationError{Msg: "token expiry must be in the future"}
	}

	tokenID, err := newTokenID(user.Tokens)
	if err != nil {
		return "", nil, err
	}

	enc, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.DIRECT, Key: i.keys.Key()},
		(&jose.EncrypterOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create token encrypter: %w", err)
	}

	claims := jwt.Claims{
		Issuer:   i.issuerURN,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(expiresAt),
	}
	audience = strings.TrimSpace(audience)
	if audience != "" {
		claims.Audience = jwt.Audience{AudienceURN(audience)}
	}

	bearer, err := jwt.Encrypted(enc).
		Claims(claims).
		Claims(firnClaims{TokenID: tokenID, FirnUser: user.ID}).
		Serialize()
	if err != nil {
		return "", nil, fmt.Errorf("failed to mint token: %w", err)
	}

	registered := *user
	registered.Tokens = append(append([]identity.TokenRecord(nil), user.Tokens...), identity.TokenRecord{
		TokenID:    tokenID,
		Audience:   audience,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		LastUsedAt: now,
	})

	updated, err := i.users.Save(ctx, &registered)
	if err != nil {
		return "", nil, err
	}
	return bearer, updated, nil
}

// Verify checks a presented bearer token and cross-checks it against the owning
// user's live token registry.
//
// Cryptographic failures, a bad issuer, a wrong audience, and expiry all come
// back as VerificationError. On success the caller still owns the access-policy
// gate and may bump LastUsedAt via TouchToken.
func (i *Issuer) Verify(ctx context.Context, bearer, expectedAudience string) (*identity.UserRecord, *identity.TokenRecord, error) {
	tok, err := jwt.ParseEncrypted(bearer,
		[]jose.KeyAlgorithm{jose.DIRECT},
		[]jose.ContentEncryption{jose.A256GCM},
	)
	if err != nil {
		return nil, nil, verificationErrorf("malformed token: %v", err)
	}

	var claims jwt.Claims
	var custom firnClaims
	if err := tok.Claims(i.keys.Key(), &claims, &custom); err != nil {
		return nil, nil, verificationErrorf("decryption failed: %v", err)
	}

	if err := claims.Validate(jwt.Expected{Issuer: i.issuerURN, Time: i.now().UTC()}); err != nil {
		return nil, nil, verificationErrorf("%v", err)
	}

	// A token minted without an audience is valid for any resource; one minted
	// with an audience must match the normalized expectation when the caller
	// states one.
	if expectedAudience != "" && len(claims.Audience) > 0 && !claims.Audience.Contains(AudienceURN(expectedAudience)) {
		return nil, nil, verificationErrorf("token not valid for audience %q", expectedAudience)
	}

	if custom.TokenID == "" || custom.FirnUser == "" {
		return nil, nil, verificationErrorf("missing token claims")
	}

	user, err := i.users.GetByID(ctx, custom.FirnUser)
	if errors.Is(err, identity.ErrUserNotFound) {
		return nil, nil, verificationErrorf("user not found")
	}
	if err != nil {
		return nil, nil, err
	}

	record := user.FindToken(custom.TokenID)
	if record == nil {
		return nil, nil, verificationErrorf("token id not found in user tokens")
	}
	return user, record, nil
}

// Revoke removes the listed token IDs from the user's registry in one
// revision-checked write. Unknown IDs are a silent no-op, so revocation is
// idempotent; when nothing changes, no write happens at all.
func (i *Issuer) Revoke(ctx context.Context, user *identity.UserRecord, tokenIDs []string) (*identity.UserRecord, error) {
	drop := make(map[string]bool, len(tokenIDs))
	for _, id := range tokenIDs {
		drop[id] = true
	}

	kept := make([]identity.TokenRecord, 0, len(user.Tokens))
	for _, rec := range user.Tokens {
		if !drop[rec.TokenID] {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(user.Tokens) {
		return user, nil
	}

	revoked := *user
	revoked.Tokens = kept
	return i.users.Save(ctx, &revoked)
}

// TouchToken bumps LastUsedAt on the given token. Best-effort: callers that
// cannot tolerate a conflict here should simply skip the bump.
func (i *Issuer) TouchToken(ctx context.Context, user *identity.UserRecord, tokenID string) (*identity.UserRecord, error) {
	touched := *user
	touched.Tokens = append([]identity.TokenRecord(nil), user.Tokens...)
	for idx := range touched.Tokens {
		if touched.Tokens[idx].TokenID == tokenID {
			touched.Tokens[idx].LastUsedAt = i.now().UTC()
			return i.users.Save(ctx, &touched)
		}
	}
	return user, nil
}

// SweepExpired drops registry entries whose expiry has passed. Their blobs
// already fail verification; this keeps user documents from accumulating dead
// entries. Users whose write loses a revision race are skipped and picked up by
// the next sweep.
func (i *Issuer) SweepExpired(ctx context.Context) (int, error) {
	users, err := i.users.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	now := i.now().UTC()
	removed := 0
	for _, u := range users {
		kept := make([]identity.TokenRecord, 0, len(u.Tokens))
		for _, rec := range u.Tokens {
			if rec.ExpiresAt.After(now) {
				kept = append(kept, rec)
			}
		}
		if len(kept) == len(u.Tokens) {
			continue
		}

		dropped := len(u.Tokens) - len(kept)
		swept := *u
		swept.Tokens = kept
		if _, err := i.users.Save(ctx, &swept); err != nil {
			if docstore.IsConflict(err) {
				continue
			}
			return removed, err
		}
		removed += dropped
	}
	return removed, nil
}

// newTokenID generates a short random identifier distinct from every ID already
// in the registry. Collisions are vanishingly rare but handled, not assumed away.
func newTokenID(existing []identity.TokenRecord) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		buf := make([]byte, tokenIDBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate token id: %w", err)
		}
		id := base64.RawURLEncoding.EncodeToString(buf)

		collision := false
		for _, rec := range existing {
			if rec.TokenID == id {
				collision = true
				break
			}
		}
		if !collision {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to find a free token id")
}
