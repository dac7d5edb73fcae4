package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrDomainNotAllowed indicates a Google sign-in from outside the configured
// organization domain. Rejected before any registry lookup happens.
var ErrDomainNotAllowed = errors.New("account is outside the allowed organization domain")

// NewState generates an unguessable OAuth state parameter. The HTTP layer pins
// it in a short-lived cookie and compares on callback.
func NewState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
