// Package oauth turns provider sign-in flows into identity assertions.
//
// Google is the primary, trusted provider: OIDC discovery, code exchange, and
// ID token verification, with the allowed-domain restriction enforced here so
// the identity matcher never sees an out-of-organization assertion. GitHub is
// the secondary provider used only for linking to an existing account; it is a
// plain OAuth2 flow followed by REST calls for the profile.
package oauth
