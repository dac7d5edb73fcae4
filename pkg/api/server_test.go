package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngi-firn/firn-auth/pkg/session"
)

// TestUserLifecycle walks one account through the whole service: first sign-in
// lands pending, an admin approves, the second sign-in succeeds, the user mints
// an audience-scoped token that verifies, and revocation kills it. Expiry
// behavior under a shifted clock is covered by the token package tests.
func TestUserLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	f.google.identity = aliceGoogle

	// First Google sign-in: record created, not yet approved.
	stateCookie, state := f.startOAuth(t, "/auth/google")
	rec := f.callback(t, "/auth/google/callback", stateCookie, state)
	require.Equal(t, http.StatusFound, rec.Code)

	view := f.readMe(t, sessionCookie(t, rec))
	require.NotNil(t, view.AuthStatus)
	assert.True(t, view.AuthStatus.Reject)
	assert.Nil(t, view.Secure)

	// Admin approves.
	admin := f.registerAdmin(t)
	adminCookie := f.seedSession(t, admin, session.ChannelGoogle)
	rec = f.doJSON(t, http.MethodPatch, "/api/admin/users/access",
		`{"googleId":"`+aliceGoogle.GoogleID+`","allowLogin":true}`, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)

	// Second sign-in establishes an authenticated session.
	stateCookie, state = f.startOAuth(t, "/auth/google")
	rec = f.callback(t, "/auth/google/callback", stateCookie, state)
	require.Equal(t, http.StatusFound, rec.Code)
	aliceCookie := sessionCookie(t, rec)

	view = f.readMe(t, aliceCookie)
	require.NotNil(t, view.Secure)
	assert.True(t, view.Secure.AllowLogin)

	// Alice mints a barcode-scoped token.
	rec = f.doJSON(t, http.MethodPost, "/api/tokens", `{"audience":"barcode"}`, aliceCookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	var issued issueTokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))

	// It verifies for its audience and not for another.
	_, _, err := f.issuer.Verify(ctx, issued.Token, "barcode")
	require.NoError(t, err)
	_, _, err = f.issuer.Verify(ctx, issued.Token, "user")
	require.Error(t, err)

	// Revocation through the API kills the outstanding blob.
	rec = f.doJSON(t, http.MethodDelete, "/api/tokens",
		`{"tokenIDs":["`+issued.Record.TokenID+`"]}`, aliceCookie)
	require.Equal(t, http.StatusOK, rec.Code)

	_, _, err = f.issuer.Verify(ctx, issued.Token, "barcode")
	assert.Error(t, err)
}

func TestServer_UnknownRoute(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.doJSON(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RequestIDPropagated(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.doJSON(t, http.MethodGet, "/api/me", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
