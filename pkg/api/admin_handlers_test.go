package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngi-firn/firn-auth/pkg/identity"
	"github.com/ngi-firn/firn-auth/pkg/session"
)

func TestAdminCreateUser(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.registerAdmin(t)
	cookie := f.seedSession(t, admin, session.ChannelGoogle)

	rec := f.doJSON(t, http.MethodPost, "/api/admin/users",
		`{"email":"dave@example.org","givenName":"Dave","familyName":"Nilsson"}`, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)

	var view adminUserView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "dave@example.org", view.Email)
	assert.True(t, view.AllowLogin, "admin-created accounts default to approved")
	assert.Regexp(t, `^9\d{8}$`, view.GoogleID, "provisional id sits in the reserved range")

	t.Run("duplicate email", func(t *testing.T) {
		rec := f.doJSON(t, http.MethodPost, "/api/admin/users",
			`{"email":"dave@example.org"}`, cookie)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing email", func(t *testing.T) {
		rec := f.doJSON(t, http.MethodPost, "/api/admin/users", `{}`, cookie)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAdminSetAccess(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.registerAdmin(t)
	cookie := f.seedSession(t, admin, session.ChannelGoogle)
	pending := f.registerUser(t, aliceGoogle, false)

	rec := f.doJSON(t, http.MethodPatch, "/api/admin/users/access",
		`{"googleId":"`+pending.GoogleID+`","allowLogin":true}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var view adminUserView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.AllowLogin)

	approved, err := f.users.GetByGoogleID(context.Background(), pending.GoogleID)
	require.NoError(t, err)
	assert.True(t, identity.CanLogin(approved))

	t.Run("unknown user", func(t *testing.T) {
		rec := f.doJSON(t, http.MethodPatch, "/api/admin/users/access",
			`{"googleId":"100000000000000000099","allowLogin":true}`, cookie)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAdminDeleteUser(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.registerAdmin(t)
	cookie := f.seedSession(t, admin, session.ChannelGoogle)
	alice := f.registerUser(t, aliceGoogle, true)

	req := f.doJSON(t, http.MethodDelete, "/api/admin/users/"+alice.GoogleID, "", cookie)
	require.Equal(t, http.StatusNoContent, req.Code)

	_, err := f.users.GetByGoogleID(context.Background(), alice.GoogleID)
	assert.ErrorIs(t, err, identity.ErrUserNotFound)

	t.Run("already gone", func(t *testing.T) {
		rec := f.doJSON(t, http.MethodDelete, "/api/admin/users/"+alice.GoogleID, "", cookie)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAdminRevokeAllTokens(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	admin := f.registerAdmin(t)
	cookie := f.seedSession(t, admin, session.ChannelGoogle)

	alice := f.registerUser(t, aliceGoogle, true)
	bearer1, alice, err := f.issuer.Issue(ctx, alice, "barcode", time.Time{})
	require.NoError(t, err)
	bearer2, _, err := f.issuer.Issue(ctx, alice, "", time.Time{})
	require.NoError(t, err)

	rec := f.doJSON(t, http.MethodDelete, "/api/admin/users/"+alice.GoogleID+"/tokens", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp["revoked"])

	_, _, err = f.issuer.Verify(ctx, bearer1, "barcode")
	assert.Error(t, err)
	_, _, err = f.issuer.Verify(ctx, bearer2, "")
	assert.Error(t, err)
}

func TestAdminListings(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	admin := f.registerAdmin(t)
	cookie := f.seedSession(t, admin, session.ChannelGoogle)

	f.registerUser(t, aliceGoogle, false)
	retired := f.registerUser(t, identity.GoogleIdentity{
		GoogleID: "102222222222222222222",
		Email:    "erik@example.org",
		Name:     "Erik",
	}, true)
	retired.IsRetired = true
	_, err := f.users.Save(ctx, retired)
	require.NoError(t, err)

	read := func(path string) []adminUserView {
		rec := f.doJSON(t, http.MethodGet, path, "", cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		var views []adminUserView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
		return views
	}

	pending := read("/api/admin/users/pending")
	require.Len(t, pending, 1)
	assert.Equal(t, "alice@example.org", pending[0].Email)

	approved := read("/api/admin/users/approved")
	emails := make([]string, 0, len(approved))
	for _, v := range approved {
		emails = append(emails, v.Email)
	}
	assert.Contains(t, emails, "root@example.org")

	got := read("/api/admin/users/retired")
	require.Len(t, got, 1)
	assert.Equal(t, "erik@example.org", got[0].Email)
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.registerUser(t, aliceGoogle, true)
	cookie := f.seedSession(t, alice, session.ChannelGoogle)

	rec := f.doJSON(t, http.MethodGet, "/api/admin/users/pending", "", cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.doJSON(t, http.MethodPost, "/api/admin/users", `{"email":"x@example.org"}`, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.doJSON(t, http.MethodGet, "/api/admin/users/pending", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
