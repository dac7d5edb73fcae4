package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngi-firn/firn-auth/pkg/contextkeys"
	"github.com/ngi-firn/firn-auth/pkg/docstore"
	"github.com/ngi-firn/firn-auth/pkg/identity"
	"github.com/ngi-firn/firn-auth/pkg/session"
	"github.com/ngi-firn/firn-auth/pkg/token"
)

type authFixture struct {
	users    *identity.Service
	sessions *session.RedisStore
	issuer   *token.Issuer
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	users := identity.NewService(docstore.NewMemoryStore(), "")
	return &authFixture{
		users:    users,
		sessions: session.NewRedisStoreWithClient(client, time.Hour),
		issuer:   token.NewIssuer(users, token.DeriveKey("middleware test"), token.Options{}),
	}
}

func (f *authFixture) approvedUser(t *testing.T) *identity.UserRecord {
	t.Helper()
	ctx := context.Background()
	u, _, err := f.users.MatchOrRegister(ctx, identity.GoogleIdentity{
		GoogleID: "108234567890123456789",
		Email:    "alice@example.org",
		Name:     "Alice Larsson",
	})
	require.NoError(t, err)
	u.AllowLogin = true
	approved, err := f.users.Save(ctx, u)
	require.NoError(t, err)
	return approved
}

func contextWithView(ctx context.Context, view *session.View) context.Context {
	return contextkeys.WithView(ctx, view)
}

func echoView(t *testing.T, got **session.View) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = GetView(r)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_SessionCookie(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.approvedUser(t)

	profile, secure := session.Project(alice, session.ChannelGoogle)
	sessionID := session.NewSessionID()
	require.NoError(t, f.sessions.Write(context.Background(), sessionID, session.View{User: &profile, Secure: &secure}))

	var got *session.View
	handler := NewAuthMiddleware(f.sessions, f.issuer, false).Handler(echoView(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionID})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, alice.ID, got.Secure.UserID)
}

func TestAuthMiddleware_SessionAuthStatusPreserved(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.approvedUser(t)

	profile, secure := session.Project(alice, session.ChannelGoogle)
	sessionID := session.NewSessionID()
	require.NoError(t, f.sessions.Write(context.Background(), sessionID, session.View{
		User:       &profile,
		Secure:     &secure,
		AuthStatus: session.SuccessStatus("Welcome to Firn!", "Successfully signed in."),
	}))

	var got *session.View
	handler := NewAuthMiddleware(f.sessions, f.issuer, false).Handler(echoView(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionID})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	// The middleware peeks; the one-shot status must still be in the store.
	after, err := f.sessions.Peek(context.Background(), sessionID)
	require.NoError(t, err)
	assert.NotNil(t, after.AuthStatus)
}

func TestAuthMiddleware_BearerToken(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.approvedUser(t)

	bearer, _, err := f.issuer.Issue(context.Background(), alice, "user", time.Time{})
	require.NoError(t, err)

	var got *session.View
	handler := NewAuthMiddleware(f.sessions, f.issuer, false).Handler(echoView(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, session.ChannelToken, got.User.Provider)
	assert.Equal(t, alice.ID, got.Secure.UserID)
}

func TestAuthMiddleware_BearerRejectsPendingUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	pending, _, err := f.users.MatchOrRegister(ctx, identity.GoogleIdentity{
		GoogleID: "109999999999999999999",
		Email:    "bob@example.org",
		Name:     "Bob",
	})
	require.NoError(t, err)

	// The admin could have issued a token before revoking access.
	bearer, _, err := f.issuer.Issue(ctx, pending, "user", time.Time{})
	require.NoError(t, err)

	handler := NewAuthMiddleware(f.sessions, f.issuer, false).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a gated account")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthMiddleware_InvalidBearer(t *testing.T) {
	f := newAuthFixture(t)

	handler := NewAuthMiddleware(f.sessions, f.issuer, false).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_MissingAuth(t *testing.T) {
	f := newAuthFixture(t)

	t.Run("required", func(t *testing.T) {
		handler := NewAuthMiddleware(f.sessions, f.issuer, false).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("optional", func(t *testing.T) {
		var got *session.View
		handler := NewAuthMiddleware(f.sessions, f.issuer, true).Handler(echoView(t, &got))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, got)
	})
}

func TestRequireUser(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	serve := func(view *session.View) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if view != nil {
			req = req.WithContext(contextWithView(req.Context(), view))
		}
		rec := httptest.NewRecorder()
		RequireUser(next).ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, serve(nil).Code)
	assert.Equal(t, http.StatusForbidden, serve(&session.View{Secure: &session.SecureCapabilities{AllowLogin: false}}).Code)
	assert.Equal(t, http.StatusForbidden, serve(&session.View{Secure: &session.SecureCapabilities{AllowLogin: true, IsRetired: true}}).Code)
	assert.Equal(t, http.StatusOK, serve(&session.View{Secure: &session.SecureCapabilities{AllowLogin: true}}).Code)
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	serve := func(view *session.View) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(contextWithView(req.Context(), view))
		rec := httptest.NewRecorder()
		RequireAdmin(next).ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusForbidden, serve(&session.View{Secure: &session.SecureCapabilities{AllowLogin: true}}).Code)
	assert.Equal(t, http.StatusOK, serve(&session.View{Secure: &session.SecureCapabilities{AllowLogin: true, IsAdmin: true}}).Code)
}
