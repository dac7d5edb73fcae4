package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/ngi-firn/firn-auth/pkg/docstore"
	"github.com/ngi-firn/firn-auth/pkg/identity"
	"github.com/ngi-firn/firn-auth/pkg/middleware"
	"github.com/ngi-firn/firn-auth/pkg/session"
	"github.com/ngi-firn/firn-auth/pkg/token"
)

type stubGoogle struct {
	identity identity.GoogleIdentity
	err      error
}

func (s *stubGoogle) AuthCodeURL(state string) string {
	return "https://accounts.google.test/auth?state=" + state
}

func (s *stubGoogle) Exchange(ctx context.Context, code string) (identity.GoogleIdentity, error) {
	return s.identity, s.err
}

type stubGitHub struct {
	identity identity.GitHubIdentity
	err      error
}

func (s *stubGitHub) AuthCodeURL(state string) string {
	return "https://github.test/login/oauth/authorize?state=" + state
}

func (s *stubGitHub) Exchange(ctx context.Context, code string) (identity.GitHubIdentity, error) {
	return s.identity, s.err
}

type apiFixture struct {
	server   *Server
	users    *identity.Service
	sessions *session.RedisStore
	issuer   *token.Issuer
	google   *stubGoogle
	github   *stubGitHub
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	users := identity.NewService(docstore.NewMemoryStore(), "")
	sessions := session.NewRedisStoreWithClient(client, time.Hour)
	issuer := token.NewIssuer(users, token.DeriveKey("api test secret"), token.Options{})
	google := &stubGoogle{}
	github := &stubGitHub{}

	server := NewServer(Options{
		Users:             users,
		Sessions:          sessions,
		Issuer:            issuer,
		Google:            google,
		GitHub:            github,
		PostLoginRedirect: "/portal",
		LoginRateLimit: &middleware.RateLimitConfig{
			RequestsPerWindow: 1000,
			WindowDuration:    time.Minute,
			BurstSize:         100,
		},
	})

	return &apiFixture{
		server:   server,
		users:    users,
		sessions: sessions,
		issuer:   issuer,
		google:   google,
		github:   github,
	}
}

func (f *apiFixture) registerUser(t *testing.T, g identity.GoogleIdentity, approve bool) *identity.UserRecord {
	t.Helper()
	ctx := context.Background()
	user, _, err := f.users.MatchOrRegister(ctx, g)
	require.NoError(t, err)
	if approve {
		user.AllowLogin = true
		user, err = f.users.Save(ctx, user)
		require.NoError(t, err)
	}
	return user
}

func (f *apiFixture) registerAdmin(t *testing.T) *identity.UserRecord {
	t.Helper()
	ctx := context.Background()
	admin, _, err := f.users.MatchOrRegister(ctx, identity.GoogleIdentity{
		GoogleID: "100000000000000000001",
		Email:    "root@example.org",
		Name:     "Root",
	})
	require.NoError(t, err)
	admin.AllowLogin = true
	admin.IsAdmin = true
	admin, err = f.users.Save(ctx, admin)
	require.NoError(t, err)
	return admin
}

// seedSession writes a session directly to the store, bypassing the login flow.
func (f *apiFixture) seedSession(t *testing.T, user *identity.UserRecord, ch session.Channel) *http.Cookie {
	t.Helper()
	profile, secure := session.Project(user, ch)
	sessionID := session.NewSessionID()
	require.NoError(t, f.sessions.Write(context.Background(), sessionID, session.View{
		User:   &profile,
		Secure: &secure,
	}))
	return &http.Cookie{Name: middleware.SessionCookieName, Value: sessionID}
}

func (f *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

// startOAuth performs the redirect leg of an OAuth flow and returns the state
// cookie plus the state value baked into the provider URL.
func (f *apiFixture) startOAuth(t *testing.T, path string) (*http.Cookie, string) {
	t.Helper()
	rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusFound, rec.Code)

	var stateCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookieName {
			stateCookie = c
		}
	}
	require.NotNil(t, stateCookie, "login redirect must set the state cookie")
	return stateCookie, stateCookie.Value
}

// sessionCookie extracts the session cookie from a response, requiring it.
func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("response did not set a session cookie")
	return nil
}
