package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ngi-firn/firn-auth/pkg/contextkeys"
	"github.com/ngi-firn/firn-auth/pkg/httputil"
	"github.com/ngi-firn/firn-auth/pkg/identity"
	"github.com/ngi-firn/firn-auth/pkg/session"
	"github.com/ngi-firn/firn-auth/pkg/token"
)

const (
	// SessionCookieName carries the session ID issued by the login handlers.
	SessionCookieName = "firn_session"

	// BearerAudience is the audience every bearer-authenticated API request is
	// verified against. Tokens minted without an audience also pass.
	BearerAudience = "user"
)

// AuthMiddleware resolves the caller's identity from either the session cookie
// or an Authorization bearer token and puts the resulting session view on the
// request context. The two paths converge on the same access-policy gate.
type AuthMiddleware struct {
	sessions *session.RedisStore
	issuer   *token.Issuer
	optional bool
}

// NewAuthMiddleware creates the authentication middleware. With optional=true,
// unauthenticated requests pass through with no view on the context.
func NewAuthMiddleware(sessions *session.RedisStore, issuer *token.Issuer, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		issuer:   issuer,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			m.serveBearer(w, r, next, authHeader)
			return
		}

		if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
			m.serveSession(w, r, next, cookie.Value)
			return
		}

		if m.optional {
			next.ServeHTTP(w, r)
			return
		}
		httputil.WriteUnauthorized(w, "authentication required")
	})
}

func (m *AuthMiddleware) serveBearer(w http.ResponseWriter, r *http.Request, next http.Handler, authHeader string) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		httputil.WriteUnauthorized(w, "invalid authorization header format")
		return
	}

	user, _, err := m.issuer.Verify(r.Context(), parts[1], BearerAudience)
	if err != nil {
		if token.IsVerification(err) {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}
		httputil.WriteInternalError(w, errors.New("token verification unavailable"))
		return
	}
	if !identity.CanLogin(user) {
		httputil.WriteForbidden(w, "account is not allowed to log in")
		return
	}

	profile, secure := session.Project(user, session.ChannelToken)
	view := &session.View{User: &profile, Secure: &secure}

	ctx := contextkeys.WithView(r.Context(), view)
	ctx = contextkeys.WithUserID(ctx, user.ID)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func (m *AuthMiddleware) serveSession(w http.ResponseWriter, r *http.Request, next http.Handler, sessionID string) {
	// Peek, not Read: the one-shot auth status belongs to the client endpoint.
	view, err := m.sessions.Peek(r.Context(), sessionID)
	if err != nil {
		if m.optional {
			next.ServeHTTP(w, r)
			return
		}
		httputil.WriteUnauthorized(w, "session expired or unknown")
		return
	}

	ctx := contextkeys.WithView(r.Context(), view)
	ctx = contextkeys.WithSessionID(ctx, sessionID)
	if view.Secure != nil {
		ctx = contextkeys.WithUserID(ctx, view.Secure.UserID)
	}
	next.ServeHTTP(w, r.WithContext(ctx))
}

// GetView extracts the resolved session view from the request, or nil.
func GetView(r *http.Request) *session.View {
	view, ok := r.Context().Value(contextkeys.ViewKey).(*session.View)
	if !ok {
		return nil
	}
	return view
}

// GetSessionID extracts the session ID from the request, or "" for
// bearer-authenticated and anonymous requests.
func GetSessionID(r *http.Request) string {
	return contextkeys.GetSessionID(r.Context())
}

// RequireUser admits only authenticated callers whose account passes the
// access-policy gate. The gate re-checks the secure partition, not the
// client-visible mirrors.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view := GetView(r)
		if view == nil || view.Secure == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if !view.Secure.AllowLogin || view.Secure.IsRetired {
			httputil.WriteForbidden(w, "account is not allowed to log in")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin admits only administrators. Implies RequireUser.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view := GetView(r)
		if !view.Secure.IsAdmin {
			httputil.WriteForbidden(w, "administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}
