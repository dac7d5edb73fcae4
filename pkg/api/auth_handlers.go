package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/ngi-firn/firn-auth/pkg/httputil"
	"github.com/ngi-firn/firn-auth/pkg/identity"
	"github.com/ngi-firn/firn-auth/pkg/middleware"
	"github.com/ngi-firn/firn-auth/pkg/oauth"
	"github.com/ngi-firn/firn-auth/pkg/observability"
	"github.com/ngi-firn/firn-auth/pkg/session"
	"github.com/ngi-firn/firn-auth/pkg/token"
)

// stateCookieName carries the OAuth state between the redirect and the callback.
const stateCookieName = "firn_oauth_state"

// AuthHandlers implements the browser-facing login flows and the bearer-token
// login endpoint.
type AuthHandlers struct {
	users    *identity.Service
	sessions *session.RedisStore
	issuer   *token.Issuer
	google   GoogleAuthenticator
	github   GitHubAuthenticator

	logger  *observability.Logger
	metrics *observability.Metrics

	secureCookies     bool
	postLoginRedirect string
}

// RegisterRoutes registers the /auth endpoints on the given router.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/google", h.googleLogin).Methods("GET")
	router.HandleFunc("/google/callback", h.googleCallback).Methods("GET")
	router.HandleFunc("/github", h.githubLogin).Methods("GET")
	router.HandleFunc("/github/callback", h.githubCallback).Methods("GET")
	router.HandleFunc("/token", h.tokenLogin).Methods("POST")
	router.HandleFunc("/logout", h.logout).Methods("POST")
}

func (h *AuthHandlers) googleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}
	h.startFlow(w, r, h.google.AuthCodeURL)
}

func (h *AuthHandlers) githubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "GitHub sign-in is not configured")
		return
	}
	h.startFlow(w, r, h.github.AuthCodeURL)
}

func (h *AuthHandlers) startFlow(w http.ResponseWriter, r *http.Request, authCodeURL func(string) string) {
	state, err := oauth.NewState()
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to generate oauth state")
		httputil.WriteInternalError(w, errors.New("failed to start sign-in"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, authCodeURL(state), http.StatusFound)
}

// checkState validates the callback state against the cookie set by startFlow.
func (h *AuthHandlers) checkState(r *http.Request) bool {
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	return cookie.Value == r.URL.Query().Get("state")
}

func (h *AuthHandlers) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
	})
}

func (h *AuthHandlers) googleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}

	ctx := r.Context()
	logger := observability.FromContext(ctx)
	h.clearStateCookie(w)

	if !h.checkState(r) {
		h.countLogin("google", "state_mismatch")
		h.failLogin(w, r, session.ErrorStatus("Sign-in failed", "The sign-in attempt could not be validated. Please try again."))
		return
	}

	g, err := h.google.Exchange(ctx, r.URL.Query().Get("code"))
	if errors.Is(err, oauth.ErrDomainNotAllowed) {
		h.countLogin("google", "domain_rejected")
		h.failLogin(w, r, session.ErrorStatus("Sign-in rejected", "This account belongs to an organization that is not allowed here."))
		return
	}
	if err != nil {
		logger.WithError(err).Warn("google code exchange failed")
		h.countLogin("google", "exchange_failed")
		h.failLogin(w, r, session.ErrorStatus("Sign-in failed", "Google did not confirm the sign-in. Please try again."))
		return
	}

	user, created, err := h.users.MatchOrRegister(ctx, g)
	if err != nil {
		logger.WithError(err).Error("identity matching failed")
		h.countLogin("google", "error")
		h.failLogin(w, r, session.ErrorStatus("Sign-in failed", "Something went wrong while signing you in. Please try again."))
		return
	}

	if created {
		h.countLogin("google", "registered")
		h.pendingLogin(w, r, user, "Account created", "Your account has been created and is awaiting approval by an administrator.")
		return
	}
	if !identity.CanLogin(user) {
		h.countLogin("google", "gated")
		if user.IsRetired {
			h.failLogin(w, r, session.ErrorStatus("Account retired", "This account has been retired and can no longer sign in."))
			return
		}
		h.pendingLogin(w, r, user, "Awaiting approval", "Your account has not been approved yet. Please check back later.")
		return
	}

	h.countLogin("google", "success")
	h.establishSession(w, r, user, session.ChannelGoogle,
		session.SuccessStatus("Welcome to Firn!", "Successfully signed in."))
}

func (h *AuthHandlers) githubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "GitHub sign-in is not configured")
		return
	}

	ctx := r.Context()
	logger := observability.FromContext(ctx)
	h.clearStateCookie(w)

	if !h.checkState(r) {
		h.countLogin("github", "state_mismatch")
		h.failLogin(w, r, session.ErrorStatus("Sign-in failed", "The sign-in attempt could not be validated. Please try again."))
		return
	}

	gh, err := h.github.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		logger.WithError(err).Warn("github code exchange failed")
		h.countLogin("github", "exchange_failed")
		h.failLogin(w, r, session.ErrorStatus("Sign-in failed", "GitHub did not confirm the sign-in. Please try again."))
		return
	}

	// An authenticated session turns the callback into a linking flow; without
	// one it is an ordinary GitHub sign-in against an existing link.
	if view := h.currentView(r); view != nil && view.Secure != nil {
		h.linkGitHub(w, r, view, gh)
		return
	}
	h.loginGitHub(w, r, gh)
}

func (h *AuthHandlers) linkGitHub(w http.ResponseWriter, r *http.Request, view *session.View, gh identity.GitHubIdentity) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	user, err := h.users.GetByID(ctx, view.Secure.UserID)
	if err != nil {
		logger.WithError(err).Error("failed to load linking target")
		h.countLinking("error")
		h.failLogin(w, r, session.ErrorStatus("Linking failed", "Something went wrong while linking your GitHub account."))
		return
	}

	linked, err := h.users.LinkGitHub(ctx, user, gh)
	switch {
	case errors.Is(err, identity.ErrAlreadyLinkedToOther):
		h.countLinking("conflict")
		h.failLogin(w, r, session.WarningStatus("Linking skipped", "Your account is already linked to a different GitHub identity."))
		return
	case errors.Is(err, identity.ErrSecondaryAlreadyClaimed):
		h.countLinking("conflict")
		h.failLogin(w, r, session.WarningStatus("Linking skipped", "That GitHub identity is already linked to another account."))
		return
	case err != nil:
		logger.WithError(err).Error("github linking failed")
		h.countLinking("error")
		h.failLogin(w, r, session.ErrorStatus("Linking failed", "Something went wrong while linking your GitHub account."))
		return
	}

	h.countLinking("success")
	h.establishSession(w, r, linked, session.ChannelGitHub,
		session.SuccessStatus("GitHub linked", "Your GitHub account is now linked."))
}

func (h *AuthHandlers) loginGitHub(w http.ResponseWriter, r *http.Request, gh identity.GitHubIdentity) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	user, err := h.users.MatchGitHub(ctx, gh)
	if errors.Is(err, identity.ErrUserNotFound) {
		h.countLogin("github", "unlinked")
		h.failLogin(w, r, session.ErrorStatus("No linked account",
			"No account is linked to this GitHub identity. Sign in with Google first, then link GitHub."))
		return
	}
	if err != nil {
		logger.WithError(err).Error("github matching failed")
		h.countLogin("github", "error")
		h.failLogin(w, r, session.ErrorStatus("Sign-in failed", "Something went wrong while signing you in. Please try again."))
		return
	}

	if !identity.CanLogin(user) {
		h.countLogin("github", "gated")
		h.failLogin(w, r, session.ErrorStatus("Account disabled", "This account is not allowed to sign in."))
		return
	}

	h.countLogin("github", "success")
	h.establishSession(w, r, user, session.ChannelGitHub,
		session.SuccessStatus("Welcome back!", "Successfully signed in with GitHub."))
}

// tokenLogin establishes a session from a bearer token, for clients that hold a
// token (e.g. scanned from a barcode) but no browser session.
func (h *AuthHandlers) tokenLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	bearer := bearerFromHeader(r.Header.Get("Authorization"))
	if bearer == "" {
		h.countLogin("token", "missing")
		httputil.WriteUnauthorized(w, "missing bearer token")
		return
	}

	user, record, err := h.issuer.Verify(ctx, bearer, middleware.BearerAudience)
	if err != nil {
		if token.IsVerification(err) {
			h.countLogin("token", "invalid")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}
		observability.FromContext(ctx).WithError(err).Error("token verification unavailable")
		h.countLogin("token", "error")
		httputil.WriteInternalError(w, errors.New("token verification unavailable"))
		return
	}
	if !identity.CanLogin(user) {
		h.countLogin("token", "gated")
		httputil.WriteForbidden(w, "account is not allowed to log in")
		return
	}

	// Best-effort; a lost race on the bump must not fail the login.
	if touched, err := h.issuer.TouchToken(ctx, user, record.TokenID); err == nil {
		user = touched
	}

	profile, secure := session.Project(user, session.ChannelToken)
	view := session.View{User: &profile, Secure: &secure}
	sessionID := session.NewSessionID()
	if err := h.writeSession(ctx, sessionID, view); err != nil {
		observability.FromContext(ctx).WithError(err).Error("session write failed")
		h.countLogin("token", "error")
		httputil.WriteInternalError(w, errors.New("failed to establish session"))
		return
	}
	h.setSessionCookie(w, sessionID)

	h.countLogin("token", "success")
	httputil.WriteSuccess(w, view)
}

func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			observability.FromContext(r.Context()).WithError(err).Warn("session delete failed")
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
	})
	httputil.WriteNoContent(w)
}

// establishSession rotates the session ID, writes the projected view with the
// given one-shot status, and redirects to the portal.
func (h *AuthHandlers) establishSession(w http.ResponseWriter, r *http.Request, user *identity.UserRecord, ch session.Channel, status *session.AuthStatus) {
	profile, secure := session.Project(user, ch)
	view := session.View{User: &profile, Secure: &secure, AuthStatus: status}

	sessionID := session.NewSessionID()
	if err := h.writeSession(r.Context(), sessionID, view); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("session write failed")
		httputil.WriteInternalError(w, errors.New("failed to establish session"))
		return
	}
	h.setSessionCookie(w, sessionID)
	http.Redirect(w, r, h.postLoginRedirect, http.StatusFound)
}

// pendingLogin writes a session that carries the profile and the status but no
// secure partition: the user is known, not authenticated.
func (h *AuthHandlers) pendingLogin(w http.ResponseWriter, r *http.Request, user *identity.UserRecord, title, message string) {
	profile, _ := session.Project(user, session.ChannelGoogle)
	status := &session.AuthStatus{Kind: session.StatusWarning, Reject: true, Title: title, Message: message}
	view := session.View{User: &profile, AuthStatus: status}

	sessionID := session.NewSessionID()
	if err := h.writeSession(r.Context(), sessionID, view); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("session write failed")
		httputil.WriteInternalError(w, errors.New("failed to establish session"))
		return
	}
	h.setSessionCookie(w, sessionID)
	http.Redirect(w, r, h.postLoginRedirect, http.StatusFound)
}

// failLogin attaches the status to the caller's session, preserving an existing
// authenticated view, and redirects. A failed re-login or link attempt must not
// log out a signed-in user.
func (h *AuthHandlers) failLogin(w http.ResponseWriter, r *http.Request, status *session.AuthStatus) {
	view := session.View{AuthStatus: status}
	sessionID := ""
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		sessionID = cookie.Value
		if existing, err := h.sessions.Peek(r.Context(), sessionID); err == nil {
			view.User = existing.User
			view.Secure = existing.Secure
		}
	}
	if sessionID == "" {
		sessionID = session.NewSessionID()
	}

	if err := h.writeSession(r.Context(), sessionID, view); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("session write failed")
	}
	h.setSessionCookie(w, sessionID)
	http.Redirect(w, r, h.postLoginRedirect, http.StatusFound)
}

// currentView resolves the caller's existing session, if any. The /auth routes
// run outside the auth middleware, so this peeks directly.
func (h *AuthHandlers) currentView(r *http.Request) *session.View {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	view, err := h.sessions.Peek(r.Context(), cookie.Value)
	if err != nil {
		return nil
	}
	return view
}

func (h *AuthHandlers) writeSession(ctx context.Context, sessionID string, view session.View) error {
	err := h.sessions.Write(ctx, sessionID, view)
	if h.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		h.metrics.SessionWritesTotal.WithLabelValues(outcome).Inc()
	}
	return err
}

func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandlers) countLogin(provider, outcome string) {
	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues(provider, outcome).Inc()
	}
}

func (h *AuthHandlers) countLinking(outcome string) {
	if h.metrics != nil {
		h.metrics.LinkingTotal.WithLabelValues(outcome).Inc()
	}
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
