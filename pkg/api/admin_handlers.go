package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ngi-firn/firn-auth/pkg/httputil"
	"github.com/ngi-firn/firn-auth/pkg/identity"
	"github.com/ngi-firn/firn-auth/pkg/observability"
	"github.com/ngi-firn/firn-auth/pkg/token"
)

// AdminHandlers implements the administrator endpoints for managing user
// accounts and their tokens. Routes registered here must sit behind the admin
// gate.
type AdminHandlers struct {
	users  *identity.Service
	issuer *token.Issuer

	logger  *observability.Logger
	metrics *observability.Metrics
}

// RegisterRoutes registers the admin endpoints on the given router.
func (h *AdminHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.createUser).Methods("POST")
	router.HandleFunc("/users/access", h.setAccess).Methods("PATCH")
	router.HandleFunc("/users/pending", h.listUsers(h.users.ListPending)).Methods("GET")
	router.HandleFunc("/users/approved", h.listUsers(h.users.ListApproved)).Methods("GET")
	router.HandleFunc("/users/retired", h.listUsers(h.users.ListRetired)).Methods("GET")
	router.HandleFunc("/users/{googleID}", h.deleteUser).Methods("DELETE")
	router.HandleFunc("/users/{googleID}/tokens", h.revokeAllTokens).Methods("DELETE")
}

// adminUserView is the admin-facing projection of a UserRecord. Tokens appear
// as registry entries only; bearer blobs are never stored, so there is nothing
// more to leak.
type adminUserView struct {
	GoogleID     string                 `json:"googleId"`
	Email        string                 `json:"email"`
	Name         string                 `json:"name"`
	GivenName    string                 `json:"givenName"`
	FamilyName   string                 `json:"familyName"`
	LinkedGitHub bool                   `json:"linkedGitHub"`
	AllowLogin   bool                   `json:"allowLogin"`
	IsRetired    bool                   `json:"isRetired"`
	IsAdmin      bool                   `json:"isAdmin"`
	CreatedAt    time.Time              `json:"createdAt"`
	LastSeenAt   time.Time              `json:"lastSeenAt"`
	Tokens       []identity.TokenRecord `json:"tokens"`
}

func adminView(u *identity.UserRecord) adminUserView {
	return adminUserView{
		GoogleID:     u.GoogleID,
		Email:        u.GoogleEmail,
		Name:         u.GoogleName,
		GivenName:    u.GoogleGivenName,
		FamilyName:   u.GoogleFamilyName,
		LinkedGitHub: u.LinkedGitHub(),
		AllowLogin:   u.AllowLogin,
		IsRetired:    u.IsRetired,
		IsAdmin:      u.IsAdmin,
		CreatedAt:    u.CreatedAt,
		LastSeenAt:   u.LastSeenAt,
		Tokens:       u.Tokens,
	}
}

type createUserRequest struct {
	Email      string `json:"email"`
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	// AllowLogin defaults to true: the point of pre-creating an account is to
	// let the person in on first login.
	AllowLogin *bool `json:"allowLogin"`
	IsRetired  bool  `json:"isRetired"`
	IsAdmin    bool  `json:"isAdmin"`
}

func (h *AdminHandlers) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}

	allowLogin := true
	if req.AllowLogin != nil {
		allowLogin = *req.AllowLogin
	}

	user, err := h.users.CreateUserByAdmin(r.Context(), identity.CreateUserByAdminInput{
		Email:      req.Email,
		GivenName:  req.GivenName,
		FamilyName: req.FamilyName,
		AllowLogin: allowLogin,
		IsRetired:  req.IsRetired,
		IsAdmin:    req.IsAdmin,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).
		WithField("created_google_id", user.GoogleID).
		Info("admin created user")
	httputil.WriteCreated(w, adminView(user))
}

type setAccessRequest struct {
	GoogleID   string `json:"googleId"`
	AllowLogin bool   `json:"allowLogin"`
	IsRetired  bool   `json:"isRetired"`
	IsAdmin    bool   `json:"isAdmin"`
}

func (h *AdminHandlers) setAccess(w http.ResponseWriter, r *http.Request) {
	var req setAccessRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.GoogleID, "googleId") {
		return
	}

	user, err := h.users.SetUserAccess(r.Context(), identity.SetUserAccessInput{
		GoogleID:   req.GoogleID,
		AllowLogin: req.AllowLogin,
		IsRetired:  req.IsRetired,
		IsAdmin:    req.IsAdmin,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).
		WithField("target_google_id", user.GoogleID).
		WithField("allow_login", user.AllowLogin).
		WithField("is_retired", user.IsRetired).
		WithField("is_admin", user.IsAdmin).
		Info("admin changed user access")
	httputil.WriteSuccess(w, adminView(user))
}

func (h *AdminHandlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	googleID, ok := httputil.ParsePathStringOrError(w, r, "googleID")
	if !ok {
		return
	}

	user, err := h.users.DeleteUserByAdmin(r.Context(), googleID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).
		WithField("deleted_google_id", user.GoogleID).
		Info("admin deleted user")
	httputil.WriteNoContent(w)
}

// revokeAllTokens empties a user's token registry. Every outstanding bearer for
// that user stops verifying immediately.
func (h *AdminHandlers) revokeAllTokens(w http.ResponseWriter, r *http.Request) {
	googleID, ok := httputil.ParsePathStringOrError(w, r, "googleID")
	if !ok {
		return
	}

	user, err := h.users.GetByGoogleID(r.Context(), googleID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	ids := make([]string, 0, len(user.Tokens))
	for _, rec := range user.Tokens {
		ids = append(ids, rec.TokenID)
	}

	if _, err := h.issuer.Revoke(r.Context(), user, ids); err != nil {
		writeDomainError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).
		WithField("target_google_id", googleID).
		WithField("revoked", len(ids)).
		Info("admin revoked all tokens")
	httputil.WriteSuccess(w, map[string]int{"revoked": len(ids)})
}

func (h *AdminHandlers) listUsers(list func(ctx context.Context) ([]*identity.UserRecord, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := list(r.Context())
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		views := make([]adminUserView, 0, len(users))
		for _, u := range users {
			views = append(views, adminView(u))
		}
		h.updateUserGauges(r.Context())
		httputil.WriteSuccess(w, views)
	}
}

// updateUserGauges refreshes the per-state user counts, best-effort.
func (h *AdminHandlers) updateUserGauges(ctx context.Context) {
	if h.metrics == nil {
		return
	}
	users, err := h.users.ListAll(ctx)
	if err != nil {
		return
	}
	var pending, approved, retired float64
	for _, u := range users {
		switch {
		case u.IsRetired:
			retired++
		case u.AllowLogin:
			approved++
		default:
			pending++
		}
	}
	h.metrics.UsersTotal.WithLabelValues("pending").Set(pending)
	h.metrics.UsersTotal.WithLabelValues("approved").Set(approved)
	h.metrics.UsersTotal.WithLabelValues("retired").Set(retired)
}
