package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ngi-firn/firn-auth/pkg/httputil"
	"github.com/ngi-firn/firn-auth/pkg/identity"
	"github.com/ngi-firn/firn-auth/pkg/middleware"
	"github.com/ngi-firn/firn-auth/pkg/observability"
	"github.com/ngi-firn/firn-auth/pkg/token"
)

// TokenHandlers implements self-service token issuance, revocation, and
// validation for the authenticated caller.
type TokenHandlers struct {
	users   *identity.Service
	issuer  *token.Issuer
	metrics *observability.Metrics
}

// RegisterRoutes registers the token endpoints on the given router. All three
// sit behind the access-policy gate; pending and retired accounts manage no
// tokens.
func (h *TokenHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/tokens", middleware.RequireUser(http.HandlerFunc(h.issue))).Methods("POST")
	router.Handle("/tokens", middleware.RequireUser(http.HandlerFunc(h.revoke))).Methods("DELETE")
	router.Handle("/tokens/validate", middleware.RequireUser(http.HandlerFunc(h.validate))).Methods("POST")
}

type issueTokenRequest struct {
	// Audience scopes the token to a resource; empty means any.
	Audience string `json:"audience"`
	// ExpiresAt defaults to the issuer's TTL when zero.
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

type issueTokenResponse struct {
	// Token is the bearer blob, shown exactly once.
	Token  string               `json:"token"`
	Record identity.TokenRecord `json:"record"`
}

func (h *TokenHandlers) issue(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, ok := h.callerRecord(w, r)
	if !ok {
		return
	}

	bearer, updated, err := h.issuer.Issue(r.Context(), user, req.Audience, req.ExpiresAt)
	if err != nil {
		h.countTokenOp("issue", "error")
		writeDomainError(w, r, err)
		return
	}
	h.countTokenOp("issue", "success")

	// Issue appends the new record last.
	httputil.WriteCreated(w, issueTokenResponse{
		Token:  bearer,
		Record: updated.Tokens[len(updated.Tokens)-1],
	})
}

type revokeTokensRequest struct {
	TokenIDs []string `json:"tokenIDs"`
}

type revokeTokensResponse struct {
	Tokens []identity.TokenRecord `json:"tokens"`
}

func (h *TokenHandlers) revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeTokensRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.TokenIDs) == 0 {
		httputil.WriteValidationError(w, "tokenIDs is required")
		return
	}

	user, ok := h.callerRecord(w, r)
	if !ok {
		return
	}

	updated, err := h.issuer.Revoke(r.Context(), user, req.TokenIDs)
	if err != nil {
		h.countTokenOp("revoke", "error")
		writeDomainError(w, r, err)
		return
	}
	h.countTokenOp("revoke", "success")

	httputil.WriteSuccess(w, revokeTokensResponse{Tokens: updated.Tokens})
}

type validateTokenRequest struct {
	Token    string `json:"token"`
	Audience string `json:"audience"`
}

type validateTokenResponse struct {
	Valid  bool                 `json:"valid"`
	Record identity.TokenRecord `json:"record"`
}

func (h *TokenHandlers) validate(w http.ResponseWriter, r *http.Request) {
	var req validateTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Token, "token") {
		return
	}

	_, record, err := h.issuer.Verify(r.Context(), req.Token, req.Audience)
	if err != nil {
		h.countTokenOp("verify", "failure")
		writeDomainError(w, r, err)
		return
	}
	h.countTokenOp("verify", "success")

	httputil.WriteSuccess(w, validateTokenResponse{Valid: true, Record: *record})
}

// callerRecord re-reads the caller's user record so token writes run against
// the freshest revision, not the one captured at session creation.
func (h *TokenHandlers) callerRecord(w http.ResponseWriter, r *http.Request) (*identity.UserRecord, bool) {
	view := middleware.GetView(r)
	if view == nil || view.Secure == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	user, err := h.users.GetByID(r.Context(), view.Secure.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return nil, false
	}
	return user, true
}

func (h *TokenHandlers) countTokenOp(operation, outcome string) {
	if h.metrics != nil {
		h.metrics.TokenOperationsTotal.WithLabelValues(operation, outcome).Inc()
	}
}
