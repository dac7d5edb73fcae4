package api

import (
	"errors"
	"net/http"

	"github.com/ngi-firn/firn-auth/pkg/docstore"
	"github.com/ngi-firn/firn-auth/pkg/httputil"
	"github.com/ngi-firn/firn-auth/pkg/identity"
	"github.com/ngi-firn/firn-auth/pkg/observability"
	"github.com/ngi-firn/firn-auth/pkg/token"
)

// writeDomainError maps a domain error onto the HTTP response. This is the only
// place in the service where the error taxonomy meets status codes.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case docstore.IsConflict(err):
		httputil.WriteConflict(w, "the record was modified concurrently, retry the operation")
	case errors.Is(err, identity.ErrUserNotFound):
		httputil.WriteNotFoundError(w, "user not found")
	case errors.Is(err, identity.ErrAlreadyLinkedToOther):
		httputil.WriteConflict(w, identity.ErrAlreadyLinkedToOther.Error())
	case errors.Is(err, identity.ErrSecondaryAlreadyClaimed):
		httputil.WriteConflict(w, identity.ErrSecondaryAlreadyClaimed.Error())
	case token.IsVerification(err):
		httputil.WriteUnauthorized(w, err.Error())
	case identity.IsValidation(err):
		httputil.WriteValidationError(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("unhandled domain error")
		httputil.WriteInternalError(w, errors.New("internal server error"))
	}
}
