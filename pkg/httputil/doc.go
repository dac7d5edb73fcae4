// Package httputil provides shared HTTP plumbing for the auth service.
//
// # Responses
//
// JSON response helpers keep the error shape uniform across handlers:
//
//	httputil.WriteSuccess(w, view)
//	httputil.WriteConflict(w, "account is already linked")
//
// # Requests
//
// Body and parameter parsing with inline error responses:
//
//	var req issueTokenRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//
// # Middleware
//
// Request ID, structured request logging, panic recovery, CORS for the portal
// origin, and a body size cap, composed with Chain:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)(router)
package httputil
