// Package middleware provides the request authentication and rate limiting
// layers in front of the API handlers.
//
// AuthMiddleware resolves the caller from either the session cookie or an
// Authorization bearer token and puts a session.View on the request context;
// RequireUser and RequireAdmin gate handlers on the secure partition of that
// view. IPRateLimitMiddleware throttles the unauthenticated login and token
// endpoints per client IP.
package middleware
