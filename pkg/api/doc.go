// Package api exposes the HTTP surface of the auth service: the browser-facing
// OAuth login flows under /auth, the authenticated JSON API under /api, and the
// admin endpoints under /api/admin.
//
// Handlers translate domain errors into HTTP statuses at this boundary and
// nowhere else: revision conflicts become 409, missing users 404, linking
// collisions 409 with a specific message, token verification failures 401, and
// validation failures 400. Browser flows never see raw errors; they get a
// one-shot auth status attached to the session and a redirect.
package api
