// Package session derives request-scoped views from a UserRecord and stores them
// in a Redis-backed session store.
//
// A session splits into two partitions: the client-visible PublicProfile, whose
// authorization mirrors are display-only, and the server-only SecureCapabilities,
// which is the only thing middleware may trust for authorization decisions. An
// optional one-shot AuthStatus message rides along on session writes and is
// consumed by the next read.
package session
