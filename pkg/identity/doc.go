// Package identity implements the user registry: matching OAuth identities to
// UserRecords, linking a GitHub identity to a Google-rooted account, access policy
// evaluation, and the administrative user operations.
//
// # Trust model
//
// Google is the primary, trusted identity source; a UserRecord is rooted in a Google
// subject ID. GitHub is a secondary, less-trusted source that can only be linked to an
// existing record, never used to create one. GitHub sign-in matches strictly by GitHub
// ID; e-mail matching against GitHub profiles is deliberately not supported.
//
// # Concurrency
//
// Every mutation round-trips current-revision → mutate → revision-checked write through
// pkg/docstore. A revision conflict surfaces as docstore.ConflictError and is never
// retried here; the caller decides whether to restart the whole operation.
package identity
