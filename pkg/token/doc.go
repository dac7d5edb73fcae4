// Package token issues, verifies, and revokes the encrypted bearer tokens used
// for stateless (barcode/QR) authentication.
//
// # Design
//
// Tokens are compact JWEs (dir + A256GCM) rather than plain signed JWTs because
// they travel in low-entropy carriers like barcodes; nothing about the claims is
// readable without the service key. Claims are the token ID, the owning user's
// record ID, a fixed issuer URN, an optional normalized audience URN, and the
// usual iat/exp pair.
//
// The blob itself is never persisted. Each issued token gets a TokenRecord in the
// owning UserRecord's embedded token list, and verification cross-checks that
// registry after the cryptographic checks pass. Removing the record therefore
// revokes the token instantly even though the blob stays mathematically valid
// until its expiry.
//
// Issuance is only done once both the blob is minted and the registry entry is
// durably stored; a revision conflict on the registry write fails the whole
// issuance so no unrevocable token can exist.
package token
