// Package google resolves per-identity Google OAuth2 credentials.
//
// A Resolver loads the stored token pair for an identity and turns it into a
// Handle that API clients use to build authenticated HTTP clients. When Google
// rejects a refresh, the calendar layer reports a RefreshRejectedError and the
// caller hands it to Resolver.Invalidate, which deletes the stored record so
// the identity has to authorize again.
//
// The package also carries the thin OAuth2 consent flow (Flow) and revocation
// against Google's revoke endpoint.
package google
