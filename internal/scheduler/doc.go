// Package scheduler answers "when are all of these people free?".
//
// A Service resolves every identity's stored credentials, fetches busy
// blocks for all of them in parallel and feeds the union to the
// availability engine. The request is all or nothing: the first failing
// identity cancels the other fetches and no partial result is returned.
//
// Failures are reported so callers can react to them differently:
//   - ErrInvalidQuery: the query was rejected before anything was fetched.
//   - *google.NoCredentialError: the identity has to authorize again. This
//     includes identities whose refresh token Google just rejected; their
//     stored credentials are deleted before the error is returned.
//   - *google.TransientError: a network or quota problem outlived the
//     fetcher's retries. Credentials are kept.
package scheduler
