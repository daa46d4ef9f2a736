// Package logging provides structured logging helpers for meetwhen.
//
// All logging goes through log/slog. The helpers here keep attribute names
// consistent and make sure participant identities and OAuth tokens never
// reach the logs in clear text.
//
//	logger := logging.WithComponent(slog.Default(), "scheduler")
//	logger.Info("credentials invalidated",
//	    logging.IdentityHash(identity),
//	    logging.Err(err))
//
// Identities are email addresses and therefore PII: log them with
// IdentityHash, which yields a stable, non-reversible identifier suitable for
// correlation. Tokens are only ever logged through SanitizeToken.
package logging
