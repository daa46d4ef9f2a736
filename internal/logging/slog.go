package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Common log attribute keys.
const (
	KeyComponent    = "component"
	KeyIdentityHash = "identity_hash"
	KeyDuration     = "duration"
	KeyError        = "error"
	KeyTool         = "tool"
)

// Log output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// NewLogger builds a slog.Logger writing to w in the given format.
// Unknown formats fall back to text.
func NewLogger(w io.Writer, format string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(format, FormatJSON) {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// WithComponent returns a logger with the component attribute set.
// A nil logger is replaced by slog.Default().
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String(KeyComponent, component))
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that slog omits from output,
// so Err(maybeNilErr) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeIdentity returns a stable, non-reversible stand-in for an
// identity. The empty identity stays empty.
func AnonymizeIdentity(identity string) string {
	if identity == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(strings.ToLower(identity)))
	return "id:" + hex.EncodeToString(hash[:8])
}

// IdentityHash returns a slog attribute with the anonymized identity.
//
//	logger.Info("credentials invalidated", logging.IdentityHash(identity))
func IdentityHash(identity string) slog.Attr {
	return slog.String(KeyIdentityHash, AnonymizeIdentity(identity))
}

// IdentityHashes returns a slog attribute listing several anonymized identities.
func IdentityHashes(identities []string) slog.Attr {
	hashed := make([]string, len(identities))
	for i, id := range identities {
		hashed[i] = AnonymizeIdentity(id)
	}
	return slog.Any(KeyIdentityHash+"es", hashed)
}

// SanitizeToken returns a length indicator without exposing token content.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
