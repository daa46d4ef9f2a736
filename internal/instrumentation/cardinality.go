package instrumentation

import "strings"

// IdentityDomain reduces an identity to its email domain so it can be used
// as a metric label. Anything that is not a well formed address maps to
// "unknown".
//
//	IdentityDomain("jane@example.com")  // "example.com"
//	IdentityDomain("invalid")           // "unknown"
func IdentityDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "unknown"
	}
	return email[at+1:]
}
