package common

import (
	"fmt"
	"strings"
)

// IdentitiesFromArgs reads argument key as either a comma-separated string
// or an array of strings and returns the trimmed identities. Blank entries
// are kept so they fail query validation instead of being silently dropped.
func IdentitiesFromArgs(args map[string]interface{}, key string) ([]string, error) {
	var parts []string
	switch v := args[key].(type) {
	case nil:
		return nil, fmt.Errorf("%s is required", key)
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%s is required", key)
		}
		parts = strings.Split(v, ",")
	case []interface{}:
		if len(v) == 0 {
			return nil, fmt.Errorf("%s is required", key)
		}
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", key, i)
			}
			parts = append(parts, s)
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", key)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

// IdentityFromArgs returns the trimmed string argument key.
func IdentityFromArgs(args map[string]interface{}, key string) (string, error) {
	raw, ok := args[key].(string)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return raw, nil
}

// NumberFromArgs returns the numeric argument key, or def when it is absent.
// Negative values are rejected.
func NumberFromArgs(args map[string]interface{}, key string, def float64) (float64, error) {
	v, present := args[key]
	if !present || v == nil {
		return def, nil
	}
	n, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s cannot be negative", key)
	}
	return n, nil
}

// identitiesForAudit collects the identities named by a tool call, whichever
// argument carries them.
func identitiesForAudit(args map[string]interface{}) []string {
	var out []string
	if ids, err := IdentitiesFromArgs(args, "identities"); err == nil {
		out = append(out, ids...)
	}
	if id, err := IdentityFromArgs(args, "identity"); err == nil {
		out = append(out, id)
	}
	return out
}
