package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(NewLogger(&buf, FormatJSON, false), "credentials")
	logger.Info("hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if record[KeyComponent] != "credentials" {
		t.Errorf("component = %v, want %q", record[KeyComponent], "credentials")
	}

	if WithComponent(nil, "x") == nil {
		t.Error("WithComponent(nil) returned nil")
	}
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, FormatText, false).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug message written at info level: %q", buf.String())
	}

	NewLogger(&buf, FormatText, true).Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug message missing at debug level: %q", buf.String())
	}
}

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "JSON", false).Info("hello")
	if !json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Errorf("json format produced %q", buf.String())
	}

	buf.Reset()
	NewLogger(&buf, "logfmt", false).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("unknown format should fall back to text, got %q", buf.String())
	}
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("boom"))
	if attr.Key != KeyError || attr.Value.String() != "boom" {
		t.Errorf("Err = %v, want error=boom", attr)
	}

	var buf bytes.Buffer
	NewLogger(&buf, FormatText, false).Info("ok", Err(nil))
	if strings.Contains(buf.String(), KeyError) {
		t.Errorf("Err(nil) should be omitted, got %q", buf.String())
	}
}

func TestAnonymizeIdentity(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		wantLen  int
	}{
		{name: "email", identity: "test@example.com", wantLen: 19},
		{name: "empty", identity: "", wantLen: 0},
		{name: "opaque id", identity: "c_1234@group.calendar.google.com", wantLen: 19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnonymizeIdentity(tt.identity)
			if len(got) != tt.wantLen {
				t.Errorf("AnonymizeIdentity(%q) length = %d, want %d", tt.identity, len(got), tt.wantLen)
			}
			if tt.wantLen > 0 && !strings.HasPrefix(got, "id:") {
				t.Errorf("AnonymizeIdentity(%q) = %q, want id: prefix", tt.identity, got)
			}
			if strings.Contains(got, "example") {
				t.Errorf("AnonymizeIdentity(%q) leaks the identity: %q", tt.identity, got)
			}
		})
	}
}

func TestAnonymizeIdentity_Stable(t *testing.T) {
	if AnonymizeIdentity("test@example.com") != AnonymizeIdentity("test@example.com") {
		t.Error("AnonymizeIdentity should be deterministic")
	}
	if AnonymizeIdentity("Test@Example.com") != AnonymizeIdentity("test@example.com") {
		t.Error("AnonymizeIdentity should ignore case")
	}
	if AnonymizeIdentity("test@example.com") == AnonymizeIdentity("other@example.com") {
		t.Error("different identities should hash differently")
	}
}

func TestIdentityHashes(t *testing.T) {
	attr := IdentityHash("jane@example.com")
	if attr.Key != KeyIdentityHash {
		t.Errorf("IdentityHash key = %q, want %q", attr.Key, KeyIdentityHash)
	}

	attr = IdentityHashes([]string{"a@example.com", "b@example.com"})
	if attr.Key != "identity_hashes" {
		t.Errorf("IdentityHashes key = %q, want %q", attr.Key, "identity_hashes")
	}
	hashes, ok := attr.Value.Any().([]string)
	if !ok || len(hashes) != 2 {
		t.Fatalf("IdentityHashes value = %v, want two hashes", attr.Value.Any())
	}
	if hashes[0] != AnonymizeIdentity("a@example.com") {
		t.Errorf("IdentityHashes[0] = %q, want %q", hashes[0], AnonymizeIdentity("a@example.com"))
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{token: "", want: "<empty>"},
		{token: "ya29.a0AfH6SM", want: "[token:13 chars]"},
	}
	for _, tt := range tests {
		if got := SanitizeToken(tt.token); got != tt.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}

func TestLoggerDoesNotLeakIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, FormatJSON, false)
	logger.Info("authorized", IdentityHash("alice@example.com"), slog.String("token", SanitizeToken("secret")))
	if strings.Contains(buf.String(), "alice") || strings.Contains(buf.String(), "secret") {
		t.Errorf("log output leaks PII: %q", buf.String())
	}
}
