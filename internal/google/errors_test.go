package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

func TestClassifyTokenError(t *testing.T) {
	retrieve := func(status int, code string) error {
		return &url.Error{Op: "Get", URL: "https://www.googleapis.com/calendar/v3/freeBusy", Err: &oauth2.RetrieveError{
			Response:  &http.Response{StatusCode: status},
			ErrorCode: code,
		}}
	}

	tests := []struct {
		name          string
		err           error
		wantRejected  bool
		wantTransient bool
	}{
		{name: "invalid_grant", err: retrieve(http.StatusBadRequest, "invalid_grant"), wantRejected: true},
		{name: "unauthorized_client", err: retrieve(http.StatusUnauthorized, "unauthorized_client"), wantRejected: true},
		{name: "bare 401 from token endpoint", err: retrieve(http.StatusUnauthorized, ""), wantRejected: true},
		{name: "token endpoint 503", err: retrieve(http.StatusServiceUnavailable, ""), wantTransient: true},
		{name: "api 401", err: &googleapi.Error{Code: http.StatusUnauthorized}, wantRejected: true},
		{name: "api 429", err: &googleapi.Error{Code: http.StatusTooManyRequests}, wantTransient: true},
		{name: "api 500", err: fmt.Errorf("query: %w", &googleapi.Error{Code: http.StatusInternalServerError}), wantTransient: true},
		{
			name:          "api 403 rate limit",
			err:           &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}},
			wantTransient: true,
		},
		{name: "api 403 forbidden", err: &googleapi.Error{Code: http.StatusForbidden}},
		{name: "api 404", err: &googleapi.Error{Code: http.StatusNotFound}},
		{name: "network", err: &url.Error{Op: "Post", URL: "https://oauth2.googleapis.com/token", Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}, wantTransient: true},
		{name: "cancelled", err: fmt.Errorf("query: %w", context.Canceled)},
		{name: "plain", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyTokenError("alice@example.com", tt.err)
			assert.Equal(t, tt.wantRejected, IsRefreshRejected(got), "rejected")
			assert.Equal(t, tt.wantTransient, IsTransient(got), "transient")
			assert.ErrorIs(t, got, tt.err, "cause is preserved")
		})
	}
}

func TestClassifyTokenError_Nil(t *testing.T) {
	assert.NoError(t, ClassifyTokenError("a", nil))
}

func TestClassifyTokenError_AlreadyClassified(t *testing.T) {
	orig := &TransientError{Identity: "a", Err: errors.New("x")}
	assert.Same(t, orig, ClassifyTokenError("b", orig))
}

func TestTypedErrors(t *testing.T) {
	cause := errors.New("invalid_grant")

	nc := &NoCredentialError{Identity: "alice@example.com", Err: cause}
	assert.True(t, IsNoCredential(nc))
	assert.ErrorIs(t, nc, cause)
	assert.Contains(t, nc.Error(), "alice@example.com")
	assert.False(t, IsTransient(nc))

	wrapped := fmt.Errorf("scheduling: %w", nc)
	var target *NoCredentialError
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "alice@example.com", target.Identity)

	rr := &RefreshRejectedError{Identity: "bob@example.com", Err: cause}
	assert.True(t, IsRefreshRejected(rr))
	assert.False(t, IsNoCredential(rr))

	te := &TransientError{Identity: "bob@example.com", Err: cause}
	assert.True(t, IsTransient(te))
	assert.False(t, IsNoCredential(te), "a network blip never asks for re-authorization")
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(&googleapi.Error{Code: http.StatusTooManyRequests}))
	assert.False(t, IsRateLimited(&googleapi.Error{Code: http.StatusInternalServerError}))
	assert.False(t, IsRateLimited(errors.New("x")))
}
