package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	// ErrNoCredential indicates an identity has no usable authorization.
	ErrNoCredential = errors.New("no usable credentials")

	// ErrRefreshRejected indicates Google refused to refresh the stored token.
	ErrRefreshRejected = errors.New("token refresh rejected")

	// ErrTransient indicates a network or rate limit failure worth retrying later.
	ErrTransient = errors.New("transient failure")
)

// NoCredentialError reports that identity must authorize (again).
type NoCredentialError struct {
	Identity string
	Err      error
}

func (e *NoCredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no usable credentials for %s: %v", e.Identity, e.Err)
	}
	return fmt.Sprintf("no usable credentials for %s", e.Identity)
}

func (e *NoCredentialError) Unwrap() error { return e.Err }

// Is reports whether target is ErrNoCredential.
func (e *NoCredentialError) Is(target error) bool { return target == ErrNoCredential }

// RefreshRejectedError is raised at the fetch boundary when the refresh token
// was revoked or has expired.
type RefreshRejectedError struct {
	Identity string
	Err      error
}

func (e *RefreshRejectedError) Error() string {
	return fmt.Sprintf("token refresh rejected for %s: %v", e.Identity, e.Err)
}

func (e *RefreshRejectedError) Unwrap() error { return e.Err }

// Is reports whether target is ErrRefreshRejected.
func (e *RefreshRejectedError) Is(target error) bool { return target == ErrRefreshRejected }

// TransientError is a failure left after the caller's retry budget ran out.
type TransientError struct {
	Identity string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure for %s: %v", e.Identity, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTransient.
func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// IsNoCredential returns true if err means the identity must authorize.
func IsNoCredential(err error) bool {
	return errors.Is(err, ErrNoCredential)
}

// IsRefreshRejected returns true if err means the stored token is dead.
func IsRefreshRejected(err error) bool {
	return errors.Is(err, ErrRefreshRejected)
}

// IsTransient returns true if err is a transient failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsRateLimited returns true if err is a 429 from a Google API.
func IsRateLimited(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests
	}
	return false
}

// oauth2 error codes that mean the grant is gone for good.
var rejectedGrantCodes = map[string]bool{
	"invalid_grant":       true,
	"unauthorized_client": true,
	"invalid_client":      true,
}

// ClassifyTokenError maps errors from token refreshes and Google API calls to
// RefreshRejectedError or TransientError. Errors that fit neither, including
// context cancellation, are returned unchanged.
func ClassifyTokenError(identity string, err error) error {
	if err == nil {
		return nil
	}
	if IsNoCredential(err) || IsRefreshRejected(err) || IsTransient(err) {
		return err
	}

	// RetrieveError arrives wrapped in *url.Error, which also satisfies
	// net.Error, so it has to be checked first.
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		status := 0
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}
		switch {
		case rejectedGrantCodes[rerr.ErrorCode]:
			return &RefreshRejectedError{Identity: identity, Err: err}
		case status == http.StatusBadRequest || status == http.StatusUnauthorized:
			return &RefreshRejectedError{Identity: identity, Err: err}
		case status == http.StatusTooManyRequests || status >= 500:
			return &TransientError{Identity: identity, Err: err}
		}
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return &RefreshRejectedError{Identity: identity, Err: err}
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return &TransientError{Identity: identity, Err: err}
		case gerr.Code == http.StatusForbidden && isRateLimitReason(gerr):
			return &TransientError{Identity: identity, Err: err}
		}
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return &TransientError{Identity: identity, Err: err}
	}
	return err
}

func isRateLimitReason(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}
