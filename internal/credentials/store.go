package credentials

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when no record exists for an identity.
	ErrNotFound = errors.New("credentials not found")

	// ErrInvalidRecord is returned when a record cannot be stored as given.
	ErrInvalidRecord = errors.New("invalid credentials record")
)

// Record is the token pair stored for one identity.
type Record struct {
	Identity     string
	AccessToken  string
	RefreshToken string
	UpdatedAt    time.Time
}

// Validate checks that the record can be keyed.
func (r Record) Validate() error {
	if r.Identity == "" {
		return errors.Join(ErrInvalidRecord, errors.New("identity cannot be empty"))
	}
	return nil
}

// Store persists credential records keyed by identity.
type Store interface {
	// Put inserts or replaces the record for r.Identity. The write is durable
	// once Put returns.
	Put(ctx context.Context, r Record) error

	// Get returns the current record or ErrNotFound.
	Get(ctx context.Context, identity string) (*Record, error)

	// Delete removes the record. Deleting a missing identity is not an error.
	Delete(ctx context.Context, identity string) error

	// Close releases resources held by the store.
	Close() error
}
