package credentials

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/meetwhen/internal/logging"
)

// MemoryStore keeps credential records in process memory.
type MemoryStore struct {
	locks   *KeyedMutex
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
	logger  *slog.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:   NewKeyedMutex(),
		records: make(map[string]Record),
		now:     time.Now,
		logger:  slog.Default(),
	}
}

// SetLogger sets a custom logger for the store.
func (s *MemoryStore) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// Put stores r, replacing any existing record for the same identity.
func (s *MemoryStore) Put(ctx context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.locks.Lock(r.Identity)
	defer unlock()

	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = s.now().UTC()
	}

	s.mu.Lock()
	s.records[r.Identity] = r
	logger := s.logger
	s.mu.Unlock()

	logger.Debug("stored credentials",
		logging.IdentityHash(r.Identity),
		slog.String("access_token", logging.SanitizeToken(r.AccessToken)))
	return nil
}

// Get returns a copy of the record for identity or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, identity string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[identity]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// Delete removes the record for identity if present.
func (s *MemoryStore) Delete(ctx context.Context, identity string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.locks.Lock(identity)
	defer unlock()

	s.mu.Lock()
	_, existed := s.records[identity]
	delete(s.records, identity)
	logger := s.logger
	s.mu.Unlock()

	if existed {
		logger.Info("deleted credentials", logging.IdentityHash(identity))
	}
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
