package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/teemow/meetwhen/internal/credentials"
	"github.com/teemow/meetwhen/internal/logging"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Supported dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// DefaultFileName is the database file created inside the sqlite data directory.
const DefaultFileName = "credentials.db"

// Config selects the backend and its location.
type Config struct {
	// Dialect is "sqlite" or "postgres".
	Dialect string

	// DataDir holds the sqlite database file. Defaults to ~/.meetwhen.
	DataDir string

	// DSN is the PostgreSQL connection string.
	DSN string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Dialect {
	case DialectSQLite:
		return nil
	case DialectPostgres:
		if c.DSN == "" {
			return fmt.Errorf("postgres store requires a DSN")
		}
		return nil
	default:
		return fmt.Errorf("unsupported store dialect %q (supported: %s, %s)", c.Dialect, DialectSQLite, DialectPostgres)
	}
}

// Store is a credentials.Store backed by a SQL database.
type Store struct {
	db      *sql.DB
	dialect string
	path    string
	locks   *credentials.KeyedMutex
	now     func() time.Time
	logger  *slog.Logger
}

var _ credentials.Store = (*Store)(nil)

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Dialect == DialectPostgres {
		return NewPostgres(ctx, cfg.DSN)
	}
	return NewSQLite(ctx, cfg.DataDir)
}

// NewSQLite opens (creating if needed) the sqlite database in dataDir.
// If dataDir is empty, defaults to ~/.meetwhen.
func NewSQLite(ctx context.Context, dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".meetwhen")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DefaultFileName)

	// WAL lets readers proceed while a writer holds the lock
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := newStore(db, DialectSQLite)
	s.path = dbPath
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres connects to PostgreSQL using dsn.
func NewPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := newStore(db, DialectPostgres)
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newStore(db *sql.DB, dialect string) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		locks:   credentials.NewKeyedMutex(),
		now:     time.Now,
		logger:  slog.Default(),
	}
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// migrate applies the embedded migrations for the store's dialect.
func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations/"+s.dialect)
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	gooseDialect := goose.DialectSQLite3
	if s.dialect == DialectPostgres {
		gooseDialect = goose.DialectPostgres
	}

	provider, err := goose.NewProvider(gooseDialect, s.db, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	for _, r := range results {
		s.logger.Debug("applied migration",
			slog.String("dialect", s.dialect),
			slog.String("source", r.Source.Path),
			slog.Duration(logging.KeyDuration, r.Duration))
	}
	return nil
}

// Put inserts or replaces the record for r.Identity.
func (s *Store) Put(ctx context.Context, r credentials.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = s.now()
	}

	unlock := s.locks.Lock(r.Identity)
	defer unlock()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO credentials (identity, access_token, refresh_token, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at
	`), r.Identity, r.AccessToken, r.RefreshToken, r.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	s.logger.Debug("stored credentials",
		logging.IdentityHash(r.Identity),
		slog.String("access_token", logging.SanitizeToken(r.AccessToken)))
	return nil
}

// Get retrieves the record for identity or credentials.ErrNotFound.
func (s *Store) Get(ctx context.Context, identity string) (*credentials.Record, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT identity, access_token, refresh_token, updated_at
		FROM credentials WHERE identity = ?
	`), identity)

	var r credentials.Record
	if err := row.Scan(&r.Identity, &r.AccessToken, &r.RefreshToken, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, credentials.ErrNotFound
		}
		return nil, fmt.Errorf("scanning credentials: %w", err)
	}
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

// Delete removes the record for identity. Missing identities are ignored.
func (s *Store) Delete(ctx context.Context, identity string) error {
	unlock := s.locks.Lock(identity)
	defer unlock()

	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM credentials WHERE identity = ?"), identity)
	if err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Info("deleted credentials", logging.IdentityHash(identity))
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the sqlite database file path. Empty for postgres.
func (s *Store) Path() string {
	return s.path
}

// Dialect returns the store's SQL dialect.
func (s *Store) Dialect() string {
	return s.dialect
}

// rebind converts ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
