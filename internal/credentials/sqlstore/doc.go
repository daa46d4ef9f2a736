// Package sqlstore implements credentials.Store on top of database/sql.
//
// Two dialects are supported:
//
//   - sqlite, using the pure Go modernc.org/sqlite driver with WAL journaling;
//   - postgres, using the jackc/pgx stdlib driver.
//
// The schema lives in embedded goose migrations and is applied when the store
// is opened. Every statement is parameterized and keyed by identity.
package sqlstore
