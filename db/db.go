// Package db provides database connection helpers, schema migration, and the chat message store.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// AnonymousUsername is stored when a connection carries no username claim.
const AnonymousUsername = "anonymous"

// Message is a single persisted chat line. Rows are immutable once inserted.
type Message struct {
	ID       int64  `json:"id"`
	Content  string `json:"content"`
	Username string `json:"username"`
}

// StorageError wraps any failure talking to Postgres. Op names the store
// operation that failed (append, list, schema, ping).
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err (or anything it wraps) is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// PoolOptions bounds the shared connection pool.
type PoolOptions struct {
	MaxOpenConns int
	MaxIdleConns int
}

// Connect opens a Postgres connection pool for dsn using the pgx stdlib driver.
// sql.Open is lazy; callers should Ping or EnsureSchema before serving traffic.
func Connect(dsn string, opts PoolOptions) (*sql.DB, error) {
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		database.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		database.SetMaxIdleConns(opts.MaxIdleConns)
	}
	return database, nil
}

// Migrate applies idempotent schema changes for all required tables.
func Migrate(ctx context.Context, db *sql.DB) error { return migratePostgres(ctx, db) }

func migratePostgres(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id SERIAL PRIMARY KEY,
			content TEXT NOT NULL,
			username TEXT NOT NULL
		)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// MessageStore is the append-only chat history backed by the messages table.
// It is safe for concurrent use; atomicity comes from single statements.
type MessageStore struct {
	db *sql.DB
}

// NewMessageStore returns a store using the given pool.
func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// EnsureSchema creates the messages table if it does not exist.
func (s *MessageStore) EnsureSchema(ctx context.Context) error {
	if err := Migrate(ctx, s.db); err != nil {
		return &StorageError{Op: "schema", Err: err}
	}
	return nil
}

// Append inserts a message and returns its generated id. An empty username
// is stored as AnonymousUsername.
func (s *MessageStore) Append(ctx context.Context, content, username string) (int64, error) {
	if username == "" {
		username = AnonymousUsername
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (content, username) VALUES ($1, $2) RETURNING id`,
		content, username).Scan(&id)
	if err != nil {
		return 0, &StorageError{Op: "append", Err: err}
	}
	return id, nil
}

// ListAll returns every stored message in ascending id order.
func (s *MessageStore) ListAll(ctx context.Context) ([]Message, error) {
	return s.query(ctx, "list", `SELECT id, content, username FROM messages ORDER BY id ASC`)
}

// ListAfter returns messages with id strictly greater than afterID, ascending.
// It backs connection-state recovery where the client already holds a prefix of the history.
func (s *MessageStore) ListAfter(ctx context.Context, afterID int64) ([]Message, error) {
	return s.query(ctx, "list", `SELECT id, content, username FROM messages WHERE id > $1 ORDER BY id ASC`, afterID)
}

// Ping checks that the pool can reach Postgres.
func (s *MessageStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &StorageError{Op: "ping", Err: err}
	}
	return nil
}

func (s *MessageStore) query(ctx context.Context, op, q string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &StorageError{Op: op, Err: err}
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Content, &m.Username); err != nil {
			return nil, &StorageError{Op: op, Err: err}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: op, Err: err}
	}
	return out, nil
}
