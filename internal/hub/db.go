// Package hub is the remote replica service: it owns accounts and one
// state document per user, and streams document changes to subscribers.
package hub

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/onyx/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS documents (
	user_id    TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	body       BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// User is an account row.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// DB wraps the hub's SQLite database.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the database and applies the schema.
func Open(dsn string) (*DB, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	conn, err := sql.Open("sqlite3", dsn+sep+"_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

// CreateUser inserts u. A duplicate email yields apperr.ErrAlreadyExists.
func (db *DB) CreateUser(u User) error {
	_, err := db.conn.Exec(
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt.UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperr.ErrAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UserByEmail looks up an account.
func (db *DB) UserByEmail(email string) (*User, error) {
	var u User
	err := db.conn.QueryRow(
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// Document returns the stored document of userID.
func (db *DB) Document(userID string) ([]byte, error) {
	var body []byte
	err := db.conn.QueryRow(`SELECT body FROM documents WHERE user_id = ?`, userID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}
	return body, nil
}

// PutDocument overwrites the document of userID.
func (db *DB) PutDocument(userID string, body []byte, at time.Time) error {
	_, err := db.conn.Exec(
		`INSERT INTO documents (user_id, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		userID, body, at.UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}
