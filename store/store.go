// Package store persists assembled bytecode artifacts in SQLite, keyed by
// the Keccak-256 digest of the code so identical programs share one row.
package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/purevm/purevm/keccak"
)

// ErrNotFound indicates the requested artifact doesn't exist.
var ErrNotFound = errors.New("artifact not found")

// Artifact is one stored program.
type Artifact struct {
	ID        string // hex Keccak-256 of Code
	Name      string
	Code      []byte
	CreatedAt time.Time
}

// Store handles SQLite storage for artifacts.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the artifact database at path. ":memory:" gives a
// throwaway in-process database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ID returns the artifact key for the given code.
func ID(code []byte) string {
	h := keccak.Sum256(code)
	return hex.EncodeToString(h[:])
}

// Put stores code under its content hash and returns the artifact ID.
// Re-putting identical code updates the name and keeps the original row.
func (s *Store) Put(name string, code []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ID(code)
	_, err := s.db.Exec(
		`INSERT INTO artifacts (id, name, code, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		id, name, code, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("saving artifact: %w", err)
	}
	return id, nil
}

// Get retrieves an artifact by ID.
func (s *Store) Get(id string) (*Artifact, error) {
	a := &Artifact{ID: id}
	err := s.db.QueryRow(
		"SELECT name, code, created_at FROM artifacts WHERE id = ?", id,
	).Scan(&a.Name, &a.Code, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying artifact: %w", err)
	}
	return a, nil
}

// Delete removes an artifact by ID. Deleting a missing ID is not an error.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM artifacts WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting artifact: %w", err)
	}
	return nil
}

// List returns all artifacts, newest first, without their code payloads.
func (s *Store) List() ([]*Artifact, error) {
	rows, err := s.db.Query(
		"SELECT id, name, created_at FROM artifacts ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("querying artifacts: %w", err)
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		a := &Artifact{}
		if err := rows.Scan(&a.ID, &a.Name, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
