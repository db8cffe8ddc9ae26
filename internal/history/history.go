// Package history persists the displayable chat transcript for audit. The
// database is opened lazily; if SQLite is unavailable the store degrades to
// memory-only so the chat pipeline never blocks on audit plumbing.
package history

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/vendabot/vendabot/internal/logger"
)

// Record is one audited turn of a session.
type Record struct {
	ID        int64
	SessionID string
	Role      string
	Content   string
	IsError   bool
	CreatedAt time.Time
}

// Store keeps audit records in SQLite with an in-memory fallback.
type Store struct {
	path string

	once    sync.Once
	db      *sql.DB
	initErr error

	mu      sync.Mutex
	records []Record
}

// NewStore creates a store backed by the SQLite file at path. The file is
// created on first use.
func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) init() {
	db, err := sql.Open("sqlite", "file:"+s.path+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		s.initErr = err
		logger.For("history").Warn("sqlite open failed; using in-memory audit log", "error", err)
		return
	}
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		is_error INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);`); err != nil {
		s.initErr = err
		logger.For("history").Warn("sqlite table creation failed; using in-memory audit log", "error", err)
		return
	}
	s.db = db
}

// Save appends a record. SQLite failures fall back to the in-memory copy,
// which is always kept regardless.
func (s *Store) Save(rec Record) {
	s.once.Do(s.init)

	if s.initErr == nil && s.db != nil {
		if _, err := s.db.Exec(
			`INSERT INTO turns (session_id, role, content, is_error, created_at) VALUES (?,?,?,?,?);`,
			rec.SessionID, rec.Role, rec.Content, boolToInt(rec.IsError), rec.CreatedAt.Unix()); err != nil {
			logger.For("history").Error("failed to store turn in sqlite", "error", err)
		}
	}

	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
}

// List returns the records of a session in chronological order.
func (s *Store) List(sessionID string) []Record {
	s.once.Do(s.init)

	if s.initErr == nil && s.db != nil {
		rows, err := s.db.Query(
			`SELECT id, session_id, role, content, is_error, created_at FROM turns WHERE session_id = ? ORDER BY id ASC;`,
			sessionID)
		if err == nil {
			defer rows.Close()
			var out []Record
			for rows.Next() {
				var rec Record
				var isErr int
				var created int64
				if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Role, &rec.Content, &isErr, &created); err == nil {
					rec.IsError = isErr != 0
					rec.CreatedAt = time.Unix(created, 0)
					out = append(out, rec)
				}
			}
			return out
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, rec := range s.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out
}

// Close closes the database if it was opened.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
