// Package history provides SQLite-based persistence for chat messages.
// The database is opened lazily and created on first use.
// If opening the DB or executing queries fails, the store falls back to in-memory storage.
package history

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/agentgraph-go/internal/logger"
)

// Store persists chat turns per session.
type Store struct {
	path string

	mu       sync.Mutex
	messages []Message // in-memory fallback
	nextID   int64

	dbOnce  sync.Once
	db      *sql.DB
	initErr error
}

// New returns a store backed by the sqlite file at path. An empty path keeps
// everything in memory.
func New(path string) *Store {
	return &Store{path: path}
}

// initDB lazily opens the SQLite database and creates the messages table if it doesn't exist.
func (s *Store) initDB() {
	if s.path == "" {
		s.initErr = errMemoryOnly
		return
	}
	db, err := sql.Open("sqlite", "file:"+s.path+"?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)")
	if err != nil {
		s.initErr = err
		logger.L.Warn("sqlite open failed; using in-memory history", "error", err)
		return
	}
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT,
        role TEXT,
        content TEXT,
        avatar TEXT,
        created_at DATETIME
    );`); err != nil {
		s.initErr = err
		_ = db.Close()
		logger.L.Warn("sqlite table creation failed; using in-memory history", "error", err)
		return
	}
	s.db = db
	logger.L.Info("sqlite history DB initialized", "path", s.path)
}

func (s *Store) ready() bool {
	s.dbOnce.Do(s.initDB)
	return s.initErr == nil && s.db != nil
}

// Save persists a message to the SQLite database when available. Only messages
// that could not be written there are kept in memory.
func (s *Store) Save(ctx context.Context, msg Message) {
	if s.ready() {
		_, err := s.db.ExecContext(ctx, `INSERT INTO messages (session_id, role, content, avatar, created_at) VALUES (?,?,?,?,?);`,
			msg.SessionID, msg.Role, msg.Content, msg.Avatar, msg.CreatedAt)
		if err == nil {
			return
		}
		logger.L.Error("failed to store message in sqlite; falling back to memory", "error", err)
	}

	s.mu.Lock()
	s.nextID++
	msg.ID = s.nextID
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

// List returns all messages of a session in chronological order, followed by
// any that only made it into memory.
func (s *Store) List(ctx context.Context, sessionID string) []Message {
	var out []Message
	if s.ready() {
		rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, role, content, avatar, created_at FROM messages WHERE session_id = ? ORDER BY id ASC;`, sessionID)
		if err == nil {
			for rows.Next() {
				var m Message
				if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Avatar, &m.CreatedAt); err == nil {
					out = append(out, m)
				}
			}
			_ = rows.Close()
		} else {
			logger.L.Warn("sqlite history query failed; reading memory", "error", err)
		}
	}
	s.mu.Lock()
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	s.mu.Unlock()
	return out
}

// Delete removes every message of a session.
func (s *Store) Delete(ctx context.Context, sessionID string) {
	if s.ready() {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?;`, sessionID); err != nil {
			logger.L.Error("failed to delete session history in sqlite", "session", sessionID, "error", err)
		}
	}
	s.mu.Lock()
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.SessionID != sessionID {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	s.mu.Unlock()
}

// Close releases the database handle if one was opened.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
