// Package store persists conversations and their messages in SQLite.
// One process owns the database file; concurrent runs for different
// conversations share the single connection pool.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a conversation id does not exist.
var ErrNotFound = errors.New("conversation not found")

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	payload         TEXT NOT NULL,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
`

const defaultTitle = "New Conversation"

// Conversation is one stored conversation with its messages in append order.
// Messages are stored as raw JSON so the store stays schema-agnostic about
// message shapes.
type Conversation struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	CreatedAt string            `json:"created_at"`
	Messages  []json.RawMessage `json:"messages"`
}

// Summary is the list-view row for one conversation.
type Summary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
	MessageCount int    `json:"message_count"`
}

// Store is the SQLite-backed conversation store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store. With persist false the database lives
// in memory and vanishes on close; otherwise the parent directory of path is
// created as needed.
func Open(path string, persist bool) (*Store, error) {
	dsn := ":memory:"
	if persist {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create store directory: %w", err)
			}
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps the in-memory
	// database alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new empty conversation and returns it.
func (s *Store) Create(ctx context.Context) (*Conversation, error) {
	conv := &Conversation{
		ID:        uuid.NewString(),
		Title:     defaultTitle,
		CreatedAt: now(),
		Messages:  []json.RawMessage{},
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at) VALUES (?, ?, ?)`,
		conv.ID, conv.Title, conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// Load returns one conversation with all its messages, oldest first.
func (s *Store) Load(ctx context.Context, id string) (*Conversation, error) {
	conv := &Conversation{ID: id, Messages: []json.RawMessage{}}
	err := s.db.QueryRowContext(ctx,
		`SELECT title, created_at FROM conversations WHERE id = ?`, id).
		Scan(&conv.Title, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM messages WHERE conversation_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		conv.Messages = append(conv.Messages, json.RawMessage(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return conv, nil
}

// Delete removes a conversation and its messages.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all conversations, newest first, with message counts.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at, COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.created_at DESC, c.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAt, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return summaries, nil
}

// AppendMessage durably appends one message to a conversation. The message
// is marshalled to JSON; appends for the same conversation are serialized by
// the single-writer connection.
func (s *Store) AppendMessage(ctx context.Context, id string, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM conversations WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, payload, created_at) VALUES (?, ?, ?)`,
		id, string(payload), now())
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// UpdateTitle replaces a conversation's title.
func (s *Store) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// HasTitle reports whether the conversation already carries a non-default
// title. Used to decide whether a run should generate one.
func (s *Store) HasTitle(ctx context.Context, id string) (bool, error) {
	var title string
	err := s.db.QueryRowContext(ctx,
		`SELECT title FROM conversations WHERE id = ?`, id).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to read title: %w", err)
	}
	return title != "" && title != defaultTitle, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
