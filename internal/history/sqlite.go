package history

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore keeps history in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite history store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite history store: open")
	}
	// a single connection keeps :memory: databases shared across calls
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS chats_by_user ON chats(user_id, created_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS messages_by_chat ON messages(chat_id, created_at_ms);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite history store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) CreateChat(ctx context.Context, userID, title string) (Chat, error) {
	chat, err := newChat(userID, title)
	if err != nil {
		return Chat{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chats (id, user_id, title, created_at_ms, updated_at_ms) VALUES (?, ?, ?, ?, ?)`,
		chat.ID, chat.UserID, chat.Title, chat.CreatedAt.UnixMilli(), chat.UpdatedAt.UnixMilli())
	if err != nil {
		return Chat{}, errors.Wrap(err, "sqlite history store: insert chat")
	}
	return chat, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, userID, chatID string, msg Message) (Message, error) {
	msg, err := prepareMessage(userID, chatID, msg)
	if err != nil {
		return Message{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, errors.Wrap(err, "sqlite history store: begin")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at_ms = ? WHERE id = ? AND user_id = ?`,
		msg.CreatedAt.UnixMilli(), chatID, userID)
	if err != nil {
		return Message{}, errors.Wrap(err, "sqlite history store: touch chat")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Message{}, ErrChatNotFound
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, role, text, created_at_ms) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, chatID, msg.Role, msg.Text, msg.CreatedAt.UnixMilli())
	if err != nil {
		return Message{}, errors.Wrap(err, "sqlite history store: insert message")
	}
	if err := tx.Commit(); err != nil {
		return Message{}, errors.Wrap(err, "sqlite history store: commit")
	}
	return msg, nil
}

func (s *SQLiteStore) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at_ms, updated_at_ms FROM chats
		 WHERE user_id = ? ORDER BY created_at_ms DESC, rowid DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite history store: list chats")
	}
	defer rows.Close()
	var out []Chat
	for rows.Next() {
		var c Chat
		var created, updated int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &created, &updated); err != nil {
			return nil, errors.Wrap(err, "sqlite history store: scan chat")
		}
		c.CreatedAt = time.UnixMilli(created).UTC()
		c.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "sqlite history store: list chats")
}

func (s *SQLiteStore) Messages(ctx context.Context, userID, chatID string) ([]Message, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM chats WHERE id = ? AND user_id = ?`, chatID, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite history store: lookup chat")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, text, created_at_ms FROM messages
		 WHERE chat_id = ? ORDER BY created_at_ms ASC, rowid ASC`, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite history store: list messages")
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		var created int64
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Text, &created); err != nil {
			return nil, errors.Wrap(err, "sqlite history store: scan message")
		}
		m.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), "sqlite history store: list messages")
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
