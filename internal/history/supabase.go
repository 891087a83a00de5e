package history

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// SupabaseStore keeps history in two PostgREST tables:
//
//	chats(id uuid, user_id text, title text, created_at timestamptz, updated_at timestamptz)
//	messages(id uuid, chat_id uuid, user_id text, role text, text text, created_at timestamptz)
type SupabaseStore struct {
	client *supabase.Client
}

var _ Store = (*SupabaseStore)(nil)

type chatRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r chatRow) chat() Chat {
	return Chat{ID: r.ID, UserID: r.UserID, Title: r.Title, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC()}
}

type messageRow struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func (r messageRow) message() Message {
	return Message{ID: r.ID, ChatID: r.ChatID, Role: r.Role, Text: r.Text, CreatedAt: r.CreatedAt.UTC()}
}

func NewSupabaseStore(url, serviceRoleKey string) (*SupabaseStore, error) {
	if url == "" || serviceRoleKey == "" {
		return nil, errors.New("supabase history store: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "supabase history store: client")
	}
	return &SupabaseStore{client: client}, nil
}

func (s *SupabaseStore) CreateChat(_ context.Context, userID, title string) (Chat, error) {
	chat, err := newChat(userID, title)
	if err != nil {
		return Chat{}, err
	}
	row := chatRow{ID: chat.ID, UserID: chat.UserID, Title: chat.Title, CreatedAt: chat.CreatedAt, UpdatedAt: chat.UpdatedAt}
	if _, _, err := s.client.From("chats").Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return Chat{}, errors.Wrap(err, "supabase history store: insert chat")
	}
	return chat, nil
}

func (s *SupabaseStore) findChat(userID, chatID string) (bool, error) {
	var rows []chatRow
	_, err := s.client.From("chats").
		Select("id", "", false).
		Eq("id", chatID).
		Eq("user_id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return false, errors.Wrap(err, "supabase history store: lookup chat")
	}
	return len(rows) > 0, nil
}

func (s *SupabaseStore) AppendMessage(_ context.Context, userID, chatID string, msg Message) (Message, error) {
	msg, err := prepareMessage(userID, chatID, msg)
	if err != nil {
		return Message{}, err
	}
	ok, err := s.findChat(userID, chatID)
	if err != nil {
		return Message{}, err
	}
	if !ok {
		return Message{}, ErrChatNotFound
	}
	row := messageRow{ID: msg.ID, ChatID: chatID, UserID: userID, Role: msg.Role, Text: msg.Text, CreatedAt: msg.CreatedAt}
	if _, _, err := s.client.From("messages").Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return Message{}, errors.Wrap(err, "supabase history store: insert message")
	}
	touch := map[string]any{"updated_at": msg.CreatedAt}
	if _, _, err := s.client.From("chats").Update(touch, "minimal", "").Eq("id", chatID).Eq("user_id", userID).Execute(); err != nil {
		return Message{}, errors.Wrap(err, "supabase history store: touch chat")
	}
	return msg, nil
}

func (s *SupabaseStore) ListChats(_ context.Context, userID string) ([]Chat, error) {
	var rows []chatRow
	_, err := s.client.From("chats").
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, errors.Wrap(err, "supabase history store: list chats")
	}
	out := make([]Chat, len(rows))
	for i, r := range rows {
		out[i] = r.chat()
	}
	return out, nil
}

func (s *SupabaseStore) Messages(_ context.Context, userID, chatID string) ([]Message, error) {
	ok, err := s.findChat(userID, chatID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrChatNotFound
	}
	var rows []messageRow
	_, err = s.client.From("messages").
		Select("*", "", false).
		Eq("chat_id", chatID).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, errors.Wrap(err, "supabase history store: list messages")
	}
	out := make([]Message, len(rows))
	for i, r := range rows {
		out[i] = r.message()
	}
	return out, nil
}

func (s *SupabaseStore) Close() error { return nil }
