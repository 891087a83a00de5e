// Package history persists chats and their messages per user.
package history

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrChatNotFound   = errors.New("history: chat not found")
	ErrInvalidMessage = errors.New("history: invalid message")
	ErrMissingUser    = errors.New("history: user id required")
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store keeps chats keyed by user id. ListChats returns newest first and
// Messages oldest first.
type Store interface {
	CreateChat(ctx context.Context, userID, title string) (Chat, error)
	AppendMessage(ctx context.Context, userID, chatID string, msg Message) (Message, error)
	ListChats(ctx context.Context, userID string) ([]Chat, error)
	Messages(ctx context.Context, userID, chatID string) ([]Message, error)
	Close() error
}

func newChat(userID, title string) (Chat, error) {
	if strings.TrimSpace(userID) == "" {
		return Chat{}, ErrMissingUser
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New chat"
	}
	now := time.Now().UTC()
	return Chat{ID: uuid.NewString(), UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// prepareMessage validates msg and fills id and timestamp.
func prepareMessage(userID, chatID string, msg Message) (Message, error) {
	if strings.TrimSpace(userID) == "" {
		return Message{}, ErrMissingUser
	}
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Text == "" {
		return Message{}, errors.Wrap(ErrInvalidMessage, "empty text")
	}
	if msg.Role != RoleUser && msg.Role != RoleAssistant {
		return Message{}, errors.Wrapf(ErrInvalidMessage, "role %q", msg.Role)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.ChatID = chatID
	return msg, nil
}
