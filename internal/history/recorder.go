package history

import (
	"context"
	"strings"
	"sync"

	"github.com/chadiek/maternal-support/internal/agent"
)

// Recorder appends session turns to one chat, creating the chat on the first
// turn. It satisfies agent.TurnRecorder.
type Recorder struct {
	Store  Store
	UserID string

	mu     sync.Mutex
	chatID string
}

var _ agent.TurnRecorder = (*Recorder)(nil)

// NewRecorder records into chatID, or into a new chat when chatID is empty.
func NewRecorder(store Store, userID, chatID string) *Recorder {
	return &Recorder{Store: store, UserID: userID, chatID: chatID}
}

// ChatID returns the chat being recorded into, empty until the first turn.
func (r *Recorder) ChatID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chatID
}

func (r *Recorder) RecordTurn(ctx context.Context, turn agent.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.chatID == "" {
		chat, err := r.Store.CreateChat(ctx, r.UserID, titleFrom(turn.Text))
		if err != nil {
			return err
		}
		r.chatID = chat.ID
	}
	_, err := r.Store.AppendMessage(ctx, r.UserID, r.chatID, Message{
		Role:      string(turn.Role),
		Text:      turn.Text,
		CreatedAt: turn.CreatedAt.UTC(),
	})
	return err
}

// titleFrom is a fallback title: the first words of the opening message.
func titleFrom(text string) string {
	words := strings.Fields(text)
	if len(words) > 6 {
		words = append(words[:6], "…")
	}
	return strings.Join(words, " ")
}
