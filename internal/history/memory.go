package history

import (
	"context"
	"sort"
	"sync"
)

type memChat struct {
	chat     Chat
	seq      int
	messages []Message
}

// MemoryStore keeps history in process memory. It is the default backend.
type MemoryStore struct {
	mu    sync.RWMutex
	seq   int
	users map[string]map[string]*memChat
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]map[string]*memChat)}
}

func (s *MemoryStore) CreateChat(_ context.Context, userID, title string) (Chat, error) {
	chat, err := newChat(userID, title)
	if err != nil {
		return Chat{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chats := s.users[userID]
	if chats == nil {
		chats = make(map[string]*memChat)
		s.users[userID] = chats
	}
	s.seq++
	chats[chat.ID] = &memChat{chat: chat, seq: s.seq}
	return chat, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, userID, chatID string, msg Message) (Message, error) {
	msg, err := prepareMessage(userID, chatID, msg)
	if err != nil {
		return Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.users[userID][chatID]
	if !ok {
		return Message{}, ErrChatNotFound
	}
	c.messages = append(c.messages, msg)
	c.chat.UpdatedAt = msg.CreatedAt
	return msg, nil
}

func (s *MemoryStore) ListChats(_ context.Context, userID string) ([]Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]*memChat, 0, len(s.users[userID]))
	for _, c := range s.users[userID] {
		recs = append(recs, c)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })
	out := make([]Chat, len(recs))
	for i, c := range recs {
		out[i] = c.chat
	}
	return out, nil
}

func (s *MemoryStore) Messages(_ context.Context, userID, chatID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.users[userID][chatID]
	if !ok {
		return nil, ErrChatNotFound
	}
	return append([]Message(nil), c.messages...), nil
}

func (s *MemoryStore) Close() error { return nil }
