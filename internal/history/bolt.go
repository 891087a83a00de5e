package history

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketChats    = []byte("chats")
	bucketMessages = []byte("messages")
)

// BoltStore keeps history in a single bbolt file. Chats live in one bucket
// keyed by user and chat id; each chat's messages get a nested bucket keyed by
// sequence so iteration order is insertion order.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

func NewBoltStore(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("bolt history store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "bolt history store: mkdir")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "bolt history store: open")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, e := tx.CreateBucketIfNotExists(bucketChats); e != nil {
			return e
		}
		_, e := tx.CreateBucketIfNotExists(bucketMessages)
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "bolt history store: init buckets")
	}
	return &BoltStore{db: db}, nil
}

func chatKey(userID, chatID string) []byte {
	return []byte(userID + "\x00" + chatID)
}

func (s *BoltStore) CreateChat(_ context.Context, userID, title string) (Chat, error) {
	chat, err := newChat(userID, title)
	if err != nil {
		return Chat{}, err
	}
	enc, err := json.Marshal(chat)
	if err != nil {
		return Chat{}, errors.Wrap(err, "bolt history store: encode chat")
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		if e := tx.Bucket(bucketChats).Put(chatKey(userID, chat.ID), enc); e != nil {
			return e
		}
		_, e := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(chat.ID))
		return e
	})
	if err != nil {
		return Chat{}, errors.Wrap(err, "bolt history store: put chat")
	}
	return chat, nil
}

func (s *BoltStore) AppendMessage(_ context.Context, userID, chatID string, msg Message) (Message, error) {
	msg, err := prepareMessage(userID, chatID, msg)
	if err != nil {
		return Message{}, err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		chats := tx.Bucket(bucketChats)
		raw := chats.Get(chatKey(userID, chatID))
		if raw == nil {
			return ErrChatNotFound
		}
		var chat Chat
		if e := json.Unmarshal(raw, &chat); e != nil {
			return e
		}
		chat.UpdatedAt = msg.CreatedAt
		enc, e := json.Marshal(chat)
		if e != nil {
			return e
		}
		if e := chats.Put(chatKey(userID, chatID), enc); e != nil {
			return e
		}
		mb, e := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(chatID))
		if e != nil {
			return e
		}
		seq, e := mb.NextSequence()
		if e != nil {
			return e
		}
		menc, e := json.Marshal(msg)
		if e != nil {
			return e
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return mb.Put(key, menc)
	})
	if errors.Is(err, ErrChatNotFound) {
		return Message{}, ErrChatNotFound
	}
	if err != nil {
		return Message{}, errors.Wrap(err, "bolt history store: append message")
	}
	return msg, nil
}

func (s *BoltStore) ListChats(_ context.Context, userID string) ([]Chat, error) {
	prefix := []byte(userID + "\x00")
	var out []Chat
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketChats).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var chat Chat
			if e := json.Unmarshal(v, &chat); e != nil {
				// skip malformed records
				continue
			}
			out = append(out, chat)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "bolt history store: list chats")
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *BoltStore) Messages(_ context.Context, userID, chatID string) ([]Message, error) {
	var out []Message
	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketChats).Get(chatKey(userID, chatID)) == nil {
			return ErrChatNotFound
		}
		mb := tx.Bucket(bucketMessages).Bucket([]byte(chatID))
		if mb == nil {
			return nil
		}
		return mb.ForEach(func(_, v []byte) error {
			var m Message
			if e := json.Unmarshal(v, &m); e != nil {
				return nil
			}
			out = append(out, m)
			return nil
		})
	})
	if errors.Is(err, ErrChatNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "bolt history store: list messages")
	}
	return out, nil
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
