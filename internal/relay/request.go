// Package relay turns one user utterance into one assistant reply: request
// decoding for the relay endpoint, the prompt-building service over a hosted
// model, and clients that never surface an error to the session.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// Kind selects how a request is answered.
type Kind string

const (
	// KindChat streams the reply as plain text.
	KindChat Kind = "chat"
	// KindTitle answers with a short conversation title.
	KindTitle Kind = "title"
	// KindVoice answers with a single JSON reply for speech playback.
	KindVoice Kind = "voice"
)

var (
	ErrEmptyMessage = errors.New("relay: message is required")
	ErrUnknownKind  = errors.New("relay: unknown request type")
)

// maxBody bounds a decoded request body.
const maxBody = 64 << 10

// Request is a decoded relay request. Handlers switch on Kind only.
type Request struct {
	Kind    Kind
	Message string
}

type wireRequest struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ParseKind maps the wire discriminator onto a Kind. Empty means chat.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindChat:
		return KindChat, nil
	case KindTitle:
		return KindTitle, nil
	case KindVoice:
		return KindVoice, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// DecodeRequest reads a relay request. A text/plain body is the legacy voice
// form carrying the raw utterance; anything else is decoded as JSON.
func DecodeRequest(r *http.Request) (Request, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return Request{}, fmt.Errorf("read body: %w", err)
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/plain" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			return Request{}, ErrEmptyMessage
		}
		return Request{Kind: KindVoice, Message: msg}, nil
	}

	var wr wireRequest
	if err := json.Unmarshal(body, &wr); err != nil {
		return Request{}, fmt.Errorf("decode json: %w", err)
	}
	kind, err := ParseKind(wr.Type)
	if err != nil {
		return Request{}, err
	}
	msg := strings.TrimSpace(wr.Message)
	if msg == "" {
		return Request{}, ErrEmptyMessage
	}
	return Request{Kind: kind, Message: msg}, nil
}
