package relay

import (
	"context"
	"errors"
	"strings"

	"github.com/chadiek/maternal-support/internal/llm"
)

// ErrNotConfigured is returned when no model is available, usually because the
// API key is missing.
var ErrNotConfigured = errors.New("relay: model not configured")

// DefaultPersona is used when no persona prompt is configured.
const DefaultPersona = "You are Adam, a warm and supportive companion for expectant mothers. " +
	"Answer in two or three short, plain sentences, acknowledge feelings first, " +
	"never diagnose or prescribe, and point to a healthcare provider for anything concerning."

// Service builds prompts and calls the model.
type Service struct {
	model   llm.Model
	persona string
}

// NewService returns a Service. A nil model yields ErrNotConfigured on every call.
func NewService(model llm.Model, persona string) *Service {
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}
	return &Service{model: model, persona: persona}
}

// Ready reports whether a model is configured.
func (s *Service) Ready() bool { return s != nil && s.model != nil }

// Prompt is the reply prompt for one user utterance.
func (s *Service) Prompt(text string) string {
	return s.persona + "\n\nUser said: " + text + "\n\nRespond briefly:"
}

// TitlePrompt asks for a short title summarizing the first message of a chat.
func (s *Service) TitlePrompt(text string) string {
	return "Write a short title of at most six words for a conversation that starts with the message below. " +
		"Reply with the title only, without quotes.\n\nMessage: " + text
}

func (s *Service) Reply(ctx context.Context, text string) (string, error) {
	if !s.Ready() {
		return "", ErrNotConfigured
	}
	out, err := s.model.Generate(ctx, s.Prompt(text))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (s *Service) Title(ctx context.Context, text string) (string, error) {
	if !s.Ready() {
		return "", ErrNotConfigured
	}
	out, err := s.model.Generate(ctx, s.TitlePrompt(text))
	if err != nil {
		return "", err
	}
	return cleanTitle(out), nil
}

// Stream emits reply fragments as the model produces them.
func (s *Service) Stream(ctx context.Context, text string) (<-chan string, <-chan error) {
	if !s.Ready() {
		out := make(chan string)
		errs := make(chan error, 1)
		close(out)
		errs <- ErrNotConfigured
		close(errs)
		return out, errs
	}
	return s.model.Stream(ctx, s.Prompt(text))
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'*# ")
	return strings.TrimSpace(s)
}
