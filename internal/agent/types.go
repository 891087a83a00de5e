package agent

import (
	"context"
	"time"
)

// CaptureHandler receives events from an active capture handle.
// Callbacks may run on any goroutine.
type CaptureHandler struct {
	// OnUpdate carries the full recognized text so far; each call replaces the previous one.
	OnUpdate func(text string)
	OnError  func(kind CaptureErrorKind)
	// OnEnd fires when the platform stops capture on its own.
	OnEnd func()
}

// Capture wraps a continuous speech-to-text recognizer.
type Capture interface {
	// Start acquires the capture handle. It returns an error wrapping
	// ErrPermissionDenied when microphone access is declined.
	Start(h CaptureHandler) error
	// Stop releases the handle. Safe to call when inactive.
	Stop()
	Active() bool
}

// PlaybackHandler receives events for one utterance.
type PlaybackHandler struct {
	OnDone  func()
	OnError func(kind string)
}

// Playback wraps text-to-speech output. At most one utterance is audible at a time.
type Playback interface {
	// Speak cancels any current utterance, starts the new one and returns immediately.
	Speak(text string, h PlaybackHandler)
	// Cancel stops playback immediately and suppresses the pending OnDone. Safe to call when idle.
	Cancel()
	Active() bool
}

// Relay forwards user text to the backend and returns the reply.
// Failures are turned into a fixed apology, never an error.
type Relay interface {
	Send(ctx context.Context, text string) string
}

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the exchange.
type Turn struct {
	Text      string    `json:"text"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Observer is notified of session changes. Methods run on the session
// goroutine; they must not block or call back into the Session.
type Observer interface {
	OnState(state State, status string)
	OnTranscript(text string)
	OnTurn(turn Turn)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	State      func(state State, status string)
	Transcript func(text string)
	Turn       func(turn Turn)
}

func (o ObserverFuncs) OnState(state State, status string) {
	if o.State != nil {
		o.State(state, status)
	}
}

func (o ObserverFuncs) OnTranscript(text string) {
	if o.Transcript != nil {
		o.Transcript(text)
	}
}

func (o ObserverFuncs) OnTurn(turn Turn) {
	if o.Turn != nil {
		o.Turn(turn)
	}
}

// TurnRecorder persists finished turns, e.g. into the chat history.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, turn Turn) error
}
