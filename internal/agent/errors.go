package agent

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBusy rejects actions that would start a turn while one is in flight.
	ErrBusy = errors.New("agent: a turn is already being processed")
	// ErrInvalidTransition rejects an operation not allowed from the current state.
	ErrInvalidTransition = errors.New("agent: invalid state transition")
	// ErrPermissionDenied reports that microphone access was declined.
	ErrPermissionDenied = errors.New("agent: microphone permission denied")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("agent: session closed")
)

// CaptureErrorKind classifies speech capture failures.
type CaptureErrorKind string

const (
	CaptureNoSpeech         CaptureErrorKind = "no-speech"
	CaptureNetwork          CaptureErrorKind = "network"
	CaptureAborted          CaptureErrorKind = "aborted"
	CapturePermissionDenied CaptureErrorKind = "permission-denied"
	CaptureOther            CaptureErrorKind = "other"
)

// ParseCaptureErrorKind maps platform recognizer error names onto a kind.
func ParseCaptureErrorKind(s string) CaptureErrorKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "no-speech":
		return CaptureNoSpeech
	case "network":
		return CaptureNetwork
	case "aborted":
		return CaptureAborted
	case "permission-denied", "not-allowed", "service-not-allowed":
		return CapturePermissionDenied
	default:
		return CaptureOther
	}
}

// CaptureError is a speech recognition failure.
type CaptureError struct {
	Kind CaptureErrorKind
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture %s: %v", e.Kind, e.Err)
	}
	return "capture " + string(e.Kind)
}

func (e *CaptureError) Unwrap() error {
	if e.Kind == CapturePermissionDenied && e.Err == nil {
		return ErrPermissionDenied
	}
	return e.Err
}

// Transient reports whether a restart should be attempted.
func (e *CaptureError) Transient() bool { return e.Kind != CapturePermissionDenied }

// PlaybackError is a speech synthesis failure.
type PlaybackError struct {
	Kind string
}

func (e *PlaybackError) Error() string { return "playback " + e.Kind }
