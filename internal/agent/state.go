package agent

import "fmt"

// State is the session status. Exactly one value holds at a time.
type State int

const (
	StateIdle State = iota
	StateListening
	StatePaused
	StateProcessing
	StateSpeaking
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StatePaused:
		return "paused"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Busy reports whether a turn is in flight; new turns are rejected while true.
func (s State) Busy() bool { return s == StateProcessing || s == StateSpeaking }

var transitions = map[State][]State{
	StateIdle:       {StateListening, StateError},
	StateListening:  {StatePaused, StateProcessing, StateIdle, StateError},
	StatePaused:     {StateListening, StateIdle, StateError},
	StateProcessing: {StateSpeaking, StateListening, StateIdle, StateError},
	StateSpeaking:   {StateListening, StateIdle, StateError},
	StateError:      {StateListening, StateIdle},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Status sentences shown to the user.
const (
	StatusIdle         = "Click on the mic to start recording"
	StatusListening    = "Listening..."
	StatusPaused       = "Paused. Resume when you are ready."
	StatusProcessing   = "Processing your question..."
	StatusSpeaking     = "Responding..."
	StatusStartFailed  = "Error starting recording. Please try again."
	StatusDenied       = "Microphone access was denied. Please allow the microphone and try again."
	StatusCaptureLost  = "I'm having trouble hearing you. Please check your connection and try again."
	StatusSpeechFailed = "Error in speech synthesis. Please try again."
)
