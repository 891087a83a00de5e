// Package wsvoice bridges a browser's speech recognition and synthesis to an
// agent.Session over a websocket. The browser owns the microphone and the
// speaker; the server owns the conversation.
package wsvoice

import "time"

// Message is the single wire envelope for both directions.
//
// Browser to server:
//
//	session.start | session.pause | session.resume | session.stop | session.submit{text}
//	capture.started{id} | capture.update{id,text} | capture.error{id,error} | capture.end{id} | capture.denied{id}
//	speak.done{id} | speak.error{id,error}
//
// Server to browser:
//
//	state{state,status} | transcript{text} | turn{role,text,createdAt} | error{error}
//	capture.start{id} | capture.stop{id} | speak{id,text} | speak.cancel{id}
type Message struct {
	Type      string     `json:"type"`
	ID        uint64     `json:"id,omitempty"`
	Text      string     `json:"text,omitempty"`
	Error     string     `json:"error,omitempty"`
	State     string     `json:"state,omitempty"`
	Status    string     `json:"status,omitempty"`
	Role      string     `json:"role,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

const (
	TypeSessionStart  = "session.start"
	TypeSessionPause  = "session.pause"
	TypeSessionResume = "session.resume"
	TypeSessionStop   = "session.stop"
	TypeSessionSubmit = "session.submit"

	TypeCaptureStart   = "capture.start"
	TypeCaptureStop    = "capture.stop"
	TypeCaptureStarted = "capture.started"
	TypeCaptureUpdate  = "capture.update"
	TypeCaptureError   = "capture.error"
	TypeCaptureEnd     = "capture.end"
	TypeCaptureDenied  = "capture.denied"

	TypeSpeak       = "speak"
	TypeSpeakCancel = "speak.cancel"
	TypeSpeakDone   = "speak.done"
	TypeSpeakError  = "speak.error"

	TypeState      = "state"
	TypeTranscript = "transcript"
	TypeTurn       = "turn"
	TypeError      = "error"
)
