package wsvoice

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/maternal-support/internal/agent"
)

// Host runs one agent.Session for one websocket connection.
type Host struct {
	conn     *Conn
	capture  *Capture
	playback *Playback
	sess     *agent.Session
}

// NewHost wires a session to conn. opts.Observer is replaced by one that pushes
// state, transcript and turn messages to the browser; any observer already set
// is still called.
func NewHost(ws *websocket.Conn, relay agent.Relay, opts agent.Options) *Host {
	conn := NewConn(ws)
	h := &Host{conn: conn, capture: NewCapture(conn), playback: NewPlayback(conn)}
	inner := opts.Observer
	opts.Observer = agent.ObserverFuncs{
		State: func(s agent.State, status string) {
			h.push(Message{Type: TypeState, State: s.String(), Status: status})
			if inner != nil {
				inner.OnState(s, status)
			}
		},
		Transcript: func(text string) {
			h.push(Message{Type: TypeTranscript, Text: text})
			if inner != nil {
				inner.OnTranscript(text)
			}
		},
		Turn: func(t agent.Turn) {
			at := t.CreatedAt
			h.push(Message{Type: TypeTurn, Role: string(t.Role), Text: t.Text, CreatedAt: &at})
			if inner != nil {
				inner.OnTurn(t)
			}
		},
	}
	h.sess = agent.NewSession(h.capture, h.playback, relay, opts)
	return h
}

// Session exposes the hosted session.
func (h *Host) Session() *agent.Session { return h.sess }

func (h *Host) push(m Message) {
	if err := h.conn.Send(m); err != nil && !errors.Is(err, ErrConnClosed) {
		log.Printf("wsvoice: push %s: %v", m.Type, err)
	}
}

// Run reads browser messages until the connection closes or ctx is done, then
// closes the session.
func (h *Host) Run(ctx context.Context) error {
	defer h.conn.Close()
	defer h.sess.Close()

	snap := h.sess.Snapshot()
	h.push(Message{Type: TypeState, State: snap.State.String(), Status: snap.Status})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go h.keepalive(ctx)

	msgs := make(chan Message)
	readErr := make(chan error, 1)
	go func() {
		for {
			m, err := h.conn.Read()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		case m := <-msgs:
			h.dispatch(m)
		}
	}
}

func (h *Host) keepalive(ctx context.Context) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := h.conn.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Host) dispatch(m Message) {
	var err error
	switch m.Type {
	case TypeSessionStart:
		err = h.sess.Start()
	case TypeSessionPause:
		err = h.sess.Pause()
	case TypeSessionResume:
		err = h.sess.Resume()
	case TypeSessionStop:
		h.sess.Stop()
	case TypeSessionSubmit:
		err = h.sess.Submit(m.Text)
	case TypeCaptureStarted:
		// acknowledgement only
	case TypeCaptureUpdate, TypeCaptureError, TypeCaptureEnd, TypeCaptureDenied:
		h.capture.handle(m)
	case TypeSpeakDone, TypeSpeakError:
		h.playback.handle(m)
	default:
		log.Printf("wsvoice: unknown message type %q", m.Type)
		return
	}
	if err != nil {
		h.push(Message{Type: TypeError, Error: userError(err)})
	}
}

// userError turns a session error into a sentence for the browser.
func userError(err error) string {
	switch {
	case errors.Is(err, agent.ErrBusy):
		return "Please wait, I'm still answering."
	case errors.Is(err, agent.ErrPermissionDenied):
		return agent.StatusDenied
	case errors.Is(err, agent.ErrInvalidTransition):
		return "That action isn't available right now."
	case errors.Is(err, agent.ErrClosed):
		return "The session has ended."
	default:
		return agent.StatusStartFailed
	}
}
