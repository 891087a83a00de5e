package wsvoice

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/chadiek/maternal-support/internal/agent"
)

// Capture drives the browser's speech recognizer. Each Start opens a new handle
// id; browser events carrying any other id are dropped.
type Capture struct {
	conn *Conn

	mu     sync.Mutex
	id     uint64
	active bool
	h      agent.CaptureHandler
}

var _ agent.Capture = (*Capture)(nil)

func NewCapture(conn *Conn) *Capture { return &Capture{conn: conn} }

// Start asks the browser to begin recognition. Permission is reported later
// through capture.denied, which reaches the handler as a permission-denied error.
func (c *Capture) Start(h agent.CaptureHandler) error {
	c.mu.Lock()
	c.id++
	id := c.id
	c.h = h
	c.active = true
	c.mu.Unlock()
	if err := c.conn.Send(Message{Type: TypeCaptureStart, ID: id}); err != nil {
		c.mu.Lock()
		if c.id == id {
			c.active = false
			c.h = agent.CaptureHandler{}
		}
		c.mu.Unlock()
		return fmt.Errorf("start capture: %w", err)
	}
	return nil
}

func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	id := c.id
	c.active = false
	c.h = agent.CaptureHandler{}
	c.mu.Unlock()
	if err := c.conn.Send(Message{Type: TypeCaptureStop, ID: id}); err != nil && !errors.Is(err, ErrConnClosed) {
		log.Printf("wsvoice: capture stop: %v", err)
	}
}

func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// handle routes one browser capture event to the active handler.
func (c *Capture) handle(m Message) {
	c.mu.Lock()
	if !c.active || m.ID != c.id {
		c.mu.Unlock()
		return
	}
	h := c.h
	switch m.Type {
	case TypeCaptureError, TypeCaptureDenied, TypeCaptureEnd:
		// the browser has stopped this recognizer on its own
		c.active = false
		c.h = agent.CaptureHandler{}
	}
	c.mu.Unlock()

	switch m.Type {
	case TypeCaptureUpdate:
		if h.OnUpdate != nil {
			h.OnUpdate(m.Text)
		}
	case TypeCaptureError:
		if h.OnError != nil {
			h.OnError(agent.ParseCaptureErrorKind(m.Error))
		}
	case TypeCaptureDenied:
		if h.OnError != nil {
			h.OnError(agent.CapturePermissionDenied)
		}
	case TypeCaptureEnd:
		if h.OnEnd != nil {
			h.OnEnd()
		}
	}
}
