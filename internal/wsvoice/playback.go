package wsvoice

import (
	"errors"
	"log"
	"sync"

	"github.com/chadiek/maternal-support/internal/agent"
)

// Playback drives the browser's speech synthesis. Every utterance has its own
// id so late events for a cancelled utterance are dropped.
type Playback struct {
	conn *Conn

	mu     sync.Mutex
	id     uint64
	active bool
	h      agent.PlaybackHandler
}

var _ agent.Playback = (*Playback)(nil)

func NewPlayback(conn *Conn) *Playback { return &Playback{conn: conn} }

func (p *Playback) Speak(text string, h agent.PlaybackHandler) {
	p.mu.Lock()
	prev, wasActive := p.id, p.active
	p.id++
	id := p.id
	p.active = true
	p.h = h
	p.mu.Unlock()

	if wasActive {
		if err := p.conn.Send(Message{Type: TypeSpeakCancel, ID: prev}); err != nil && !errors.Is(err, ErrConnClosed) {
			log.Printf("wsvoice: speak cancel: %v", err)
		}
	}
	if err := p.conn.Send(Message{Type: TypeSpeak, ID: id, Text: text}); err != nil {
		log.Printf("wsvoice: speak: %v", err)
		p.finish(id, func(h agent.PlaybackHandler) {
			if h.OnError != nil {
				h.OnError("connection-lost")
			}
		})
	}
}

func (p *Playback) Cancel() {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	id := p.id
	p.active = false
	p.h = agent.PlaybackHandler{}
	p.mu.Unlock()
	if err := p.conn.Send(Message{Type: TypeSpeakCancel, ID: id}); err != nil && !errors.Is(err, ErrConnClosed) {
		log.Printf("wsvoice: speak cancel: %v", err)
	}
}

func (p *Playback) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// finish ends utterance id and calls fn with its handler, once.
func (p *Playback) finish(id uint64, fn func(agent.PlaybackHandler)) {
	p.mu.Lock()
	if !p.active || id != p.id {
		p.mu.Unlock()
		return
	}
	h := p.h
	p.active = false
	p.h = agent.PlaybackHandler{}
	p.mu.Unlock()
	fn(h)
}

func (p *Playback) handle(m Message) {
	switch m.Type {
	case TypeSpeakDone:
		p.finish(m.ID, func(h agent.PlaybackHandler) {
			if h.OnDone != nil {
				h.OnDone()
			}
		})
	case TypeSpeakError:
		kind := m.Error
		if kind == "" {
			kind = "synthesis-failed"
		}
		p.finish(m.ID, func(h agent.PlaybackHandler) {
			if h.OnError != nil {
				h.OnError(kind)
			}
		})
	}
}
