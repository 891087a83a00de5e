package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeCapture struct {
	mu        sync.Mutex
	active    bool
	h         CaptureHandler
	starts    int
	stops     int
	startErrs []error
	failAll   error
	playback  *fakePlayback
	// overlap counts moments where capture and playback were both active.
	overlap *int32
}

func (c *fakeCapture) Start(h CaptureHandler) error {
	if c.playback != nil && c.playback.Active() {
		atomic.AddInt32(c.overlap, 1)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	if c.failAll != nil {
		return c.failAll
	}
	if len(c.startErrs) > 0 {
		err := c.startErrs[0]
		c.startErrs = c.startErrs[1:]
		if err != nil {
			return err
		}
	}
	c.active = true
	c.h = h
	return nil
}

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	c.stops++
	c.active = false
	c.mu.Unlock()
}

func (c *fakeCapture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *fakeCapture) Starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

func (c *fakeCapture) handler() CaptureHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.h
}

func (c *fakeCapture) setFailAll(err error) {
	c.mu.Lock()
	c.failAll = err
	c.mu.Unlock()
}

func (c *fakeCapture) update(text string) {
	if h := c.handler(); h.OnUpdate != nil {
		h.OnUpdate(text)
	}
}

func (c *fakeCapture) fail(kind CaptureErrorKind) {
	if h := c.handler(); h.OnError != nil {
		h.OnError(kind)
	}
}

type fakePlayback struct {
	mu      sync.Mutex
	active  bool
	h       PlaybackHandler
	spoken  []string
	cancels int
	capture *fakeCapture
	overlap *int32
}

func (p *fakePlayback) Speak(text string, h PlaybackHandler) {
	if p.capture != nil && p.capture.Active() {
		atomic.AddInt32(p.overlap, 1)
	}
	p.mu.Lock()
	p.active = true
	p.h = h
	p.spoken = append(p.spoken, text)
	p.mu.Unlock()
}

func (p *fakePlayback) Cancel() {
	p.mu.Lock()
	p.active = false
	p.h = PlaybackHandler{}
	p.cancels++
	p.mu.Unlock()
}

func (p *fakePlayback) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *fakePlayback) Spoken() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.spoken...)
}

// finish completes the current utterance naturally.
func (p *fakePlayback) finish() {
	p.mu.Lock()
	h := p.h
	p.active = false
	p.h = PlaybackHandler{}
	p.mu.Unlock()
	if h.OnDone != nil {
		h.OnDone()
	}
}

func (p *fakePlayback) fail(kind string) {
	p.mu.Lock()
	h := p.h
	p.active = false
	p.h = PlaybackHandler{}
	p.mu.Unlock()
	if h.OnError != nil {
		h.OnError(kind)
	}
}

type fakeRelay struct {
	mu    sync.Mutex
	reply string
	calls []string
	block chan struct{}
}

func (r *fakeRelay) Send(ctx context.Context, text string) string {
	r.mu.Lock()
	r.calls = append(r.calls, text)
	block := r.block
	r.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ""
		}
	}
	return r.reply
}

func (r *fakeRelay) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type stateLog struct {
	mu          sync.Mutex
	states      []State
	turns       []Turn
	transcripts []string
}

func (l *stateLog) observer() Observer {
	return ObserverFuncs{
		State: func(s State, _ string) {
			l.mu.Lock()
			l.states = append(l.states, s)
			l.mu.Unlock()
		},
		Transcript: func(text string) {
			l.mu.Lock()
			l.transcripts = append(l.transcripts, text)
			l.mu.Unlock()
		},
		Turn: func(t Turn) {
			l.mu.Lock()
			l.turns = append(l.turns, t)
			l.mu.Unlock()
		},
	}
}

func (l *stateLog) States() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func (l *stateLog) Transcripts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.transcripts...)
}

func (l *stateLog) Turns() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Turn(nil), l.turns...)
}

type rig struct {
	capture  *fakeCapture
	playback *fakePlayback
	relay    *fakeRelay
	log      *stateLog
	sess     *Session
	overlap  *int32
}

func newRig(t *testing.T, opts Options) *rig {
	t.Helper()
	overlap := new(int32)
	c := &fakeCapture{overlap: overlap}
	p := &fakePlayback{capture: c, overlap: overlap}
	c.playback = p
	r := &fakeRelay{reply: "I hear you. Many mothers find ginger helps."}
	l := &stateLog{}
	if opts.SilenceInterval == 0 {
		opts.SilenceInterval = 40 * time.Millisecond
	}
	if opts.RestartGrace == 0 {
		opts.RestartGrace = 10 * time.Millisecond
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
		opts.RetryMaxBackoff = 4 * time.Millisecond
	}
	opts.Observer = l.observer()
	s := NewSession(c, p, r, opts)
	t.Cleanup(s.Close)
	return &rig{capture: c, playback: p, relay: r, log: l, sess: s, overlap: overlap}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
