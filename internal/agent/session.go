package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultRestartGrace is the pause between the end of playback and re-acquiring capture.
	DefaultRestartGrace = 800 * time.Millisecond
	// DefaultMaxCaptureRetries bounds consecutive failed capture restarts.
	DefaultMaxCaptureRetries = 5
	// DefaultRelayTimeout bounds one relay call.
	DefaultRelayTimeout = 30 * time.Second
)

// Farewells are spoken when a session is stopped.
var Farewells = []string{
	"I'm here whenever you need me. Take care!",
	"Feel free to return anytime - I'm always here to help.",
	"Don't hesitate to ask questions when you're ready.",
	"Looking forward to supporting you when you return.",
	"Remember, I'm here 24/7 whenever you need support.",
	"Take your time - I'll be here when you want to chat.",
	"Wishing you a wonderful day ahead. Come back anytime!",
	"Your wellbeing matters - I'm here when you need to talk.",
}

// Options tunes a Session. Zero values select the defaults.
type Options struct {
	SilenceInterval   time.Duration
	RestartGrace      time.Duration
	MaxCaptureRetries int
	// RetryBackoff is the first delay between failed capture restarts; it doubles up to RetryMaxBackoff.
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration
	RelayTimeout    time.Duration
	// Farewell speaks a closing sentence when Stop leaves a non-idle state.
	Farewell bool
	Observer Observer
	Recorder TurnRecorder
}

func (o *Options) setDefaults() {
	if o.SilenceInterval <= 0 {
		o.SilenceInterval = DefaultSilenceInterval
	}
	if o.RestartGrace <= 0 {
		o.RestartGrace = DefaultRestartGrace
	}
	if o.MaxCaptureRetries <= 0 {
		o.MaxCaptureRetries = DefaultMaxCaptureRetries
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 250 * time.Millisecond
	}
	if o.RetryMaxBackoff <= 0 {
		o.RetryMaxBackoff = 5 * time.Second
	}
	if o.RelayTimeout <= 0 {
		o.RelayTimeout = DefaultRelayTimeout
	}
	if o.Observer == nil {
		o.Observer = ObserverFuncs{}
	}
}

// Snapshot is a consistent view of the session for readers on other goroutines.
type Snapshot struct {
	State      State
	Status     string
	Transcript string
}

// Session coordinates capture, silence detection, relay and playback for one user.
// All state is owned by a single goroutine; public methods and adapter callbacks
// are queued to it and processed in arrival order.
type Session struct {
	capture  Capture
	playback Playback
	relay    Relay
	opts     Options

	qmu    sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}

	snapMu sync.Mutex
	snap   Snapshot

	recordCh chan Turn

	// owned by the loop goroutine
	state       State
	status      string
	transcript  string
	captureBase string
	silence     *SilenceDispatcher
	captureGen  uint64
	utterGen    uint64
	turnGen     uint64
	restartGen  uint64
	turnCancel  context.CancelFunc
	restart     *time.Timer
	failures    int
	backoff     *backoff.ExponentialBackOff
	exiting     bool
}

// NewSession builds a session in the idle state and starts its event loop.
func NewSession(capture Capture, playback Playback, relay Relay, opts Options) *Session {
	opts.setDefaults()
	s := &Session{
		capture:  capture,
		playback: playback,
		relay:    relay,
		opts:     opts,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		state:    StateIdle,
		status:   StatusIdle,
	}
	s.silence = NewSilenceDispatcher(opts.SilenceInterval, func(text string) {
		s.post(func() { s.onSilence(text) })
	})
	s.backoff = s.newBackoff()
	s.snap = Snapshot{State: StateIdle, Status: StatusIdle}
	if opts.Recorder != nil {
		s.recordCh = make(chan Turn, 64)
		go s.recordLoop()
	}
	go s.loop()
	return s
}

func (s *Session) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryBackoff
	b.MaxInterval = s.opts.RetryMaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Start begins listening from idle or error.
func (s *Session) Start() error {
	return s.call(func() error {
		switch {
		case s.state.Busy():
			return ErrBusy
		case s.state != StateIdle && s.state != StateError:
			return fmt.Errorf("start from %s: %w", s.state, ErrInvalidTransition)
		}
		if s.transcript != "" {
			s.setTranscript("")
		}
		s.captureBase = ""
		s.silence.Reset()
		s.failures = 0
		s.backoff.Reset()
		if err := s.acquireCapture(); err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				s.fail(StatusDenied)
			} else {
				s.fail(StatusStartFailed)
			}
			return err
		}
		s.setState(StateListening, StatusListening)
		return nil
	})
}

// Pause releases capture and keeps the transcript.
func (s *Session) Pause() error {
	return s.call(func() error {
		if s.state.Busy() {
			return ErrBusy
		}
		if s.state != StateListening {
			return fmt.Errorf("pause from %s: %w", s.state, ErrInvalidTransition)
		}
		s.releaseCapture()
		s.cancelRestart()
		s.silence.Stop()
		s.setState(StatePaused, StatusPaused)
		return nil
	})
}

// Resume re-acquires capture; the transcript collected before the pause is kept.
func (s *Session) Resume() error {
	return s.call(func() error {
		if s.state != StatePaused {
			return fmt.Errorf("resume from %s: %w", s.state, ErrInvalidTransition)
		}
		s.failures = 0
		s.backoff.Reset()
		s.setState(StateListening, StatusListening)
		if s.transcript != "" {
			s.silence.Update(s.transcript)
		}
		if err := s.acquireCapture(); err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				s.fail(StatusDenied)
				return err
			}
			log.Printf("session: resume capture failed: %v", err)
			s.captureFailed()
		}
		return nil
	})
}

// Submit starts a turn with typed text while listening.
func (s *Session) Submit(text string) error {
	text = strings.TrimSpace(text)
	return s.call(func() error {
		if s.state.Busy() {
			return ErrBusy
		}
		if s.state != StateListening {
			return fmt.Errorf("submit from %s: %w", s.state, ErrInvalidTransition)
		}
		if text == "" {
			return nil
		}
		s.beginTurn(text)
		return nil
	})
}

// Stop returns to idle from any state. It is idempotent.
func (s *Session) Stop() {
	_ = s.call(func() error {
		s.stop(s.opts.Farewell)
		return nil
	})
}

// Close stops the session without a farewell and ends its goroutine.
func (s *Session) Close() {
	_ = s.call(func() error {
		s.stop(false)
		s.playback.Cancel()
		s.silence.Reset()
		s.exiting = true
		return nil
	})
	<-s.done
}

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State { return s.Snapshot().State }

func (s *Session) Transcript() string { return s.Snapshot().Transcript }

func (s *Session) Snapshot() Snapshot {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.snap
}

// post queues fn for the loop goroutine. Never blocks, so adapters may call
// back synchronously from inside Start or Speak.
func (s *Session) post(fn func()) bool {
	s.qmu.Lock()
	if s.closed {
		s.qmu.Unlock()
		return false
	}
	s.queue = append(s.queue, fn)
	s.qmu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *Session) call(fn func() error) error {
	res := make(chan error, 1)
	if !s.post(func() { res <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-res:
		return err
	case <-s.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrClosed
		}
	}
}

func (s *Session) loop() {
	defer close(s.done)
	for range s.wake {
		for {
			s.qmu.Lock()
			if len(s.queue) == 0 {
				s.qmu.Unlock()
				break
			}
			fn := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.qmu.Unlock()
			fn()
			if s.exiting {
				s.qmu.Lock()
				s.closed = true
				s.queue = nil
				s.qmu.Unlock()
				if s.recordCh != nil {
					close(s.recordCh)
				}
				return
			}
		}
	}
}

func (s *Session) recordLoop() {
	for turn := range s.recordCh {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.opts.Recorder.RecordTurn(ctx, turn); err != nil {
			log.Printf("session: record %s turn failed: %v", turn.Role, err)
		}
		cancel()
	}
}

func (s *Session) setState(to State, status string) {
	if to != s.state && !CanTransition(s.state, to) {
		log.Printf("session: rejected transition %s -> %s", s.state, to)
		return
	}
	s.state = to
	s.status = status
	s.publish()
	s.opts.Observer.OnState(to, status)
}

func (s *Session) setTranscript(text string) {
	s.transcript = text
	s.publish()
	s.opts.Observer.OnTranscript(text)
}

func (s *Session) publish() {
	s.snapMu.Lock()
	s.snap = Snapshot{State: s.state, Status: s.status, Transcript: s.transcript}
	s.snapMu.Unlock()
}

func (s *Session) emitTurn(role Role, text string) {
	turn := Turn{Text: text, Role: role, CreatedAt: time.Now()}
	s.opts.Observer.OnTurn(turn)
	if s.recordCh == nil {
		return
	}
	select {
	case s.recordCh <- turn:
	default:
		log.Printf("session: recorder queue full, dropping %s turn", role)
	}
}

// acquireCapture starts a new capture handle. Playback is cancelled first so the
// assistant never hears itself.
func (s *Session) acquireCapture() error {
	if s.playback.Active() {
		s.cancelPlayback()
	}
	s.captureGen++
	gen := s.captureGen
	s.captureBase = s.transcript
	err := s.capture.Start(CaptureHandler{
		OnUpdate: func(text string) { s.post(func() { s.onCaptureUpdate(gen, text) }) },
		OnError:  func(kind CaptureErrorKind) { s.post(func() { s.onCaptureError(gen, kind) }) },
		OnEnd:    func() { s.post(func() { s.onCaptureEnd(gen) }) },
	})
	if err != nil {
		s.captureGen++
		return err
	}
	return nil
}

// releaseCapture stops the handle and invalidates its pending events.
func (s *Session) releaseCapture() {
	s.captureGen++
	s.capture.Stop()
}

func (s *Session) cancelPlayback() {
	s.utterGen++
	s.playback.Cancel()
}

func (s *Session) speak(text string, onDone func(), onError func(kind string)) {
	s.releaseCapture()
	s.utterGen++
	gen := s.utterGen
	s.playback.Speak(text, PlaybackHandler{
		OnDone: func() {
			s.post(func() {
				if gen == s.utterGen && onDone != nil {
					onDone()
				}
			})
		},
		OnError: func(kind string) {
			s.post(func() {
				if gen == s.utterGen && onError != nil {
					onError(kind)
				}
			})
		},
	})
}

func (s *Session) scheduleRestart(delay time.Duration) {
	s.cancelRestart()
	gen := s.restartGen
	s.restart = time.AfterFunc(delay, func() {
		s.post(func() { s.onRestart(gen) })
	})
}

func (s *Session) cancelRestart() {
	s.restartGen++
	if s.restart != nil {
		_ = s.restart.Stop()
		s.restart = nil
	}
}

func (s *Session) onRestart(gen uint64) {
	if gen != s.restartGen || s.state != StateListening {
		return
	}
	s.restart = nil
	if err := s.acquireCapture(); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			s.fail(StatusDenied)
			return
		}
		log.Printf("session: capture restart failed: %v", err)
		s.captureFailed()
		return
	}
	s.failures = 0
}

// captureFailed counts a capture that could not be acquired and either retries
// with backoff or gives up after MaxCaptureRetries consecutive failures.
func (s *Session) captureFailed() {
	s.failures++
	if s.failures >= s.opts.MaxCaptureRetries {
		log.Printf("session: capture failed %d times in a row, giving up", s.failures)
		s.fail(StatusCaptureLost)
		return
	}
	s.scheduleRestart(s.backoff.NextBackOff())
}

func (s *Session) onCaptureUpdate(gen uint64, text string) {
	if gen != s.captureGen || s.state != StateListening {
		return
	}
	s.failures = 0
	s.backoff.Reset()
	full := strings.TrimSpace(text)
	if base := strings.TrimSpace(s.captureBase); base != "" && full != "" {
		full = base + " " + full
	} else if full == "" {
		full = strings.TrimSpace(s.captureBase)
	}
	s.setTranscript(full)
	s.silence.Update(full)
}

func (s *Session) onCaptureError(gen uint64, kind CaptureErrorKind) {
	if gen != s.captureGen || s.state != StateListening {
		return
	}
	log.Printf("session: capture error: %s", kind)
	s.releaseCapture()
	// error events end a recognizer that did start; only failed restarts
	// count toward MaxCaptureRetries
	switch kind {
	case CapturePermissionDenied:
		s.fail(StatusDenied)
	case CaptureAborted, CaptureNoSpeech:
		s.scheduleRestart(0)
	default:
		s.scheduleRestart(s.backoff.NextBackOff())
	}
}

// onCaptureEnd handles platform-driven stops; long user silence ends the
// recognizer too, so it restarts without counting a failure.
func (s *Session) onCaptureEnd(gen uint64) {
	if gen != s.captureGen || s.state != StateListening {
		return
	}
	s.releaseCapture()
	s.scheduleRestart(0)
}

func (s *Session) onSilence(text string) {
	if s.state != StateListening {
		s.silence.Release()
		return
	}
	s.beginTurn(text)
}

func (s *Session) beginTurn(text string) {
	s.releaseCapture()
	s.cancelRestart()
	s.silence.Stop()
	s.setState(StateProcessing, StatusProcessing)
	s.emitTurn(RoleUser, text)

	s.turnGen++
	gen := s.turnGen
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RelayTimeout)
	s.turnCancel = cancel
	go func() {
		reply := s.relay.Send(ctx, text)
		s.post(func() { s.onReply(gen, reply) })
	}()
}

func (s *Session) endTurn() {
	s.turnGen++
	if s.turnCancel != nil {
		s.turnCancel()
		s.turnCancel = nil
	}
}

func (s *Session) onReply(gen uint64, reply string) {
	if gen != s.turnGen || s.state != StateProcessing {
		return
	}
	s.endTurn()
	s.setTranscript("")
	s.captureBase = ""
	s.silence.Reset()
	reply = strings.TrimSpace(reply)
	if reply == "" {
		s.setState(StateListening, StatusListening)
		s.scheduleRestart(s.opts.RestartGrace)
		return
	}
	s.emitTurn(RoleAssistant, reply)
	s.setState(StateSpeaking, StatusSpeaking)
	s.speak(reply, s.onSpeechDone, s.onSpeechError)
}

func (s *Session) onSpeechDone() {
	if s.state != StateSpeaking {
		return
	}
	s.setState(StateListening, StatusListening)
	s.scheduleRestart(s.opts.RestartGrace)
}

func (s *Session) onSpeechError(kind string) {
	if s.state != StateSpeaking {
		return
	}
	log.Printf("session: %v", &PlaybackError{Kind: kind})
	s.setState(StateListening, StatusSpeechFailed)
	s.scheduleRestart(s.opts.RestartGrace)
}

// fail halts listening and surfaces a user-visible message.
func (s *Session) fail(status string) {
	s.releaseCapture()
	s.cancelRestart()
	s.endTurn()
	s.silence.Stop()
	if s.playback.Active() {
		s.cancelPlayback()
	}
	s.setState(StateError, status)
}

func (s *Session) stop(farewell bool) {
	wasIdle := s.state == StateIdle
	s.releaseCapture()
	s.cancelRestart()
	s.endTurn()
	s.silence.Reset()
	s.failures = 0
	if s.transcript != "" {
		s.setTranscript("")
	}
	s.captureBase = ""
	if wasIdle {
		return
	}
	s.cancelPlayback()
	s.setState(StateIdle, StatusIdle)
	if farewell && len(Farewells) > 0 {
		s.speak(Farewells[rand.Intn(len(Farewells))], nil, nil)
	}
}
