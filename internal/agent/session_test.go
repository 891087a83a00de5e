package agent

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestSession_SilenceTriggersSingleRelayCall(t *testing.T) {
	r := newRig(t, Options{})
	if err := r.sess.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !r.capture.Active() {
		t.Fatalf("expected capture active after start")
	}
	r.capture.update("I feel")
	r.capture.update("I feel nauseous")

	waitFor(t, "speaking", func() bool { return r.sess.State() == StateSpeaking })
	calls := r.relay.Calls()
	if len(calls) != 1 || calls[0] != "I feel nauseous" {
		t.Fatalf("expected one relay call with the utterance, got %q", calls)
	}
	if r.capture.Active() {
		t.Fatalf("capture must be released while speaking")
	}
	if sp := r.playback.Spoken(); len(sp) != 1 || sp[0] != r.relay.reply {
		t.Fatalf("expected reply spoken, got %q", sp)
	}

	states := r.log.States()
	want := []State{StateListening, StateProcessing, StateSpeaking}
	if len(states) < len(want) {
		t.Fatalf("states %v shorter than %v", states, want)
	}
	for i, s := range want {
		if states[i] != s {
			t.Fatalf("state %d: got %s want %s (all %v)", i, states[i], s, states)
		}
	}
	turns := r.log.Turns()
	if len(turns) != 2 || turns[0].Role != RoleUser || turns[1].Role != RoleAssistant {
		t.Fatalf("expected user then assistant turn, got %+v", turns)
	}
	if r.sess.Transcript() != "" {
		t.Fatalf("transcript should clear once the turn completes")
	}
}

func TestSession_RestartsCaptureAfterPlayback(t *testing.T) {
	r := newRig(t, Options{RestartGrace: 30 * time.Millisecond})
	_ = r.sess.Start()
	r.capture.update("hello")
	waitFor(t, "speaking", func() bool { return r.sess.State() == StateSpeaking })

	r.playback.finish()
	waitFor(t, "listening", func() bool { return r.sess.State() == StateListening })
	if r.capture.Active() {
		t.Fatalf("capture should wait for the grace delay")
	}
	waitFor(t, "capture restart", func() bool { return r.capture.Active() })
	if n := r.capture.Starts(); n != 2 {
		t.Fatalf("expected 2 capture starts, got %d", n)
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	r := newRig(t, Options{})
	r.sess.Stop()
	r.sess.Stop()
	if r.sess.State() != StateIdle {
		t.Fatalf("expected idle")
	}
	_ = r.sess.Start()
	r.capture.update("something")
	r.sess.Stop()
	r.sess.Stop()
	if s := r.sess.State(); s != StateIdle {
		t.Fatalf("expected idle, got %s", s)
	}
	if r.capture.Active() || r.playback.Active() {
		t.Fatalf("resources must be released after stop")
	}
	if r.sess.Transcript() != "" {
		t.Fatalf("stop must clear the transcript")
	}
	time.Sleep(80 * time.Millisecond)
	if len(r.relay.Calls()) != 0 {
		t.Fatalf("stop must clear the pending silence timer")
	}
}

func TestSession_StopSpeaksFarewell(t *testing.T) {
	r := newRig(t, Options{Farewell: true})
	_ = r.sess.Start()
	r.sess.Stop()
	sp := r.playback.Spoken()
	if len(sp) != 1 {
		t.Fatalf("expected one farewell, got %q", sp)
	}
	found := false
	for _, f := range Farewells {
		if f == sp[0] {
			found = true
		}
	}
	if !found {
		t.Fatalf("unexpected farewell %q", sp[0])
	}
	// stopping an idle session says nothing more
	r.sess.Stop()
	if n := len(r.playback.Spoken()); n != 1 {
		t.Fatalf("expected no farewell from idle, got %d utterances", n)
	}
	// restarting cuts the farewell short before capture opens
	if err := r.sess.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if r.playback.Active() {
		t.Fatalf("farewell must be cancelled when capture restarts")
	}
}

func TestSession_PauseResumeKeepsTranscript(t *testing.T) {
	r := newRig(t, Options{SilenceInterval: time.Second})
	_ = r.sess.Start()
	r.capture.update("my back hurts")
	waitFor(t, "transcript", func() bool { return r.sess.Transcript() == "my back hurts" })

	if err := r.sess.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if r.sess.State() != StatePaused || r.capture.Active() {
		t.Fatalf("expected paused with capture released")
	}
	if err := r.sess.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if r.sess.State() != StateListening || !r.capture.Active() {
		t.Fatalf("expected listening with capture active")
	}
	if got := r.sess.Transcript(); got != "my back hurts" {
		t.Fatalf("transcript lost across pause: %q", got)
	}
	// the resumed recognizer starts from scratch; its text is appended
	r.capture.update("at night")
	waitFor(t, "accumulated transcript", func() bool { return r.sess.Transcript() == "my back hurts at night" })
}

func TestSession_PausedIgnoresStaleCaptureEvents(t *testing.T) {
	r := newRig(t, Options{})
	_ = r.sess.Start()
	_ = r.sess.Pause()
	r.capture.update("late words")
	r.capture.fail(CaptureNetwork)
	time.Sleep(80 * time.Millisecond)
	if r.sess.State() != StatePaused {
		t.Fatalf("expected paused, got %s", r.sess.State())
	}
	if len(r.relay.Calls()) != 0 || r.capture.Starts() != 1 {
		t.Fatalf("stale events must not start turns or restarts")
	}
}

func TestSession_BusyRejectsNewTurns(t *testing.T) {
	r := newRig(t, Options{})
	r.relay.block = make(chan struct{})
	defer close(r.relay.block)
	_ = r.sess.Start()
	if err := r.sess.Submit("is this normal?"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "relay call", func() bool { return len(r.relay.Calls()) == 1 })
	if r.sess.State() != StateProcessing {
		t.Fatalf("expected processing, got %s", r.sess.State())
	}
	if err := r.sess.Submit("another"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := r.sess.Start(); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy from start, got %v", err)
	}
	if err := r.sess.Pause(); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy from pause, got %v", err)
	}
	if n := len(r.relay.Calls()); n != 1 {
		t.Fatalf("rejected actions must not be queued, got %d relay calls", n)
	}
}

func TestSession_InvalidTransitions(t *testing.T) {
	r := newRig(t, Options{})
	if err := r.sess.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pause from idle: %v", err)
	}
	if err := r.sess.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("resume from idle: %v", err)
	}
	if err := r.sess.Submit("hi"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("submit from idle: %v", err)
	}
	_ = r.sess.Start()
	if err := r.sess.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("start from listening: %v", err)
	}
}

func TestSession_PermissionDeniedSurfacesError(t *testing.T) {
	r := newRig(t, Options{})
	r.capture.startErrs = []error{&CaptureError{Kind: CapturePermissionDenied}}
	err := r.sess.Start()
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	snap := r.sess.Snapshot()
	if snap.State != StateError || snap.Status != StatusDenied {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	// the user may retry after granting access
	if err := r.sess.Start(); err != nil {
		t.Fatalf("start after error: %v", err)
	}
}

func TestSession_AbortedRestartsWithoutStateChange(t *testing.T) {
	r := newRig(t, Options{})
	_ = r.sess.Start()
	r.capture.fail(CaptureAborted)
	waitFor(t, "restart", func() bool { return r.capture.Starts() == 2 && r.capture.Active() })
	for _, s := range r.log.States() {
		if s != StateListening {
			t.Fatalf("aborted must not change state, saw %s", s)
		}
	}
}

func TestSession_RepeatedCaptureFailuresEndInError(t *testing.T) {
	r := newRig(t, Options{MaxCaptureRetries: 3})
	_ = r.sess.Start()
	r.capture.setFailAll(fmt.Errorf("recognizer unavailable"))
	r.capture.fail(CaptureNetwork)
	waitFor(t, "error state", func() bool { return r.sess.State() == StateError })
	// one start from Start plus three failed restarts
	if n := r.capture.Starts(); n != 4 {
		t.Fatalf("expected 4 starts, got %d", n)
	}
	if r.sess.Snapshot().Status != StatusCaptureLost {
		t.Fatalf("unexpected status %q", r.sess.Snapshot().Status)
	}
}

func TestSession_SilentUserKeepsListening(t *testing.T) {
	r := newRig(t, Options{MaxCaptureRetries: 2, SilenceInterval: time.Second})
	_ = r.sess.Start()
	for i := 0; i < 8; i++ {
		r.capture.fail(CaptureNoSpeech)
		want := i + 2
		waitFor(t, "restart after no-speech", func() bool { return r.capture.Starts() == want && r.capture.Active() })
	}
	if s := r.sess.State(); s != StateListening {
		t.Fatalf("recognizer timeouts with healthy restarts must keep listening, got %s (%q)", s, r.sess.Snapshot().Status)
	}
}

func TestSession_ErrorEventsWithHealthyRestartsKeepListening(t *testing.T) {
	r := newRig(t, Options{MaxCaptureRetries: 2, SilenceInterval: time.Second})
	_ = r.sess.Start()
	for i := 0; i < 6; i++ {
		r.capture.fail(CaptureNetwork)
		want := i + 2
		waitFor(t, "restart after network error", func() bool { return r.capture.Starts() == want && r.capture.Active() })
	}
	if s := r.sess.State(); s != StateListening {
		t.Fatalf("expected listening, got %s", s)
	}
}

func TestSession_StartFromErrorClearsTranscript(t *testing.T) {
	r := newRig(t, Options{SilenceInterval: time.Second})
	_ = r.sess.Start()
	r.capture.update("my back hurts")
	waitFor(t, "transcript", func() bool { return r.sess.Transcript() == "my back hurts" })
	r.capture.fail(CapturePermissionDenied)
	waitFor(t, "error state", func() bool { return r.sess.State() == StateError })

	if err := r.sess.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if r.sess.Transcript() != "" {
		t.Fatalf("start must clear the transcript")
	}
	ts := r.log.Transcripts()
	if len(ts) == 0 || ts[len(ts)-1] != "" {
		t.Fatalf("observer was not told about the cleared transcript: %q", ts)
	}
}

func TestSession_UpdateResetsFailureCount(t *testing.T) {
	r := newRig(t, Options{MaxCaptureRetries: 1, SilenceInterval: time.Second})
	_ = r.sess.Start()
	for i := 0; i < 4; i++ {
		r.capture.fail(CaptureNoSpeech)
		want := i + 2
		waitFor(t, "restart", func() bool { return r.capture.Starts() == want && r.capture.Active() })
		r.capture.update("still here")
	}
	if r.sess.State() != StateListening {
		t.Fatalf("expected listening, got %s", r.sess.State())
	}
}

func TestSession_PlaybackErrorResumesListening(t *testing.T) {
	r := newRig(t, Options{})
	_ = r.sess.Start()
	r.capture.update("hello")
	waitFor(t, "speaking", func() bool { return r.sess.State() == StateSpeaking })
	r.playback.fail("synthesis-failed")
	waitFor(t, "listening", func() bool { return r.sess.State() == StateListening })
	if r.sess.Snapshot().Status != StatusSpeechFailed {
		t.Fatalf("unexpected status %q", r.sess.Snapshot().Status)
	}
	waitFor(t, "capture restart", func() bool { return r.capture.Active() })
}

func TestSession_StopDuringProcessingDropsReply(t *testing.T) {
	r := newRig(t, Options{})
	r.relay.block = make(chan struct{})
	_ = r.sess.Start()
	_ = r.sess.Submit("hello")
	r.sess.Stop()
	close(r.relay.block)
	time.Sleep(50 * time.Millisecond)
	if r.sess.State() != StateIdle {
		t.Fatalf("expected idle, got %s", r.sess.State())
	}
	if len(r.playback.Spoken()) != 0 {
		t.Fatalf("late reply must not be spoken")
	}
}

func TestSession_CaptureAndPlaybackNeverOverlap(t *testing.T) {
	r := newRig(t, Options{SilenceInterval: 15 * time.Millisecond, RestartGrace: 5 * time.Millisecond})
	steps := []func(){
		func() { _ = r.sess.Start() },
		func() { r.capture.update("hi there") },
		func() { r.playback.finish() },
		func() { _ = r.sess.Pause() },
		func() { _ = r.sess.Resume() },
		func() { r.capture.fail(CaptureAborted) },
		func() { _ = r.sess.Submit("typed question") },
		func() { r.playback.fail("interrupted") },
		func() { r.sess.Stop() },
		func() { r.capture.fail(CaptureNetwork) },
	}
	for round := 0; round < 30; round++ {
		for i := range steps {
			steps[(i*7+round)%len(steps)]()
			time.Sleep(time.Duration(round%4) * 4 * time.Millisecond)
			if r.capture.Active() && r.playback.Active() {
				t.Fatalf("round %d step %d: capture and playback both active", round, i)
			}
		}
	}
	if n := atomic.LoadInt32(r.overlap); n != 0 {
		t.Fatalf("observed %d overlapping activations", n)
	}
}

func TestSession_CloseRejectsFurtherCalls(t *testing.T) {
	r := newRig(t, Options{})
	r.sess.Close()
	if err := r.sess.Start(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	r.sess.Stop()
	select {
	case <-r.sess.Done():
	default:
		t.Fatalf("expected done channel closed")
	}
}

func TestParseCaptureErrorKind(t *testing.T) {
	cases := map[string]CaptureErrorKind{
		"no-speech":     CaptureNoSpeech,
		"network":       CaptureNetwork,
		"aborted":       CaptureAborted,
		"not-allowed":   CapturePermissionDenied,
		"audio-capture": CaptureOther,
		"":              CaptureOther,
	}
	for in, want := range cases {
		if got := ParseCaptureErrorKind(in); got != want {
			t.Fatalf("%q: got %s want %s", in, got, want)
		}
	}
	if (&CaptureError{Kind: CaptureNetwork}).Transient() != true {
		t.Fatalf("network errors are transient")
	}
	if !errors.Is(&CaptureError{Kind: CapturePermissionDenied}, ErrPermissionDenied) {
		t.Fatalf("permission errors unwrap to ErrPermissionDenied")
	}
}
