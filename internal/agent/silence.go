package agent

import (
	"strings"
	"sync"
	"time"
)

// DefaultSilenceInterval is the quiet window after which the user is considered done speaking.
const DefaultSilenceInterval = 3 * time.Second

// SilenceDispatcher raises one event per continuous speech burst. Every Update
// re-arms a resettable timer; when the timer elapses with non-empty text the
// callback fires once and the dispatcher holds until Release or Reset.
type SilenceDispatcher struct {
	interval  time.Duration
	onSilence func(text string)

	mu       sync.Mutex
	text     string
	timer    *time.Timer
	deadline time.Time
	held     bool
}

func NewSilenceDispatcher(interval time.Duration, onSilence func(text string)) *SilenceDispatcher {
	if interval <= 0 {
		interval = DefaultSilenceInterval
	}
	return &SilenceDispatcher{interval: interval, onSilence: onSilence}
}

// Update replaces the accumulated text and restarts the quiet interval.
// Ignored while held.
func (d *SilenceDispatcher) Update(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.held {
		return
	}
	d.text = text
	d.deadline = time.Now().Add(d.interval)
	if d.timer == nil {
		d.timer = time.AfterFunc(d.interval, d.fire)
	} else {
		_ = d.timer.Stop()
		d.timer.Reset(d.interval)
	}
}

func (d *SilenceDispatcher) fire() {
	d.mu.Lock()
	if d.timer == nil || d.held {
		d.mu.Unlock()
		return
	}
	// a reset raced with an already-started fire; the re-armed timer will call again
	if wait := time.Until(d.deadline); wait > 0 {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	text := strings.TrimSpace(d.text)
	if text == "" {
		d.mu.Unlock()
		return
	}
	d.held = true
	d.mu.Unlock()
	if d.onSilence != nil {
		d.onSilence(text)
	}
}

// Stop disarms the timer and keeps the accumulated text.
func (d *SilenceDispatcher) Stop() {
	d.mu.Lock()
	if d.timer != nil {
		_ = d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
}

// Reset disarms the timer, clears the text and releases the hold.
func (d *SilenceDispatcher) Reset() {
	d.mu.Lock()
	if d.timer != nil {
		_ = d.timer.Stop()
		d.timer = nil
	}
	d.text = ""
	d.held = false
	d.mu.Unlock()
}

// Release lets the dispatcher fire again after a processed turn.
func (d *SilenceDispatcher) Release() {
	d.mu.Lock()
	d.held = false
	d.mu.Unlock()
}

// Held reports whether an event fired and has not been released.
func (d *SilenceDispatcher) Held() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.held
}

// Armed reports whether the quiet-interval timer is running.
func (d *SilenceDispatcher) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *SilenceDispatcher) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}
