package client

import (
	"sync"
	"time"
)

// typingDebouncer coalesces outbound typing changes: within one window only
// the most recent state is transmitted, bounding event volume while the user
// hammers the keyboard.
type typingDebouncer struct {
	window time.Duration
	emit   func(conversationID int64, isTyping bool)

	mu      sync.Mutex
	pending map[int64]*typingState
}

type typingState struct {
	latest bool
	timer  *time.Timer
}

func newTypingDebouncer(window time.Duration, emit func(int64, bool)) *typingDebouncer {
	return &typingDebouncer{
		window:  window,
		emit:    emit,
		pending: make(map[int64]*typingState),
	}
}

func (d *typingDebouncer) set(conversationID int64, isTyping bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if st, ok := d.pending[conversationID]; ok {
		st.latest = isTyping
		return
	}

	// First change in a window goes out immediately; later ones wait for the
	// window to expire and only the last survives.
	d.emit(conversationID, isTyping)
	st := &typingState{latest: isTyping}
	st.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		latest := st.latest
		delete(d.pending, conversationID)
		d.mu.Unlock()
		if latest != isTyping {
			d.emit(conversationID, latest)
		}
	})
	d.pending[conversationID] = st
}

func (d *typingDebouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, st := range d.pending {
		st.timer.Stop()
		delete(d.pending, id)
	}
}

// typingTracker clears received typing-true signals after a staleness timeout.
// A sender that disconnects mid-keystroke never sends typing-false; receivers
// must not wait for it.
type typingKey struct {
	conversationID int64
	userID         int64
}

type typingTracker struct {
	timeout time.Duration
	expire  func(conversationID, userID int64)

	mu     sync.Mutex
	timers map[typingKey]*time.Timer
}

func newTypingTracker(timeout time.Duration, expire func(conversationID, userID int64)) *typingTracker {
	return &typingTracker{
		timeout: timeout,
		expire:  expire,
		timers:  make(map[typingKey]*time.Timer),
	}
}

// observe processes a received typing signal and reports whether it should be
// surfaced to the UI.
func (t *typingTracker) observe(conversationID, userID int64, isTyping bool) {
	key := typingKey{conversationID, userID}
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
	if !isTyping {
		return
	}
	t.timers[key] = time.AfterFunc(t.timeout, func() {
		t.mu.Lock()
		delete(t.timers, key)
		t.mu.Unlock()
		t.expire(conversationID, userID)
	})
}

func (t *typingTracker) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}
