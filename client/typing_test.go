package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type typingRecorder struct {
	mu    sync.Mutex
	emits []bool
}

func (r *typingRecorder) record(_ int64, isTyping bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emits = append(r.emits, isTyping)
}

func (r *typingRecorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.emits...)
}

func TestTypingDebouncer(t *testing.T) {
	t.Run("FirstChangeEmitsImmediately", func(t *testing.T) {
		rec := &typingRecorder{}
		d := newTypingDebouncer(50*time.Millisecond, rec.record)
		defer d.stop()

		d.set(7, true)
		assert.Equal(t, []bool{true}, rec.snapshot())
	})

	t.Run("BurstCoalescesToLatest", func(t *testing.T) {
		rec := &typingRecorder{}
		d := newTypingDebouncer(50*time.Millisecond, rec.record)
		defer d.stop()

		d.set(7, true)
		d.set(7, false)
		d.set(7, true)
		d.set(7, false)

		// Only the first change went out so far.
		assert.Equal(t, []bool{true}, rec.snapshot())

		// After the window the surviving state follows.
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, []bool{true, false}, rec.snapshot())
	})

	t.Run("UnchangedStateNotRepeated", func(t *testing.T) {
		rec := &typingRecorder{}
		d := newTypingDebouncer(50*time.Millisecond, rec.record)
		defer d.stop()

		d.set(7, true)
		d.set(7, false)
		d.set(7, true)

		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, []bool{true}, rec.snapshot())
	})

	t.Run("ConversationsDebounceIndependently", func(t *testing.T) {
		rec := &typingRecorder{}
		d := newTypingDebouncer(50*time.Millisecond, rec.record)
		defer d.stop()

		d.set(7, true)
		d.set(8, true)
		assert.Len(t, rec.snapshot(), 2)
	})
}

func TestTypingTracker(t *testing.T) {
	type expiry struct{ conv, user int64 }

	t.Run("StaleTypingAutoClears", func(t *testing.T) {
		expired := make(chan expiry, 1)
		tr := newTypingTracker(50*time.Millisecond, func(c, u int64) {
			expired <- expiry{c, u}
		})
		defer tr.stop()

		tr.observe(7, 42, true)

		select {
		case e := <-expired:
			assert.Equal(t, expiry{7, 42}, e)
		case <-time.After(time.Second):
			t.Fatal("typing signal never expired")
		}
	})

	t.Run("ExplicitFalseCancelsExpiry", func(t *testing.T) {
		expired := make(chan expiry, 1)
		tr := newTypingTracker(50*time.Millisecond, func(c, u int64) {
			expired <- expiry{c, u}
		})
		defer tr.stop()

		tr.observe(7, 42, true)
		tr.observe(7, 42, false)

		select {
		case <-expired:
			t.Fatal("expiry fired after explicit typing-false")
		case <-time.After(150 * time.Millisecond):
		}
	})

	t.Run("RefreshRestartsClock", func(t *testing.T) {
		expired := make(chan expiry, 1)
		tr := newTypingTracker(100*time.Millisecond, func(c, u int64) {
			expired <- expiry{c, u}
		})
		defer tr.stop()

		tr.observe(7, 42, true)
		time.Sleep(60 * time.Millisecond)
		tr.observe(7, 42, true)
		time.Sleep(60 * time.Millisecond)

		// Without the refresh the first timer would have fired by now.
		select {
		case <-expired:
			t.Fatal("expiry fired despite refresh")
		default:
		}

		select {
		case <-expired:
		case <-time.After(time.Second):
			t.Fatal("typing signal never expired")
		}
	})
}
