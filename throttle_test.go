package mapsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

type messageSink struct {
	mutex    sync.Mutex
	messages []Message
}

func (self *messageSink) emit(message Message) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.messages = append(self.messages, message)
}

func (self *messageSink) get() []Message {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	out := make([]Message, len(self.messages))
	copy(out, self.messages)
	return out
}

func cursorSupplier(x float64, y float64) MessageSupplier {
	return func() (Message, bool) {
		return &CursorUpdate{UserId: 1, X: x, Y: y}, true
	}
}

func TestThrottleRateLimit(t *testing.T) {
	ctx := context.Background()
	sink := &messageSink{}
	throttler := NewThrottler(ctx, sink.emit, &ThrottlerSettings{
		RateLimitWindow: 50 * time.Millisecond,
		DebounceWindow:  50 * time.Millisecond,
	})
	defer throttler.Close()

	key := CursorThrottleKey(1)
	// a burst of samples within one window
	for i := 0; i < 10; i += 1 {
		throttler.Queue(key, ThrottleModeRateLimit, cursorSupplier(float64(i), 0))
	}
	time.Sleep(150 * time.Millisecond)

	messages := sink.get()
	// leading edge fired immediately, then at most one more per window
	// carrying the latest sample
	assert.Equal(t, true, 2 <= len(messages))
	assert.Equal(t, true, len(messages) <= 3)
	first := messages[0].(*CursorUpdate)
	assert.Equal(t, float64(0), first.X)
	last := messages[len(messages)-1].(*CursorUpdate)
	assert.Equal(t, float64(9), last.X)
}

func TestThrottleDebounce(t *testing.T) {
	ctx := context.Background()
	sink := &messageSink{}
	throttler := NewThrottler(ctx, sink.emit, &ThrottlerSettings{
		RateLimitWindow: 50 * time.Millisecond,
		DebounceWindow:  50 * time.Millisecond,
	})
	defer throttler.Close()

	key := GoalThrottleKey(3)
	value := "a"
	supplier := func() (Message, bool) {
		// read at fire time, like the pipeline reading the store
		return &GoalUpdate{GoalId: 3, Title: value}, true
	}

	throttler.Queue(key, ThrottleModeDebounce, supplier)
	value = "ab"
	throttler.Queue(key, ThrottleModeDebounce, supplier)
	value = "abc"
	throttler.Queue(key, ThrottleModeDebounce, supplier)
	time.Sleep(150 * time.Millisecond)

	// rapid successive edits collapse into a single trailing-edge send
	// carrying the final value
	messages := sink.get()
	assert.Equal(t, 1, len(messages))
	assert.Equal(t, "abc", messages[0].(*GoalUpdate).Title)
}

func TestThrottlePerKeyIsolation(t *testing.T) {
	ctx := context.Background()
	sink := &messageSink{}
	throttler := NewThrottler(ctx, sink.emit, &ThrottlerSettings{
		RateLimitWindow: 50 * time.Millisecond,
		DebounceWindow:  50 * time.Millisecond,
	})
	defer throttler.Close()

	// edits to two different goals are never coalesced into one lost update
	throttler.Queue(GoalThrottleKey(1), ThrottleModeDebounce, func() (Message, bool) {
		return &GoalUpdate{GoalId: 1}, true
	})
	throttler.Queue(GoalThrottleKey(2), ThrottleModeDebounce, func() (Message, bool) {
		return &GoalUpdate{GoalId: 2}, true
	})
	time.Sleep(150 * time.Millisecond)

	messages := sink.get()
	assert.Equal(t, 2, len(messages))
	goalIds := map[int]bool{}
	for _, message := range messages {
		goalIds[message.(*GoalUpdate).GoalId] = true
	}
	assert.Equal(t, true, goalIds[1])
	assert.Equal(t, true, goalIds[2])
}

func TestThrottleSkippedSupplier(t *testing.T) {
	ctx := context.Background()
	sink := &messageSink{}
	throttler := NewThrottler(ctx, sink.emit, &ThrottlerSettings{
		RateLimitWindow: 50 * time.Millisecond,
		DebounceWindow:  50 * time.Millisecond,
	})
	defer throttler.Close()

	// the entity was deleted while the update was queued
	throttler.Queue(GoalThrottleKey(1), ThrottleModeDebounce, func() (Message, bool) {
		return nil, false
	})
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, 0, len(sink.get()))
}

func TestThrottleCloseStopsPending(t *testing.T) {
	ctx := context.Background()
	sink := &messageSink{}
	throttler := NewThrottler(ctx, sink.emit, &ThrottlerSettings{
		RateLimitWindow: 50 * time.Millisecond,
		DebounceWindow:  50 * time.Millisecond,
	})

	throttler.Queue(GoalThrottleKey(1), ThrottleModeDebounce, func() (Message, bool) {
		return &GoalUpdate{GoalId: 1}, true
	})
	throttler.Close()
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, 0, len(sink.get()))
}
