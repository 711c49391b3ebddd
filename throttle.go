package mapsync

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// rate-limits and coalesces high-frequency local changes before they go out
// on the socket. Two policies:
//
//   - rate limit (cursors): fire at most once per window, leading edge,
//     always eventually emitting the latest sample. Intermediate samples of
//     a continuous stream are worthless once superseded.
//   - debounce (entity edits): trailing edge after activity settles.
//     only the final value of a burst of discrete edits matters.
//
// the coalescing window is keyed per entity id (or per user for cursors),
// so edits to two different entities are never coalesced into one lost
// update. The queued value is a supplier evaluated at fire time, so the
// outbound frame always carries the current store value rather than one
// captured when the edit began.

type ThrottleMode int

const (
	ThrottleModeRateLimit ThrottleMode = iota
	ThrottleModeDebounce
)

// comparable
type ThrottleKey struct {
	Scope string
	Id    int
}

func CursorThrottleKey(userId int) ThrottleKey {
	return ThrottleKey{Scope: "cursor", Id: userId}
}

func GoalThrottleKey(goalId int) ThrottleKey {
	return ThrottleKey{Scope: "goal", Id: goalId}
}

func SubGoalThrottleKey(subGoalId int) ThrottleKey {
	return ThrottleKey{Scope: "subgoal", Id: subGoalId}
}

func StickyThrottleKey(stickyId int) ThrottleKey {
	return ThrottleKey{Scope: "sticky", Id: stickyId}
}

func ConnectionThrottleKey(connectionId int) ThrottleKey {
	return ThrottleKey{Scope: "connection", Id: connectionId}
}

// returns the frame to send, or false to skip the send entirely
// (e.g. the entity was deleted while the update was queued)
type MessageSupplier func() (Message, bool)

type ThrottlerSettings struct {
	// cursor cadence
	RateLimitWindow time.Duration
	// entity edit settle time
	DebounceWindow time.Duration
}

func DefaultThrottlerSettings() *ThrottlerSettings {
	return &ThrottlerSettings{
		RateLimitWindow: 50 * time.Millisecond,
		DebounceWindow:  250 * time.Millisecond,
	}
}

type throttleEntry struct {
	mode  ThrottleMode
	timer *time.Timer
	// non-nil when a sample is waiting for the window to close
	pending MessageSupplier
}

type Throttler struct {
	ctx    context.Context
	cancel context.CancelFunc

	emit func(message Message)

	settings *ThrottlerSettings

	mutex   sync.Mutex
	entries map[ThrottleKey]*throttleEntry
}

func NewThrottlerWithDefaults(ctx context.Context, emit func(message Message)) *Throttler {
	return NewThrottler(ctx, emit, DefaultThrottlerSettings())
}

func NewThrottler(ctx context.Context, emit func(message Message), settings *ThrottlerSettings) *Throttler {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &Throttler{
		ctx:      cancelCtx,
		cancel:   cancel,
		emit:     emit,
		settings: settings,
		entries:  map[ThrottleKey]*throttleEntry{},
	}
}

func (self *Throttler) Queue(key ThrottleKey, mode ThrottleMode, supplier MessageSupplier) {
	select {
	case <-self.ctx.Done():
		return
	default:
	}

	switch mode {
	case ThrottleModeRateLimit:
		self.queueRateLimit(key, supplier)
	case ThrottleModeDebounce:
		self.queueDebounce(key, supplier)
	}
}

func (self *Throttler) queueRateLimit(key ThrottleKey, supplier MessageSupplier) {
	self.mutex.Lock()
	if entry, ok := self.entries[key]; ok {
		// window open. Supersede the waiting sample.
		entry.pending = supplier
		self.mutex.Unlock()
		return
	}
	entry := &throttleEntry{
		mode: ThrottleModeRateLimit,
	}
	entry.timer = time.AfterFunc(self.settings.RateLimitWindow, func() {
		self.rateLimitWindowEnd(key)
	})
	self.entries[key] = entry
	self.mutex.Unlock()

	// leading edge
	self.fire(key, supplier)
}

func (self *Throttler) rateLimitWindowEnd(key ThrottleKey) {
	self.mutex.Lock()
	entry, ok := self.entries[key]
	if !ok {
		self.mutex.Unlock()
		return
	}
	pending := entry.pending
	if pending == nil {
		// idle. Close the window.
		delete(self.entries, key)
		self.mutex.Unlock()
		return
	}
	// emit the latest sample and open the next window
	entry.pending = nil
	entry.timer = time.AfterFunc(self.settings.RateLimitWindow, func() {
		self.rateLimitWindowEnd(key)
	})
	self.mutex.Unlock()

	self.fire(key, pending)
}

func (self *Throttler) queueDebounce(key ThrottleKey, supplier MessageSupplier) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if entry, ok := self.entries[key]; ok {
		entry.pending = supplier
		entry.timer.Reset(self.settings.DebounceWindow)
		return
	}
	entry := &throttleEntry{
		mode:    ThrottleModeDebounce,
		pending: supplier,
	}
	entry.timer = time.AfterFunc(self.settings.DebounceWindow, func() {
		self.debounceFire(key)
	})
	self.entries[key] = entry
}

func (self *Throttler) debounceFire(key ThrottleKey) {
	self.mutex.Lock()
	entry, ok := self.entries[key]
	if !ok {
		self.mutex.Unlock()
		return
	}
	pending := entry.pending
	delete(self.entries, key)
	self.mutex.Unlock()

	if pending != nil {
		self.fire(key, pending)
	}
}

func (self *Throttler) fire(key ThrottleKey, supplier MessageSupplier) {
	select {
	case <-self.ctx.Done():
		return
	default:
	}

	message, ok := supplier()
	if !ok {
		glog.V(2).Infof("[mo]skip %s-%d\n", key.Scope, key.Id)
		return
	}
	glog.V(2).Infof("[mo]fire %s-%d %s\n", key.Scope, key.Id, message.MessageType())
	self.emit(message)
}

// stops all pending windows without flushing
func (self *Throttler) Close() {
	self.cancel()

	self.mutex.Lock()
	defer self.mutex.Unlock()
	for key, entry := range self.entries {
		entry.timer.Stop()
		delete(self.entries, key)
	}
}
