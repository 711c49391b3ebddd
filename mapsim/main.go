package main

// for this sim, each editor drags its own goal and its cursor while every
// other editor applies the broadcast echoes. At the end all stores must
// agree on every goal position, and the frame count must show the
// throttler collapsing the raw edit stream.

import (
	"context"
	"errors"
	"fmt"
	mathrand "math/rand"
	"sync"
	"sync/atomic"
	"time"

	"taskboard.com/mapsync"
)

func main() {
	ctx := context.Background()

	sim := &MultiEditorSim{
		ctx: ctx,

		editorCount:  20,
		editInterval: 10 * time.Millisecond,
		sendDuration: 5 * time.Second,
		timeout:      60 * time.Second,

		rateLimitWindow: 100 * time.Millisecond,
		debounceWindow:  100 * time.Millisecond,
	}

	if err := sim.Run(); err != nil {
		panic(err)
	}
}

type MultiEditorSim struct {
	ctx context.Context

	editorCount  int
	editInterval time.Duration
	sendDuration time.Duration
	timeout      time.Duration

	rateLimitWindow time.Duration
	debounceWindow  time.Duration
}

func (self *MultiEditorSim) Run() error {
	cancelCtx, cancel := context.WithTimeout(self.ctx, self.timeout)
	defer cancel()

	baseline := &mapsync.Snapshot{}
	for i := 0; i < self.editorCount; i += 1 {
		baseline.Goals = append(baseline.Goals, &mapsync.Goal{
			GoalId: i + 1,
			Title:  fmt.Sprintf("goal %d", i+1),
			Status: mapsync.StatusNew,
		})
	}

	hub := NewHub()
	editors := []*Editor{}
	for i := 0; i < self.editorCount; i += 1 {
		editor := NewEditor(cancelCtx, i+1, hub, baseline, &mapsync.ThrottlerSettings{
			RateLimitWindow: self.rateLimitWindow,
			DebounceWindow:  self.debounceWindow,
		})
		hub.Add(editor)
		editors = append(editors, editor)
	}

	doneEditor := make(chan *Editor)
	for _, editor := range editors {
		go func(editor *Editor) {
			editor.Run(self.editInterval, self.sendDuration)
			doneEditor <- editor
		}(editor)
	}

	doneEditors := []*Editor{}
	for len(doneEditors) < self.editorCount {
		select {
		case <-cancelCtx.Done():
			return errors.New("Timeout")
		case editor := <-doneEditor:
			doneEditors = append(doneEditors, editor)
		}
	}

	// let trailing debounce windows flush and the hub drain
	time.Sleep(2*self.debounceWindow + 2*self.rateLimitWindow)

	editCount := 0
	for _, editor := range editors {
		editCount += editor.editCount
	}
	frameCount := hub.FrameCount()
	fmt.Printf("editors=%d edits=%d frames=%d (%.1f%% of raw)\n",
		self.editorCount, editCount, frameCount,
		100*float64(frameCount)/float64(editCount))

	if editCount <= frameCount {
		return errors.New("Throttler did not collapse the edit stream")
	}

	// every store must agree with the owner of each goal
	for _, owner := range editors {
		want, ok := owner.store.Goal(owner.userId)
		if !ok {
			return fmt.Errorf("Editor %d lost its own goal", owner.userId)
		}
		for _, editor := range editors {
			goal, ok := editor.store.Goal(owner.userId)
			if !ok {
				return fmt.Errorf("Editor %d never saw goal %d", editor.userId, owner.userId)
			}
			if goal.X != want.X || goal.Y != want.Y {
				return fmt.Errorf(
					"Diverged on goal %d: editor %d has (%f, %f), owner has (%f, %f)",
					owner.userId, editor.userId, goal.X, goal.Y, want.X, want.Y,
				)
			}
		}
	}
	fmt.Printf("Converged\n")
	return nil
}

// Hub fans each frame out to every editor except the sender,
// standing in for the broadcast relay.
type Hub struct {
	mutex      sync.Mutex
	editors    []*Editor
	frameCount atomic.Int64
}

func NewHub() *Hub {
	return &Hub{}
}

func (self *Hub) Add(editor *Editor) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.editors = append(self.editors, editor)
}

func (self *Hub) Broadcast(fromUserId int, frame []byte) {
	self.frameCount.Add(1)
	self.mutex.Lock()
	editors := make([]*Editor, len(self.editors))
	copy(editors, self.editors)
	self.mutex.Unlock()
	for _, editor := range editors {
		if editor.userId != fromUserId {
			editor.dispatcher.DispatchFrame(frame)
		}
	}
}

func (self *Hub) FrameCount() int {
	return int(self.frameCount.Load())
}

type Editor struct {
	userId     int
	store      *mapsync.Store
	presence   *mapsync.PresenceTracker
	dispatcher *mapsync.Dispatcher
	throttler  *mapsync.Throttler

	editCount int
}

func NewEditor(
	ctx context.Context,
	userId int,
	hub *Hub,
	baseline *mapsync.Snapshot,
	throttlerSettings *mapsync.ThrottlerSettings,
) *Editor {
	store := mapsync.NewStore()
	store.ReplaceBaseline(baseline)
	presence := mapsync.NewPresenceTracker()

	editor := &Editor{
		userId:     userId,
		store:      store,
		presence:   presence,
		dispatcher: mapsync.NewDispatcher(store, presence, userId),
	}
	emit := func(message mapsync.Message) {
		frame, err := mapsync.EncodeMessage(message)
		if err != nil {
			panic(err)
		}
		hub.Broadcast(userId, frame)
	}
	editor.throttler = mapsync.NewThrottler(ctx, emit, throttlerSettings)
	return editor
}

// Run drags the editor's own goal and cursor on a fixed cadence,
// the same apply-then-queue path the mutation pipeline takes.
func (self *Editor) Run(editInterval time.Duration, sendDuration time.Duration) {
	goalId := self.userId
	endTime := time.Now().Add(sendDuration)
	for time.Now().Before(endTime) {
		x := mathrand.Float64() * 1000
		y := mathrand.Float64() * 1000

		goal, ok := self.store.Goal(goalId)
		if !ok {
			return
		}
		goal.X = x
		goal.Y = y
		self.store.ApplyLocal(&mapsync.GoalUpsert{Goal: goal})
		self.editCount += 1
		self.throttler.Queue(
			mapsync.GoalThrottleKey(goalId),
			mapsync.ThrottleModeDebounce,
			func() (mapsync.Message, bool) {
				goal, ok := self.store.Goal(goalId)
				if !ok {
					return nil, false
				}
				return &mapsync.GoalUpdate{
					GoalId:      goal.GoalId,
					Title:       goal.Title,
					Description: goal.Description,
					Status:      goal.Status,
					X:           goal.X,
					Y:           goal.Y,
				}, true
			},
		)

		self.throttler.Queue(
			mapsync.CursorThrottleKey(self.userId),
			mapsync.ThrottleModeRateLimit,
			func() (mapsync.Message, bool) {
				return &mapsync.CursorUpdate{
					UserId:   self.userId,
					Username: fmt.Sprintf("user%d", self.userId),
					X:        x,
					Y:        y,
				}, true
			},
		)

		time.Sleep(editInterval)
	}
}
