package mapsync

import (
	"context"
	"errors"

	"github.com/golang/glog"
)

// only the sticky note author may edit its text
var ErrNotStickyAuthor = errors.New("sticky note text is only editable by its author")

// user-initiated create/update/delete actions. Each action:
//
//	(a) applies to the canonical store synchronously, so the ui reflects
//	    the change with zero latency
//	(b) issues the corresponding rest call
//	(c) on success reconciles server-assigned ids with local placeholders
//	    and queues the broadcast on the outbound throttler
//	(d) on failure logs and leaves the optimistic state in place.
//	    concurrent edits make rollback ambiguous, so there is none.
//
// broadcast suppliers read the store at fire time, so a frame queued at the
// start of a drag carries the value current when the window closes.
type Mutator struct {
	ctx context.Context

	api       *MapApi
	store     *Store
	throttler *Throttler
	// immediate sends that bypass the throttler (deletes)
	emit func(message Message)

	projectId int
	byJwt     *ByJwt
}

func NewMutator(
	ctx context.Context,
	api *MapApi,
	store *Store,
	throttler *Throttler,
	emit func(message Message),
	projectId int,
	byJwt *ByJwt,
) *Mutator {
	return &Mutator{
		ctx:       ctx,
		api:       api,
		store:     store,
		throttler: throttler,
		emit:      emit,
		projectId: projectId,
		byJwt:     byJwt,
	}
}

// a confirmation that lands after the owning ctx is cancelled is discarded:
// the store it would mutate is no longer rendered
func (self *Mutator) closed() bool {
	return self.ctx.Err() != nil
}

// cursors

// presence only. Never persisted, no rest call.
func (self *Mutator) MoveCursor(x float64, y float64) {
	userId := self.byJwt.UserId
	username := self.byJwt.Username
	self.throttler.Queue(
		CursorThrottleKey(userId),
		ThrottleModeRateLimit,
		func() (Message, bool) {
			return &CursorUpdate{
				UserId:   userId,
				Username: username,
				X:        x,
				Y:        y,
			}, true
		},
	)
}

// goals

// returns the local placeholder id. The ui can address the goal by it until
// the create call confirms; the store remaps the id on confirmation.
func (self *Mutator) CreateGoal(title string, description string, x float64, y float64, callback CreateGoalCallback) int {
	if callback == nil {
		callback = NewNoopApiCallback[*Goal]()
	}
	placeholderId := self.store.NewPlaceholderId()
	mutationId := NewId()

	self.store.ApplyLocal(&GoalUpsert{
		Goal: Goal{
			GoalId:      placeholderId,
			Title:       title,
			Description: description,
			Status:      StatusNew,
			X:           x,
			Y:           y,
		},
	})

	self.api.CreateGoal(
		&CreateGoalArgs{
			Project:     self.projectId,
			Title:       title,
			Description: description,
			Status:      StatusNew,
			X:           x,
			Y:           y,
		},
		NewApiCallback[*Goal](func(result *Goal, err error) {
			if err != nil {
				glog.Infof("[mp]create goal failed m=%s = %s\n", mutationId, err)
				callback.Result(nil, err)
				return
			}
			if self.closed() {
				glog.V(1).Infof("[mp]create goal m=%s discarded after close\n", mutationId)
				callback.Result(nil, self.ctx.Err())
				return
			}
			glog.V(1).Infof("[mp]create goal m=%s %d->%d\n", mutationId, placeholderId, result.GoalId)
			self.store.ReconcileGoalId(placeholderId, result.GoalId)
			self.queueGoalBroadcast(result.GoalId)
			callback.Result(result, nil)
		}),
	)
	return placeholderId
}

func (self *Mutator) MoveGoal(goalId int, x float64, y float64, callback UpdateGoalCallback) {
	if callback == nil {
		callback = NewNoopApiCallback[*Goal]()
	}
	goal, ok := self.store.Goal(goalId)
	if !ok {
		go callback.Result(nil, errors.New("no such goal"))
		return
	}
	goal.X = x
	goal.Y = y
	self.store.ApplyLocal(&GoalUpsert{Goal: goal})

	self.api.UpdateGoal(
		goalId,
		&UpdateGoalArgs{
			X: &x,
			Y: &y,
		},
		NewApiCallback[*Goal](func(result *Goal, err error) {
			if err != nil {
				glog.Infof("[mp]move goal %d failed = %s\n", goalId, err)
				callback.Result(nil, err)
				return
			}
			if self.closed() {
				callback.Result(nil, self.ctx.Err())
				return
			}
			self.queueGoalBroadcast(goalId)
			callback.Result(result, nil)
		}),
	)
}

func (self *Mutator) UpdateGoal(goalId int, updateGoal *UpdateGoalArgs, callback UpdateGoalCallback) {
	if callback == nil {
		callback = NewNoopApiCallback[*Goal]()
	}
	goal, ok := self.store.Goal(goalId)
	if !ok {
		go callback.Result(nil, errors.New("no such goal"))
		return
	}
	if updateGoal.Title != nil {
		goal.Title = *updateGoal.Title
	}
	if updateGoal.Description != nil {
		goal.Description = *updateGoal.Description
	}
	if updateGoal.Status != nil {
		goal.Status = *updateGoal.Status
	}
	if updateGoal.X != nil {
		goal.X = *updateGoal.X
	}
	if updateGoal.Y != nil {
		goal.Y = *updateGoal.Y
	}
	self.store.ApplyLocal(&GoalUpsert{Goal: goal})

	self.api.UpdateGoal(
		goalId,
		updateGoal,
		NewApiCallback[*Goal](func(result *Goal, err error) {
			if err != nil {
				glog.Infof("[mp]update goal %d failed = %s\n", goalId, err)
				callback.Result(nil, err)
				return
			}
			if self.closed() {
				callback.Result(nil, self.ctx.Err())
				return
			}
			self.queueGoalBroadcast(goalId)
			callback.Result(result, nil)
		}),
	)
}

func (self *Mutator) DeleteGoal(goalId int, callback DeleteGoalCallback) {
	if callback == nil {
		callback = NewNoopApiCallback[*Empty]()
	}
	// cascades removal of the edges touching the goal
	self.store.ApplyLocal(&GoalRemove{GoalId: goalId})

	self.api.DeleteGoal(
		goalId,
		NewApiCallback[*Empty](func(result *Empty, err error) {
			if err != nil {
				glog.Infof("[mp]delete goal %d failed = %s\n", goalId, err)
				callback.Result(nil, err)
				return
			}
			if self.closed() {
				callback.Result(nil, self.ctx.Err())
				return
			}
			// explicit delete broadcast so peers converge without a reload
			self.emit(&DeleteGoal{GoalId: goalId})
			callback.Result(result, nil)
		}),
	)
}

func (self *Mutator) queueGoalBroadcast(goalId int) {
	self.throttler.Queue(
		GoalThrottleKey(goalId),
		ThrottleModeDebounce,
		func() (Message, bool) {
			goal, ok := self.store.Goal(goalId)
			if !ok {
				return nil, false
			}
			return &GoalUpdate{
				GoalId:      goal.GoalId,
				Title:       goal.Title,
				Description: goal.Description,
				Status:      goal.Status,
				X:           goal.X,
				Y:           goal.Y,
			}, true
		},
	)
}

// sub-goals

func (self *Mutator) CreateSubGoal(goalId int, title string, description string, x float64, y float64, callback CreateSubGoalCallback) int {
	if callback == nil {
		callback = NewNoopApiCallback[*SubGoal]()
	}
	placeholderId := self.store.NewPlaceholderId()
	mutationId := NewId()

	self.store.ApplyLocal(&SubGoalUpsert{
		SubGoal: SubGoal{
			SubGoalId:   placeholderId,
			GoalId:      goalId,
			Title:       title,
			Description: description,
			Status:      StatusNew,
			X:           x,
			Y:           y,
		},
	})

	self.api.CreateSubGoal(
		&CreateSubGoalArgs{
			Goal:        goalId,
			Title:       title,
			Description: description,
			Status:      StatusNew,
			X:           x,
			Y:           y,
		},
		NewApiCallback[*SubGoal](func(result *SubGoal, err error) {
			if err != nil {
				glog.Infof("[mp]create subgoal failed m=%s = %s\n", mutationId, err)
				callback.Result(nil, err)
				return
			}
			if self.closed() {
				glog.V(1).Infof("[mp]create subgoal m=%s discarded after close\n", mutationId)
				callback.Result(nil, self.ctx.Err())
				return
			}
			glog.V(1).Infof("[mp]create subgoal m=%s %d->%d\n", mutationId, placeholderId, result.SubGoalId)
			self.store.ReconcileSubGoalId(placeholderId, result.SubGoalId)
			self.queueSubGoalBroadcast(result.SubGoalId)
			callback.Result(result, nil)
		}),
	)
	return placeholderId
}

func (self *Mutator) MoveSubGoal(subGoalId int, x float64, y float64, callback UpdateSubGoalCallback) {
	if callback == nil {
		callback = NewNoopApiCallback[*SubGoal]()
	}
	subGoal, ok := self.store.SubGoal(subGoalId)
	if !ok {
		go callback.Result(nil, errors.New("no such subgoal"))
		return
	}
	subGoal.X = x
	subGoal.Y = y
	self.store.ApplyLocal(&SubGoalUpsert{SubGoal: subGoal})

	self.api.UpdateSubGoal(
		subGoalId,
		&UpdateSubGoalArgs{
			X: &x,
			Y: &y,
		},
		NewApiCallback[*SubGoal](func(result *SubGoal, err error) {
			if err != nil {
				glog.Infof("[mp]move subgoal %d failed = %s\n", subGoalId, err)
				callback.Result(nil, err)
				return
			}
			if self.closed() {
				callback.Result(nil, self.ctx.Err())
				return
			}
			self.queueSubGoalBroadcast(subGoalId)
			callback.Result(result, nil)
		}),
	)
}

func (self *Mutator) UpdateSubGoal(subGoalId int, updateSubGoal *UpdateSubGoalArgs, callback UpdateSubGoalCallback) {
	if callback == nil {
		callback = NewNoopApiCallback[*SubGoal]()
	}
	subGoal, ok := self.store.SubGoal(subGoalId)
	if !ok {
		go callback.Result(nil, errors.New("no such subgoal"))
		return
	}
	if updateSubGoal.Title != nil {
		subGoal.Title = *updateSubGoal.Title
	}
	if updateSubGoal.Description != nil {
		subGoal.Description = *updateSubGoal.Description
	}
	if updateSubGoal.Status != nil {
		subGoal.Status = *updateSubGoal.Status
	}
	if updateSubGoal.X != nil {
		subGoal.X = *updateSubGoal.X
	}
	if updateSubGoal.Y != nil {
		subGoal.Y = *updateSubGoal.Y
	}
	self.store.ApplyLocal(&SubGoalUpsert{SubGoal: subGoal})

	self.api.UpdateSubGoal(
		subGoalId,
		updateSubGoal,
		NewApiCallback[*SubGoal](func(result *SubGoal, err error) {
			if err != nil {
				glog.Infof("[mp]update subgoal %d failed = %s\n", subGoalId, err)
				callback.Result(nil, err)
				return
			}
			if self.closed() {
				callback.Result(nil, self.ctx.Err())
				return
			}
			self.queueSubGoalBroadcast(subGoalId)
			callback.Result(result, nil)
		}),
	)
}

// there is no subgoal delete frame on the wire; peers converge on their
// next baseline fetch
func (self *Mutator) DeleteSubGoal(subGoalId int, callback DeleteSubGoalCallback) {
	if callback == nil {
		callback = NewNoopApiCallback[*Empty]()
	}
	self.store.ApplyLocal(&SubGoalRemove{SubGoalId: subGoalId})

	self.api.DeleteSubGoal(
		subGoalId,
		NewApiCallback[*Empty](func(result *Empty, err error) {
			if err != nil {
				glog.Infof("[mp]delete subgoal %d failed = %s\n", subGoalId, err)
				callback.Result(nil, err)
				return
			}
			callback.Result(result, nil)
		}),
	)
}

func (self *Mutator) queueSubGoalBroadcast(subGoalId int) {
	self.throttler.Queue(
		SubGoalThrottleKey(subGoalId),
		ThrottleModeDebounce,
		func() (Message, bool) {
			subGoal, ok := self.store.SubGoal(subGoalId)
			if !ok {
				return nil, false
			}
			return &SubGoalUpdate{
				SubGoalId:   subGoal.SubGoalId,
				Title:       subGoal.Title,
				Description: subGoal.Description,
				Status:      subGoal.Status,
				X:           subGoal.X,
				Y:           subGoal.Y,
			}, true
		},
	)
}

// sticky notes

func (self *Mutator) CreateStickyNote(text string, x float64, y float64, callback CreateStickyNoteCallback) int {
	if callback == nil {
		callback = NewNoopApiCallback[*StickyNote]()
	}
	placeholderId := self.store.NewPlaceholderId()
	mutationId := NewId()

	self.store.ApplyLocal(&StickyNoteUpsert{
		StickyNote: StickyNote{
			StickyId: placeholderId,
			Text:     text,
			X:        x,
			Y:        y,
			AuthorId: self.byJwt.UserId,
		},
	})

	self.api.CreateStickyNote(
		&CreateStickyNoteArgs{
			Project: self.projectId,
			Text:    text,
			X:       x,
			Y:       y,
		},
		NewApiCallback[*StickyNote](func(result *StickyNote, err error) {
			if err != nil {
				glog.Infof("[mp]create sticky failed m=%s = %s\n", mutationId, err)
				callback.Result(nil, err)
				return
			}
			if self.closed() {
				glog.V(1).Infof("[mp]create sticky m=%s discarded after close\n", mutationId)
				callback.Result(nil, self.ctx.Err())
				return
			}
			glog.V(1).Infof("[mp]create sticky m=%s %d->%d\n", mutationId, placeholderId, result.StickyId)
			self.store.ReconcileStickyId(placeholderId, result.StickyId)
			self.queueStickyBroadcast(result.StickyId)
			callback.Result(result, nil)
		}),
	)
	return placeholderId
}

func (self *Mutator) UpdateStickyNote(stickyId int, updateStickyNote *UpdateStickyNoteArgs, callback UpdateStickyNoteCallback) {
	if callback == nil {
		callback = NewNoopApiCallback[*StickyNote]()
	}
	stickyNote, ok := self.store.StickyNote(stickyId)
	if !ok {
		go callback.Result(nil, errors.New("no such sticky note"))
		return
	}
	if updateStickyNote.Text != nil && stickyNote.AuthorId != self.byJwt.UserId {
		glog.Infof("[mp]sticky %d text edit rejected for user %d\n", stickyId, self.byJwt.UserId)
		go callback.Result(nil, ErrNotStickyAuthor)
		return
	}
	if updateStickyNote.Text != nil {
		stickyNote.Text = *updateStickyNote.Text
	}
	if updateStickyNote.X != nil {
		stickyNote.X = *updateStickyNote.X
	}
	if updateStickyNote.Y != nil {
		stickyNote.Y = *updateStickyNote.Y
	}
	self.store.ApplyLocal(&StickyNoteUpsert{StickyNote: stickyNote})

	self.api.UpdateStickyNote(
		stickyId,
		updateStickyNote,
		NewApiCallback[*StickyNote](func(result *StickyNote, err error) {
			if err != nil {
				glog.Infof("[mp]update sticky %d failed = %s\n", stickyId, err)
				callback.Result(nil, err)
				return
			}
			if self.closed() {
				callback.Result(nil, self.ctx.Err())
				return
			}
			self.queueStickyBroadcast(stickyId)
			callback.Result(result, nil)
		}),
	)
}

// there is no sticky delete frame on the wire; peers converge on their next
// baseline fetch
func (self *Mutator) DeleteStickyNote(stickyId int, callback DeleteStickyNoteCallback) {
	if callback == nil {
		callback = NewNoopApiCallback[*Empty]()
	}
	self.store.ApplyLocal(&StickyNoteRemove{StickyId: stickyId})

	self.api.DeleteStickyNote(
		stickyId,
		NewApiCallback[*Empty](func(result *Empty, err error) {
			if err != nil {
				glog.Infof("[mp]delete sticky %d failed = %s\n", stickyId, err)
				callback.Result(nil, err)
				return
			}
			callback.Result(result, nil)
		}),
	)
}

func (self *Mutator) queueStickyBroadcast(stickyId int) {
	self.throttler.Queue(
		StickyThrottleKey(stickyId),
		ThrottleModeDebounce,
		func() (Message, bool) {
			stickyNote, ok := self.store.StickyNote(stickyId)
			if !ok {
				return nil, false
			}
			return &StickyUpdate{
				StickyId: stickyNote.StickyId,
				Text:     stickyNote.Text,
				X:        stickyNote.X,
				Y:        stickyNote.Y,
			}, true
		},
	)
}

// connections

func (self *Mutator) CreateConnection(source NodeRef, target NodeRef, label string, callback CreateConnectionCallback) (int, error) {
	if callback == nil {
		callback = NewNoopApiCallback[*Connection]()
	}
	placeholderId := self.store.NewPlaceholderId()
	mutationId := NewId()

	connection, err := NewConnection(placeholderId, source, target, label)
	if err != nil {
		return 0, err
	}
	self.store.ApplyLocal(&ConnectionUpsert{Connection: *connection})

	self.api.CreateConnection(
		&CreateConnectionArgs{
			Project:    self.projectId,
			Connection: connection,
		},
		NewApiCallback[*Connection](func(result *Connection, err error) {
			if err != nil {
				glog.Infof("[mp]create connection failed m=%s = %s\n", mutationId, err)
				callback.Result(nil, err)
				return
			}
			if self.closed() {
				glog.V(1).Infof("[mp]create connection m=%s discarded after close\n", mutationId)
				callback.Result(nil, self.ctx.Err())
				return
			}
			glog.V(1).Infof("[mp]create connection m=%s %d->%d\n", mutationId, placeholderId, result.ConnectionId)
			self.store.ReconcileConnectionId(placeholderId, result.ConnectionId)
			// pending from the moment the create resolves until the next
			// baseline confirms it, so the edge does not flicker while the
			// confirmed list catches up
			confirmed, ok := self.store.Connection(result.ConnectionId)
			if ok {
				self.store.AddPendingConnection(&confirmed)
			}
			self.queueConnectionBroadcast(result.ConnectionId)
			callback.Result(result, nil)
		}),
	)
	return placeholderId, nil
}

func (self *Mutator) DeleteConnection(connectionId int, callback DeleteConnectionCallback) {
	if callback == nil {
		callback = NewNoopApiCallback[*Empty]()
	}
	self.store.ApplyLocal(&ConnectionRemove{ConnectionId: connectionId})

	self.api.DeleteConnection(
		connectionId,
		NewApiCallback[*Empty](func(result *Empty, err error) {
			if err != nil {
				glog.Infof("[mp]delete connection %d failed = %s\n", connectionId, err)
				callback.Result(nil, err)
				return
			}
			if self.closed() {
				callback.Result(nil, self.ctx.Err())
				return
			}
			self.emit(&ConnectionDelete{ConnectionId: connectionId})
			callback.Result(result, nil)
		}),
	)
}

func (self *Mutator) queueConnectionBroadcast(connectionId int) {
	self.throttler.Queue(
		ConnectionThrottleKey(connectionId),
		ThrottleModeDebounce,
		func() (Message, bool) {
			connection, ok := self.store.Connection(connectionId)
			if !ok {
				return nil, false
			}
			// broadcast also clears the pending entry. A race with the
			// baseline confirming it first is fine: the assembler dedups
			// by connection id either way.
			self.store.RemovePendingConnection(connectionId)
			return &ConnectionUpdate{
				ConnectionId: connection.ConnectionId,
				Source:       connection.Source.NodeId(),
				Target:       connection.Target.NodeId(),
				Label:        connection.Label,
			}, true
		},
	)
}
