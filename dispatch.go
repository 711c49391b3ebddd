package mapsync

import (
	"github.com/golang/glog"
)

// merges asynchronous socket broadcasts into the canonical store and the
// presence tracker. Dispatch is a pure switch over the frame's type tag;
// each handler touches only the entities the message names. A malformed or
// unknown frame is logged and ignored, never fatal.
//
// merges are idempotent and commutative per entity id: there is no ordering
// guarantee between a rest confirmation and the corresponding broadcast
// echo, so no handler depends on arrival order.
type Dispatcher struct {
	store    *Store
	presence *PresenceTracker

	// a user never renders a presence cursor for themselves
	selfUserId int
}

func NewDispatcher(store *Store, presence *PresenceTracker, selfUserId int) *Dispatcher {
	return &Dispatcher{
		store:      store,
		presence:   presence,
		selfUserId: selfUserId,
	}
}

func (self *Dispatcher) DispatchFrame(frame []byte) {
	message, err := ParseMessage(frame)
	if err != nil {
		glog.Infof("[md]ignore frame = %s\n", err)
		return
	}
	// a bad handler must not take down the receive loop
	HandleError(func() {
		self.Dispatch(message)
	})
}

func (self *Dispatcher) Dispatch(message Message) {
	switch v := message.(type) {
	case *CursorUpdate:
		if v.UserId == self.selfUserId {
			// echo of our own cursor
			return
		}
		self.presence.Update(v.UserId, v.Username, v.X, v.Y)

	case *StickyUpdate:
		// read-only for non-authors; the author field is preserved by the
		// store merge
		self.store.ApplyRemote(&StickyNoteUpsert{
			StickyNote: StickyNote{
				StickyId: v.StickyId,
				Text:     v.Text,
				X:        v.X,
				Y:        v.Y,
			},
		})

	case *GoalUpdate:
		self.store.ApplyRemote(&GoalUpsert{
			Goal: Goal{
				GoalId:      v.GoalId,
				Title:       v.Title,
				Description: v.Description,
				Status:      v.Status,
				X:           v.X,
				Y:           v.Y,
			},
		})

	case *SubGoalUpdate:
		self.store.ApplyRemote(&SubGoalUpsert{
			SubGoal: SubGoal{
				SubGoalId:   v.SubGoalId,
				Title:       v.Title,
				Description: v.Description,
				Status:      v.Status,
				X:           v.X,
				Y:           v.Y,
			},
		})

	case *TaskUpdate:
		self.store.ApplyRemote(&TaskUpsert{
			Task: TaskNode{
				TaskId: v.TaskId,
				Title:  v.Title,
				Status: v.Status,
			},
		})

	case *ConnectionUpdate:
		// an update for an absent id is a create
		source, err := ParseNodeId(v.Source)
		if err != nil {
			glog.Infof("[md]ignore connection %d = %s\n", v.ConnectionId, err)
			return
		}
		target, err := ParseNodeId(v.Target)
		if err != nil {
			glog.Infof("[md]ignore connection %d = %s\n", v.ConnectionId, err)
			return
		}
		connection, err := NewConnection(v.ConnectionId, source, target, v.Label)
		if err != nil {
			glog.Infof("[md]ignore connection %d = %s\n", v.ConnectionId, err)
			return
		}
		self.store.ApplyRemote(&ConnectionUpsert{
			Connection: *connection,
		})

	case *DeleteGoal:
		// drops the goal and every edge touching it
		self.store.ApplyRemote(&GoalRemove{
			GoalId: v.GoalId,
		})

	case *ConnectionDelete:
		self.store.ApplyRemote(&ConnectionRemove{
			ConnectionId: v.ConnectionId,
		})

	default:
		glog.Infof("[md]ignore message type = %s\n", message.MessageType())
	}
}
