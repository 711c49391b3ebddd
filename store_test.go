package mapsync

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestStoreIdempotentApply(t *testing.T) {
	store := NewStore()

	goal := Goal{
		GoalId: 1,
		Title:  "ship beta",
		Status: StatusInProgress,
		X:      10,
		Y:      20,
	}
	changed := store.ApplyRemote(&GoalUpsert{Goal: goal})
	assert.Equal(t, true, changed)
	sequence := store.Sequence()

	// re-applying an identical update is a no-op with no observable effect
	changed = store.ApplyRemote(&GoalUpsert{Goal: goal})
	assert.Equal(t, false, changed)
	assert.Equal(t, sequence, store.Sequence())

	goal.X = 50
	changed = store.ApplyRemote(&GoalUpsert{Goal: goal})
	assert.Equal(t, true, changed)
	assert.NotEqual(t, sequence, store.Sequence())
}

func TestStoreRemoteMergePreservesHiddenFields(t *testing.T) {
	store := NewStore()

	store.ApplyLocal(&SubGoalUpsert{
		SubGoal: SubGoal{SubGoalId: 4, GoalId: 1, Title: "a"},
	})
	// broadcast frames carry no parent goal
	store.ApplyRemote(&SubGoalUpsert{
		SubGoal: SubGoal{SubGoalId: 4, Title: "b"},
	})
	subGoal, ok := store.SubGoal(4)
	assert.Equal(t, true, ok)
	assert.Equal(t, 1, subGoal.GoalId)
	assert.Equal(t, "b", subGoal.Title)

	store.ApplyLocal(&StickyNoteUpsert{
		StickyNote: StickyNote{StickyId: 9, Text: "note", AuthorId: 77},
	})
	// broadcast frames carry no author
	store.ApplyRemote(&StickyNoteUpsert{
		StickyNote: StickyNote{StickyId: 9, Text: "edited"},
	})
	stickyNote, ok := store.StickyNote(9)
	assert.Equal(t, true, ok)
	assert.Equal(t, 77, stickyNote.AuthorId)
	assert.Equal(t, "edited", stickyNote.Text)
}

func TestStoreGoalRemoveCascade(t *testing.T) {
	store := NewStore()

	store.ApplyLocal(&GoalUpsert{Goal: Goal{GoalId: 5, Title: "g5"}})
	store.ApplyLocal(&GoalUpsert{Goal: Goal{GoalId: 6, Title: "g6"}})
	store.ApplyLocal(&SubGoalUpsert{SubGoal: SubGoal{SubGoalId: 1, GoalId: 5}})

	c1, _ := NewConnection(1, GoalRef(5), GoalRef(6), "")
	c2, _ := NewConnection(2, GoalRef(5), SubGoalRef(1), "")
	c3, _ := NewConnection(3, GoalRef(6), SubGoalRef(1), "")
	store.ApplyLocal(&ConnectionUpsert{Connection: *c1})
	store.ApplyLocal(&ConnectionUpsert{Connection: *c2})
	store.ApplyLocal(&ConnectionUpsert{Connection: *c3})

	store.ApplyRemote(&GoalRemove{GoalId: 5})

	view := store.View()
	assert.Equal(t, 1, len(view.Goals))
	assert.Equal(t, 1, len(view.Connections))
	assert.Equal(t, 3, view.Connections[0].ConnectionId)
}

func TestStorePlaceholderReconcile(t *testing.T) {
	store := NewStore()

	placeholderId := store.NewPlaceholderId()
	assert.Equal(t, true, placeholderId < 0)

	store.ApplyLocal(&GoalUpsert{Goal: Goal{GoalId: placeholderId, Title: "new goal"}})
	store.ApplyLocal(&SubGoalUpsert{SubGoal: SubGoal{SubGoalId: 3, GoalId: placeholderId}})
	connection, _ := NewConnection(8, GoalRef(placeholderId), TaskRef(2), "")
	store.ApplyLocal(&ConnectionUpsert{Connection: *connection})

	store.ReconcileGoalId(placeholderId, 10)

	_, ok := store.Goal(placeholderId)
	assert.Equal(t, false, ok)
	goal, ok := store.Goal(10)
	assert.Equal(t, true, ok)
	assert.Equal(t, "new goal", goal.Title)

	subGoal, _ := store.SubGoal(3)
	assert.Equal(t, 10, subGoal.GoalId)

	reconciled, _ := store.Connection(8)
	assert.Equal(t, GoalRef(10), reconciled.Source)
}

func TestStorePendingSurvivesBaseline(t *testing.T) {
	store := NewStore()

	connection, _ := NewConnection(7, GoalRef(1), GoalRef(2), "pending label")
	store.AddPendingConnection(connection)

	// a stale baseline that does not contain connection 7 yet
	store.ReplaceBaseline(&Snapshot{
		Goals: []*Goal{
			{GoalId: 1},
			{GoalId: 2},
		},
	})
	view := store.View()
	assert.Equal(t, 1, len(view.PendingConnections))
	assert.Equal(t, 7, view.PendingConnections[0].ConnectionId)

	// the next baseline confirms it; the pending entry is dropped
	store.ReplaceBaseline(&Snapshot{
		Goals: []*Goal{
			{GoalId: 1},
			{GoalId: 2},
		},
		Connections: []*Connection{connection},
	})
	view = store.View()
	assert.Equal(t, 0, len(view.PendingConnections))
	assert.Equal(t, 1, len(view.Connections))
}

func TestStoreConnectionRemoveClearsPending(t *testing.T) {
	store := NewStore()

	connection, _ := NewConnection(7, GoalRef(1), GoalRef(2), "")
	store.ApplyLocal(&ConnectionUpsert{Connection: *connection})
	store.AddPendingConnection(connection)

	store.ApplyRemote(&ConnectionRemove{ConnectionId: 7})

	view := store.View()
	assert.Equal(t, 0, len(view.Connections))
	assert.Equal(t, 0, len(view.PendingConnections))
}
