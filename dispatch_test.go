package mapsync

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestDispatchSelfCursorExcluded(t *testing.T) {
	store := NewStore()
	presence := NewPresenceTracker()
	dispatcher := NewDispatcher(store, presence, 1)

	dispatcher.DispatchFrame([]byte(`{"type":"cursor_update","user_id":1,"username":"me","x":5,"y":5}`))
	assert.Equal(t, 0, len(presence.Cursors()))

	dispatcher.DispatchFrame([]byte(`{"type":"cursor_update","user_id":2,"username":"ana","x":5,"y":5}`))
	assert.Equal(t, 1, len(presence.Cursors()))
	assert.Equal(t, 2, presence.Cursors()[0].UserId)
}

func TestDispatchIdempotentGoalUpdate(t *testing.T) {
	store := NewStore()
	dispatcher := NewDispatcher(store, NewPresenceTracker(), 1)

	frame := []byte(`{"type":"goal_update","goal_id":3,"title":"t","description":"d","status":"done","position_x":1,"position_y":2}`)
	dispatcher.DispatchFrame(frame)
	sequence := store.Sequence()
	view := store.View()

	// applying the same frame twice yields the same store state as once
	dispatcher.DispatchFrame(frame)
	assert.Equal(t, sequence, store.Sequence())
	assert.Equal(t, view.Goals, store.View().Goals)
}

func TestDispatchConnectionLifecycle(t *testing.T) {
	store := NewStore()
	dispatcher := NewDispatcher(store, NewPresenceTracker(), 1)
	store.ReplaceBaseline(&Snapshot{
		Goals: []*Goal{
			{GoalId: 1},
			{GoalId: 2},
		},
	})

	// an update for an absent id is a create
	dispatcher.DispatchFrame([]byte(`{"type":"connection_update","connection_id":4,"source":"goal-1","target":"goal-2","label":"a"}`))
	connection, ok := store.Connection(4)
	assert.Equal(t, true, ok)
	assert.Equal(t, "a", connection.Label)

	// an update for a present id changes it
	dispatcher.DispatchFrame([]byte(`{"type":"connection_update","connection_id":4,"source":"goal-1","target":"goal-2","label":"b"}`))
	connection, _ = store.Connection(4)
	assert.Equal(t, "b", connection.Label)

	dispatcher.DispatchFrame([]byte(`{"type":"connection_delete","connection_id":4}`))
	_, ok = store.Connection(4)
	assert.Equal(t, false, ok)
}

func TestDispatchDeleteGoalCascades(t *testing.T) {
	store := NewStore()
	dispatcher := NewDispatcher(store, NewPresenceTracker(), 1)
	store.ReplaceBaseline(&Snapshot{
		Goals: []*Goal{
			{GoalId: 5},
			{GoalId: 6},
			{GoalId: 7},
		},
		Connections: []*Connection{
			testConnection(t, 1, GoalRef(5), GoalRef(6), ""),
			testConnection(t, 2, GoalRef(5), GoalRef(7), ""),
			testConnection(t, 3, GoalRef(6), GoalRef(7), ""),
		},
	})

	dispatcher.DispatchFrame([]byte(`{"type":"delete_goal","goal_id":5}`))

	// both edges sourced at goal 5 disappear from the next assembly
	graph := AssembleGraph(store.View(), nil)
	assert.Equal(t, 1, len(graph.Edges))
	assert.Equal(t, "edge-3", graph.Edges[0].EdgeId)
}

func TestDispatchMalformedFramesIgnored(t *testing.T) {
	store := NewStore()
	dispatcher := NewDispatcher(store, NewPresenceTracker(), 1)
	sequence := store.Sequence()

	// none of these may panic or change the store
	dispatcher.DispatchFrame([]byte(`not json`))
	dispatcher.DispatchFrame([]byte(`{"type":"presence_blast","user_id":2}`))
	dispatcher.DispatchFrame([]byte(`{"type":"connection_update","connection_id":1,"source":"widget-1","target":"goal-2"}`))
	dispatcher.DispatchFrame([]byte(`{"type":"connection_update","connection_id":1,"source":"task-1","target":"goal-2"}`))

	assert.Equal(t, sequence, store.Sequence())
}

func TestDispatchTaskUpdateFeedsProgress(t *testing.T) {
	store := NewStore()
	dispatcher := NewDispatcher(store, NewPresenceTracker(), 1)
	store.ReplaceBaseline(&Snapshot{
		Goals: []*Goal{
			{GoalId: 1},
		},
		Tasks: []*TaskNode{
			{TaskId: 2, Title: "task", Status: StatusNew},
		},
		Connections: []*Connection{
			testConnection(t, 1, GoalRef(1), TaskRef(2), ""),
		},
	})

	graph := AssembleGraph(store.View(), nil)
	assert.Equal(t, float64(0), graph.Nodes[0].Progress)

	dispatcher.DispatchFrame([]byte(`{"type":"task_update","task_id":2,"title":"task","status":"done"}`))

	graph = AssembleGraph(store.View(), nil)
	assert.Equal(t, float64(100), graph.Nodes[0].Progress)
}
