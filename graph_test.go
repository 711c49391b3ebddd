package mapsync

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func testConnection(t *testing.T, connectionId int, source NodeRef, target NodeRef, label string) *Connection {
	connection, err := NewConnection(connectionId, source, target, label)
	assert.Equal(t, err, nil)
	return connection
}

func TestGraphProgress(t *testing.T) {
	store := NewStore()
	store.ReplaceBaseline(&Snapshot{
		Goals: []*Goal{
			{GoalId: 1, Title: "four tasks"},
			{GoalId: 2, Title: "no tasks"},
		},
		Tasks: []*TaskNode{
			{TaskId: 1, Status: StatusDone},
			{TaskId: 2, Status: StatusNew},
			{TaskId: 3, Status: StatusInProgress},
			{TaskId: 4, Status: StatusNew},
		},
		Connections: []*Connection{
			testConnection(t, 1, GoalRef(1), TaskRef(1), ""),
			testConnection(t, 2, GoalRef(1), TaskRef(2), ""),
			testConnection(t, 3, GoalRef(1), TaskRef(3), ""),
			testConnection(t, 4, GoalRef(1), TaskRef(4), ""),
		},
	})

	graph := AssembleGraph(store.View(), nil)

	progressByNodeId := map[string]float64{}
	for _, node := range graph.Nodes {
		progressByNodeId[node.NodeId] = node.Progress
	}
	// 1 of 4 linked tasks done
	assert.Equal(t, float64(25), progressByNodeId["goal-1"])
	// no linked tasks, no division by zero
	assert.Equal(t, float64(0), progressByNodeId["goal-2"])
}

func TestGraphDanglingEdgeOmitted(t *testing.T) {
	store := NewStore()
	store.ReplaceBaseline(&Snapshot{
		Goals: []*Goal{
			{GoalId: 1},
			{GoalId: 2},
		},
		Connections: []*Connection{
			testConnection(t, 1, GoalRef(1), GoalRef(2), ""),
			testConnection(t, 2, GoalRef(1), GoalRef(3), ""),
		},
	})

	graph := AssembleGraph(store.View(), nil)

	assert.Equal(t, 1, len(graph.Edges))
	assert.Equal(t, "edge-1", graph.Edges[0].EdgeId)

	// delete goal 2; its edge disappears from the next assembly
	store.ApplyRemote(&GoalRemove{GoalId: 2})
	graph = AssembleGraph(store.View(), nil)
	assert.Equal(t, 0, len(graph.Edges))
}

func TestGraphPendingDedupById(t *testing.T) {
	store := NewStore()
	store.ReplaceBaseline(&Snapshot{
		Goals: []*Goal{
			{GoalId: 1},
			{GoalId: 2},
		},
		Connections: []*Connection{
			testConnection(t, 7, GoalRef(1), GoalRef(2), "confirmed label"),
		},
	})
	store.AddPendingConnection(testConnection(t, 7, GoalRef(1), GoalRef(2), "pending label"))

	graph := AssembleGraph(store.View(), nil)

	// exactly one edge-7, and the pending version wins
	assert.Equal(t, 1, len(graph.Edges))
	assert.Equal(t, "edge-7", graph.Edges[0].EdgeId)
	assert.Equal(t, "pending label", graph.Edges[0].Label)
}

func TestGraphTasksAsNodes(t *testing.T) {
	store := NewStore()
	store.ReplaceBaseline(&Snapshot{
		Goals: []*Goal{
			{GoalId: 1},
		},
		Tasks: []*TaskNode{
			{TaskId: 5, Title: "write docs", Status: StatusNew},
		},
		Connections: []*Connection{
			testConnection(t, 1, GoalRef(1), TaskRef(5), ""),
		},
	})

	// tasks hidden: the goal->task edge has an unresolvable endpoint
	graph := AssembleGraph(store.View(), &ViewOptions{ShowTasksAsNodes: false})
	assert.Equal(t, 1, len(graph.Nodes))
	assert.Equal(t, 0, len(graph.Edges))

	graph = AssembleGraph(store.View(), &ViewOptions{ShowTasksAsNodes: true})
	assert.Equal(t, 2, len(graph.Nodes))
	assert.Equal(t, 1, len(graph.Edges))
	assert.Equal(t, "task-5", graph.Edges[0].Target)
}

func TestGraphStatusFilter(t *testing.T) {
	store := NewStore()
	store.ReplaceBaseline(&Snapshot{
		Goals: []*Goal{
			{GoalId: 1, Status: StatusDone},
			{GoalId: 2, Status: StatusNew},
		},
		Connections: []*Connection{
			testConnection(t, 1, GoalRef(1), GoalRef(2), ""),
		},
	})

	done := StatusDone
	graph := AssembleGraph(store.View(), &ViewOptions{StatusFilter: &done})

	assert.Equal(t, 1, len(graph.Nodes))
	assert.Equal(t, "goal-1", graph.Nodes[0].NodeId)
	// the filter applies to nodes only; edges are not re-filtered by
	// endpoint visibility
	assert.Equal(t, 1, len(graph.Edges))
}

func TestGraphOrphanSubGoal(t *testing.T) {
	store := NewStore()
	// a sub-goal whose parent goal is gone still renders as a node and
	// never crashes assembly
	store.ReplaceBaseline(&Snapshot{
		SubGoals: []*SubGoal{
			{SubGoalId: 1, GoalId: 99, Title: "orphan"},
		},
	})

	graph := AssembleGraph(store.View(), nil)
	assert.Equal(t, 1, len(graph.Nodes))
	assert.Equal(t, "subgoal-1", graph.Nodes[0].NodeId)
}
