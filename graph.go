package mapsync

// pure derivation of the renderable graph from a store view.
// assembly never fails: entities with missing parents are left out of the
// aggregates they cannot join, and edges with unresolvable endpoints are
// dropped rather than rendered half-connected.

type ViewOptions struct {
	// nil means no filter
	StatusFilter *Status
	// render the task projection as nodes with subgoal->task edges
	ShowTasksAsNodes bool
}

type GraphNode struct {
	NodeId      string
	Ref         NodeRef
	Title       string
	Description string
	Status      Status
	X           float64
	Y           float64
	// percent of linked tasks marked done. Always 0 for task nodes.
	Progress float64
}

type GraphEdge struct {
	EdgeId string
	// synthetic node ids
	Source string
	Target string
	Label  string
}

type Graph struct {
	Nodes []*GraphNode
	Edges []*GraphEdge
	// sticky notes render as an overlay, not as graph nodes
	StickyNotes []*StickyNote
}

func AssembleGraph(view *StoreView, options *ViewOptions) *Graph {
	if options == nil {
		options = &ViewOptions{}
	}

	// confirmed connections unioned with pending ones; when both carry the
	// same id the pending one wins, since it is assumed more current
	connections := []*Connection{}
	connectionIndexById := map[int]int{}
	for _, connection := range view.Connections {
		if i, ok := connectionIndexById[connection.ConnectionId]; ok {
			connections[i] = connection
			continue
		}
		connectionIndexById[connection.ConnectionId] = len(connections)
		connections = append(connections, connection)
	}
	for _, connection := range view.PendingConnections {
		if i, ok := connectionIndexById[connection.ConnectionId]; ok {
			connections[i] = connection
			continue
		}
		connectionIndexById[connection.ConnectionId] = len(connections)
		connections = append(connections, connection)
	}

	taskById := map[int]*TaskNode{}
	for _, task := range view.Tasks {
		taskById[task.TaskId] = task
	}

	// progress per source node, from <source>->task connections only
	progress := func(source NodeRef) float64 {
		doneCount := 0
		totalCount := 0
		for _, connection := range connections {
			if connection.Source != source || connection.Target.Kind != NodeKindTask {
				continue
			}
			task, ok := taskById[connection.Target.Id]
			if !ok {
				continue
			}
			totalCount += 1
			if task.Status == StatusDone {
				doneCount += 1
			}
		}
		if totalCount == 0 {
			return 0
		}
		return float64(doneCount) / float64(totalCount) * 100
	}

	nodes := []*GraphNode{}
	for _, goal := range view.Goals {
		ref := GoalRef(goal.GoalId)
		nodes = append(nodes, &GraphNode{
			NodeId:      ref.NodeId(),
			Ref:         ref,
			Title:       goal.Title,
			Description: goal.Description,
			Status:      goal.Status,
			X:           goal.X,
			Y:           goal.Y,
			Progress:    progress(ref),
		})
	}
	for _, subGoal := range view.SubGoals {
		ref := SubGoalRef(subGoal.SubGoalId)
		nodes = append(nodes, &GraphNode{
			NodeId:      ref.NodeId(),
			Ref:         ref,
			Title:       subGoal.Title,
			Description: subGoal.Description,
			Status:      subGoal.Status,
			X:           subGoal.X,
			Y:           subGoal.Y,
			Progress:    progress(ref),
		})
	}
	if options.ShowTasksAsNodes {
		for _, task := range view.Tasks {
			ref := TaskRef(task.TaskId)
			nodes = append(nodes, &GraphNode{
				NodeId: ref.NodeId(),
				Ref:    ref,
				Title:  task.Title,
				Status: task.Status,
			})
		}
	}

	nodeIds := map[string]bool{}
	for _, node := range nodes {
		nodeIds[node.NodeId] = true
	}

	edges := []*GraphEdge{}
	for _, connection := range connections {
		sourceId := connection.Source.NodeId()
		targetId := connection.Target.NodeId()
		if !nodeIds[sourceId] || !nodeIds[targetId] {
			// unresolvable endpoint. Prefer under-rendering over crashing.
			continue
		}
		edges = append(edges, &GraphEdge{
			EdgeId: connection.EdgeId(),
			Source: sourceId,
			Target: targetId,
			Label:  connection.Label,
		})
	}

	// the status filter applies to the assembled node list only.
	// edges are intentionally not re-filtered by endpoint visibility.
	if options.StatusFilter != nil {
		filtered := []*GraphNode{}
		for _, node := range nodes {
			if node.Status == *options.StatusFilter {
				filtered = append(filtered, node)
			}
		}
		nodes = filtered
	}

	return &Graph{
		Nodes:       nodes,
		Edges:       edges,
		StickyNotes: view.StickyNotes,
	}
}
