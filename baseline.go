package mapsync

import (
	"context"
	"fmt"

	"github.com/golang/glog"
)

// fetches the initial snapshot of a project map from the rest system of
// record. Run once on activation and again whenever the transport
// reconnects, so missed broadcasts are absorbed by the refreshed baseline.
type BaselineLoader struct {
	api       *MapApi
	projectId int
}

func NewBaselineLoader(api *MapApi, projectId int) *BaselineLoader {
	return &BaselineLoader{
		api:       api,
		projectId: projectId,
	}
}

func (self *BaselineLoader) Load(ctx context.Context) (*Snapshot, error) {
	goalsCallback, goalsChannel := NewBlockingApiCallback[[]*Goal](ctx)
	self.api.GetProjectGoals(self.projectId, goalsCallback)

	stickyNotesCallback, stickyNotesChannel := NewBlockingApiCallback[[]*StickyNote](ctx)
	self.api.GetProjectStickyNotes(self.projectId, stickyNotesCallback)

	connectionsCallback, connectionsChannel := NewBlockingApiCallback[[]*Connection](ctx)
	self.api.GetProjectConnections(self.projectId, connectionsCallback)

	tasksCallback, tasksChannel := NewBlockingApiCallback[[]*TaskNode](ctx)
	self.api.GetProjectTasks(self.projectId, tasksCallback)

	snapshot := &Snapshot{}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-goalsChannel:
		if result.Error != nil {
			return nil, fmt.Errorf("load goals: %w", result.Error)
		}
		snapshot.Goals = result.Result
	}

	// sub-goals are listed per goal
	for _, goal := range snapshot.Goals {
		subGoalsCallback, subGoalsChannel := NewBlockingApiCallback[[]*SubGoal](ctx)
		self.api.GetGoalSubGoals(goal.GoalId, subGoalsCallback)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case result := <-subGoalsChannel:
			if result.Error != nil {
				return nil, fmt.Errorf("load subgoals for goal %d: %w", goal.GoalId, result.Error)
			}
			snapshot.SubGoals = append(snapshot.SubGoals, result.Result...)
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-stickyNotesChannel:
		if result.Error != nil {
			return nil, fmt.Errorf("load sticky notes: %w", result.Error)
		}
		snapshot.StickyNotes = result.Result
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-connectionsChannel:
		if result.Error != nil {
			return nil, fmt.Errorf("load connections: %w", result.Error)
		}
		snapshot.Connections = result.Result
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-tasksChannel:
		if result.Error != nil {
			return nil, fmt.Errorf("load tasks: %w", result.Error)
		}
		snapshot.Tasks = result.Result
	}

	glog.V(1).Infof(
		"[mb]project %d baseline: %d goals, %d subgoals, %d stickies, %d tasks, %d connections\n",
		self.projectId,
		len(snapshot.Goals),
		len(snapshot.SubGoals),
		len(snapshot.StickyNotes),
		len(snapshot.Tasks),
		len(snapshot.Connections),
	)
	return snapshot, nil
}
