package mapsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// entity statuses shared by goals, sub-goals and tasks
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// node kinds in the rendered graph
type NodeKind int

const (
	NodeKindGoal NodeKind = iota
	NodeKindSubGoal
	NodeKindTask
)

func (self NodeKind) String() string {
	switch self {
	case NodeKindGoal:
		return "goal"
	case NodeKindSubGoal:
		return "subgoal"
	case NodeKindTask:
		return "task"
	default:
		return fmt.Sprintf("unknown(%d)", int(self))
	}
}

// comparable
// a typed reference to a node. The zero value is not a valid reference.
type NodeRef struct {
	Kind NodeKind
	Id   int
}

func GoalRef(goalId int) NodeRef {
	return NodeRef{
		Kind: NodeKindGoal,
		Id:   goalId,
	}
}

func SubGoalRef(subGoalId int) NodeRef {
	return NodeRef{
		Kind: NodeKindSubGoal,
		Id:   subGoalId,
	}
}

func TaskRef(taskId int) NodeRef {
	return NodeRef{
		Kind: NodeKindTask,
		Id:   taskId,
	}
}

// the synthetic node id, e.g. "goal-3"
// all synthetic id formatting and parsing lives here,
// so that the assembler, dispatcher and wire layer cannot drift apart
func (self NodeRef) NodeId() string {
	return fmt.Sprintf("%s-%d", self.Kind, self.Id)
}

func (self NodeRef) String() string {
	return self.NodeId()
}

func ParseNodeId(nodeId string) (NodeRef, error) {
	// split on the first dash only: a placeholder id is negative, so the
	// numeric part may itself start with a dash ("goal--2")
	kind, idStr, ok := strings.Cut(nodeId, "-")
	if !ok {
		return NodeRef{}, fmt.Errorf("not a synthetic node id: %s", nodeId)
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return NodeRef{}, fmt.Errorf("not a synthetic node id: %s", nodeId)
	}
	switch kind {
	case "goal":
		return GoalRef(id), nil
	case "subgoal":
		return SubGoalRef(id), nil
	case "task":
		return TaskRef(id), nil
	default:
		return NodeRef{}, fmt.Errorf("unknown node kind: %s", nodeId)
	}
}

// the synthetic edge id, e.g. "edge-7"
func EdgeId(connectionId int) string {
	return fmt.Sprintf("edge-%d", connectionId)
}

func ParseEdgeId(edgeId string) (int, error) {
	idStr, ok := strings.CutPrefix(edgeId, "edge-")
	if !ok {
		return 0, fmt.Errorf("not a synthetic edge id: %s", edgeId)
	}
	return strconv.Atoi(idStr)
}

type Goal struct {
	GoalId      int     `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      Status  `json:"status"`
	X           float64 `json:"position_x"`
	Y           float64 `json:"position_y"`
}

type SubGoal struct {
	SubGoalId   int     `json:"id"`
	GoalId      int     `json:"goal"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      Status  `json:"status"`
	X           float64 `json:"position_x"`
	Y           float64 `json:"position_y"`
}

type StickyNote struct {
	StickyId int     `json:"id"`
	Text     string  `json:"text"`
	X        float64 `json:"position_x"`
	Y        float64 `json:"position_y"`
	AuthorId int     `json:"author"`
}

// read-mostly projection of a task, rendered as a node
// when the "show tasks as nodes" view option is enabled
type TaskNode struct {
	TaskId int    `json:"id"`
	Title  string `json:"title"`
	Status Status `json:"status"`
}

// a directed edge between two nodes.
// the source is always a goal or sub-goal; the target may also be a task.
type Connection struct {
	ConnectionId int
	Source       NodeRef
	Target       NodeRef
	Label        string
}

var ErrInvalidEndpoint = errors.New("invalid connection endpoint")

func NewConnection(connectionId int, source NodeRef, target NodeRef, label string) (*Connection, error) {
	if source.Kind != NodeKindGoal && source.Kind != NodeKindSubGoal {
		return nil, fmt.Errorf("%w: source %s", ErrInvalidEndpoint, source)
	}
	switch target.Kind {
	case NodeKindGoal, NodeKindSubGoal, NodeKindTask:
	default:
		return nil, fmt.Errorf("%w: target %s", ErrInvalidEndpoint, target)
	}
	return &Connection{
		ConnectionId: connectionId,
		Source:       source,
		Target:       target,
		Label:        label,
	}, nil
}

// the legacy tag describing the (source kind, target kind) pair
func (self *Connection) ConnectionType() string {
	return fmt.Sprintf("%s_to_%s", self.Source.Kind, self.Target.Kind)
}

func (self *Connection) EdgeId() string {
	return EdgeId(self.ConnectionId)
}

// the rest layer encodes an endpoint as one-of-several nullable columns.
// `connectionJson` keeps that wire shape while the in-memory type stays tagged.
type connectionJson struct {
	Id             int    `json:"id"`
	ConnectionType string `json:"connection_type"`
	SourceGoal     *int   `json:"source_goal,omitempty"`
	SourceSubGoal  *int   `json:"source_subgoal,omitempty"`
	TargetGoal     *int   `json:"target_goal,omitempty"`
	TargetSubGoal  *int   `json:"target_subgoal,omitempty"`
	TargetTask     *int   `json:"target_task,omitempty"`
	Label          string `json:"label,omitempty"`
}

func (self *Connection) MarshalJSON() ([]byte, error) {
	out := connectionJson{
		Id:             self.ConnectionId,
		ConnectionType: self.ConnectionType(),
		Label:          self.Label,
	}
	sourceId := self.Source.Id
	switch self.Source.Kind {
	case NodeKindGoal:
		out.SourceGoal = &sourceId
	case NodeKindSubGoal:
		out.SourceSubGoal = &sourceId
	default:
		return nil, fmt.Errorf("%w: source %s", ErrInvalidEndpoint, self.Source)
	}
	targetId := self.Target.Id
	switch self.Target.Kind {
	case NodeKindGoal:
		out.TargetGoal = &targetId
	case NodeKindSubGoal:
		out.TargetSubGoal = &targetId
	case NodeKindTask:
		out.TargetTask = &targetId
	default:
		return nil, fmt.Errorf("%w: target %s", ErrInvalidEndpoint, self.Target)
	}
	return json.Marshal(out)
}

func (self *Connection) UnmarshalJSON(src []byte) error {
	var in connectionJson
	if err := json.Unmarshal(src, &in); err != nil {
		return err
	}

	var source NodeRef
	switch {
	case in.SourceGoal != nil && in.SourceSubGoal == nil:
		source = GoalRef(*in.SourceGoal)
	case in.SourceSubGoal != nil && in.SourceGoal == nil:
		source = SubGoalRef(*in.SourceSubGoal)
	default:
		return fmt.Errorf("%w: connection %d must have exactly one source", ErrInvalidEndpoint, in.Id)
	}

	var target NodeRef
	targetCount := 0
	if in.TargetGoal != nil {
		target = GoalRef(*in.TargetGoal)
		targetCount += 1
	}
	if in.TargetSubGoal != nil {
		target = SubGoalRef(*in.TargetSubGoal)
		targetCount += 1
	}
	if in.TargetTask != nil {
		target = TaskRef(*in.TargetTask)
		targetCount += 1
	}
	if targetCount != 1 {
		return fmt.Errorf("%w: connection %d must have exactly one target", ErrInvalidEndpoint, in.Id)
	}

	self.ConnectionId = in.Id
	self.Source = source
	self.Target = target
	self.Label = in.Label
	return nil
}

// ephemeral live pointer state for one collaborator.
// never part of the persisted graph.
type Cursor struct {
	UserId   int
	Username string
	X        float64
	Y        float64
	Color    string
}
