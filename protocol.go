package mapsync

import (
	"encoding/json"
	"fmt"
)

// duplex socket wire protocol. Every frame is a json object with a
// discriminator field `type`. Client->server and server->client share the
// same shapes; the server rebroadcasts to the other participants.

const (
	MessageTypeCursorUpdate     = "cursor_update"
	MessageTypeStickyUpdate     = "sticky_update"
	MessageTypeGoalUpdate       = "goal_update"
	MessageTypeSubGoalUpdate    = "subgoal_update"
	MessageTypeTaskUpdate       = "task_update"
	MessageTypeConnectionUpdate = "connection_update"
	MessageTypeDeleteGoal       = "delete_goal"
	MessageTypeConnectionDelete = "connection_delete"
)

type Message interface {
	MessageType() string
}

type CursorUpdate struct {
	Type     string  `json:"type"`
	UserId   int     `json:"user_id"`
	Username string  `json:"username"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

func (self *CursorUpdate) MessageType() string {
	return MessageTypeCursorUpdate
}

type StickyUpdate struct {
	Type     string  `json:"type"`
	StickyId int     `json:"sticky_id"`
	Text     string  `json:"text"`
	X        float64 `json:"position_x"`
	Y        float64 `json:"position_y"`
}

func (self *StickyUpdate) MessageType() string {
	return MessageTypeStickyUpdate
}

type GoalUpdate struct {
	Type        string  `json:"type"`
	GoalId      int     `json:"goal_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      Status  `json:"status"`
	X           float64 `json:"position_x"`
	Y           float64 `json:"position_y"`
}

func (self *GoalUpdate) MessageType() string {
	return MessageTypeGoalUpdate
}

type SubGoalUpdate struct {
	Type        string  `json:"type"`
	SubGoalId   int     `json:"subgoal_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      Status  `json:"status"`
	X           float64 `json:"position_x"`
	Y           float64 `json:"position_y"`
}

func (self *SubGoalUpdate) MessageType() string {
	return MessageTypeSubGoalUpdate
}

type TaskUpdate struct {
	Type   string `json:"type"`
	TaskId int    `json:"task_id"`
	Title  string `json:"title"`
	Status Status `json:"status"`
}

func (self *TaskUpdate) MessageType() string {
	return MessageTypeTaskUpdate
}

// source and target are synthetic node ids, e.g. "goal-3"
type ConnectionUpdate struct {
	Type         string `json:"type"`
	ConnectionId int    `json:"connection_id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	Label        string `json:"label,omitempty"`
}

func (self *ConnectionUpdate) MessageType() string {
	return MessageTypeConnectionUpdate
}

// consumers must also drop edges touching the goal
type DeleteGoal struct {
	Type   string `json:"type"`
	GoalId int    `json:"goal_id"`
}

func (self *DeleteGoal) MessageType() string {
	return MessageTypeDeleteGoal
}

type ConnectionDelete struct {
	Type         string `json:"type"`
	ConnectionId int    `json:"connection_id"`
}

func (self *ConnectionDelete) MessageType() string {
	return MessageTypeConnectionDelete
}

type UnknownMessageTypeError struct {
	Type string
}

func (self *UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("unknown message type: %s", self.Type)
}

func ParseMessage(frame []byte) (Message, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		return nil, err
	}

	var message Message
	switch probe.Type {
	case MessageTypeCursorUpdate:
		message = &CursorUpdate{}
	case MessageTypeStickyUpdate:
		message = &StickyUpdate{}
	case MessageTypeGoalUpdate:
		message = &GoalUpdate{}
	case MessageTypeSubGoalUpdate:
		message = &SubGoalUpdate{}
	case MessageTypeTaskUpdate:
		message = &TaskUpdate{}
	case MessageTypeConnectionUpdate:
		message = &ConnectionUpdate{}
	case MessageTypeDeleteGoal:
		message = &DeleteGoal{}
	case MessageTypeConnectionDelete:
		message = &ConnectionDelete{}
	default:
		return nil, &UnknownMessageTypeError{Type: probe.Type}
	}
	if err := json.Unmarshal(frame, message); err != nil {
		return nil, err
	}
	return message, nil
}

func EncodeMessage(message Message) ([]byte, error) {
	// fill the discriminator so callers do not have to
	switch v := message.(type) {
	case *CursorUpdate:
		v.Type = MessageTypeCursorUpdate
	case *StickyUpdate:
		v.Type = MessageTypeStickyUpdate
	case *GoalUpdate:
		v.Type = MessageTypeGoalUpdate
	case *SubGoalUpdate:
		v.Type = MessageTypeSubGoalUpdate
	case *TaskUpdate:
		v.Type = MessageTypeTaskUpdate
	case *ConnectionUpdate:
		v.Type = MessageTypeConnectionUpdate
	case *DeleteGoal:
		v.Type = MessageTypeDeleteGoal
	case *ConnectionDelete:
		v.Type = MessageTypeConnectionDelete
	}
	return json.Marshal(message)
}
