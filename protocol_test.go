package mapsync

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestParseMessage(t *testing.T) {
	message, err := ParseMessage([]byte(`{"type":"goal_update","goal_id":3,"title":"t","status":"in_progress","position_x":1.5,"position_y":-2}`))
	assert.Equal(t, err, nil)
	goalUpdate, ok := message.(*GoalUpdate)
	assert.Equal(t, true, ok)
	assert.Equal(t, 3, goalUpdate.GoalId)
	assert.Equal(t, StatusInProgress, goalUpdate.Status)
	assert.Equal(t, float64(-2), goalUpdate.Y)

	message, err = ParseMessage([]byte(`{"type":"connection_update","connection_id":7,"source":"subgoal-2","target":"task-9"}`))
	assert.Equal(t, err, nil)
	connectionUpdate := message.(*ConnectionUpdate)
	assert.Equal(t, "subgoal-2", connectionUpdate.Source)
	assert.Equal(t, "task-9", connectionUpdate.Target)

	_, err = ParseMessage([]byte(`{"type":"presence_blast"}`))
	var unknownErr *UnknownMessageTypeError
	assert.Equal(t, true, errors.As(err, &unknownErr))
	assert.Equal(t, "presence_blast", unknownErr.Type)

	_, err = ParseMessage([]byte(`{`))
	assert.NotEqual(t, err, nil)
}

func TestEncodeMessageFillsDiscriminator(t *testing.T) {
	frame, err := EncodeMessage(&CursorUpdate{
		UserId:   2,
		Username: "ana",
		X:        4,
		Y:        8,
	})
	assert.Equal(t, err, nil)

	var fields map[string]any
	err = json.Unmarshal(frame, &fields)
	assert.Equal(t, err, nil)
	assert.Equal(t, "cursor_update", fields["type"])

	// round trip through the parser
	message, err := ParseMessage(frame)
	assert.Equal(t, err, nil)
	cursorUpdate := message.(*CursorUpdate)
	assert.Equal(t, 2, cursorUpdate.UserId)
	assert.Equal(t, "ana", cursorUpdate.Username)
}
