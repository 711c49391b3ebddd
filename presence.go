package mapsync

import (
	"sync"

	"golang.org/x/exp/slices"
)

// colors assigned to collaborator cursors. A user's color is a
// deterministic function of the user id, so the same user renders the same
// everywhere within a session.
var cursorColors = []string{
	"#e6194b",
	"#3cb44b",
	"#ffe119",
	"#4363d8",
	"#f58231",
	"#911eb4",
	"#46f0f0",
	"#f032e6",
	"#bcf60c",
	"#008080",
}

func CursorColor(userId int) string {
	i := userId % len(cursorColors)
	if i < 0 {
		i += len(cursorColors)
	}
	return cursorColors[i]
}

// short-lived, non-authoritative map of other users' live cursors.
// never persisted. Entries have no expiry: a disconnected user's last-known
// cursor persists until overwritten.
type PresenceTracker struct {
	mutex   sync.Mutex
	cursors map[int]*Cursor

	update *Monitor
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		cursors: map[int]*Cursor{},
		update:  NewMonitor(),
	}
}

func (self *PresenceTracker) UpdateMonitor() *Monitor {
	return self.update
}

// insert or update in place. Never appends duplicates for the same user id.
func (self *PresenceTracker) Update(userId int, username string, x float64, y float64) {
	self.mutex.Lock()
	if cursor, ok := self.cursors[userId]; ok {
		cursor.Username = username
		cursor.X = x
		cursor.Y = y
	} else {
		self.cursors[userId] = &Cursor{
			UserId:   userId,
			Username: username,
			X:        x,
			Y:        y,
			Color:    CursorColor(userId),
		}
	}
	self.mutex.Unlock()

	self.update.NotifyAll()
}

func (self *PresenceTracker) Remove(userId int) {
	self.mutex.Lock()
	_, ok := self.cursors[userId]
	if ok {
		delete(self.cursors, userId)
	}
	self.mutex.Unlock()

	if ok {
		self.update.NotifyAll()
	}
}

func (self *PresenceTracker) Cursor(userId int) (Cursor, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if cursor, ok := self.cursors[userId]; ok {
		return *cursor, true
	}
	return Cursor{}, false
}

func (self *PresenceTracker) Cursors() []*Cursor {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	cursors := []*Cursor{}
	for _, cursor := range self.cursors {
		cursorCopy := *cursor
		cursors = append(cursors, &cursorCopy)
	}
	slices.SortFunc(cursors, func(a *Cursor, b *Cursor) int {
		return a.UserId - b.UserId
	})
	return cursors
}
