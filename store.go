package mapsync

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// the initial state of a project map, as fetched by the baseline loader
type Snapshot struct {
	Goals       []*Goal
	SubGoals    []*SubGoal
	StickyNotes []*StickyNote
	Tasks       []*TaskNode
	Connections []*Connection
}

// a single mutation of the canonical store.
// applyTo runs under the store lock and must not suspend.
// it returns whether the store actually changed, so that re-applying an
// identical update is a no-op with no observable effect.
type Change interface {
	applyTo(state *storeState) bool
}

type storeState struct {
	goals       map[int]*Goal
	subGoals    map[int]*SubGoal
	stickyNotes map[int]*StickyNote
	tasks       map[int]*TaskNode
	connections map[int]*Connection

	// optimistic connections not yet confirmed by a baseline fetch,
	// keyed by connection id. Overlays `connections` in the assembler.
	pendingConnections map[int]*Connection
}

func newStoreState() *storeState {
	return &storeState{
		goals:              map[int]*Goal{},
		subGoals:           map[int]*SubGoal{},
		stickyNotes:        map[int]*StickyNote{},
		tasks:              map[int]*TaskNode{},
		connections:        map[int]*Connection{},
		pendingConnections: map[int]*Connection{},
	}
}

// drop all connections, confirmed and pending, that touch `ref`
func (self *storeState) removeConnectionsTouching(ref NodeRef) bool {
	changed := false
	for connectionId, connection := range self.connections {
		if connection.Source == ref || connection.Target == ref {
			delete(self.connections, connectionId)
			changed = true
		}
	}
	for connectionId, connection := range self.pendingConnections {
		if connection.Source == ref || connection.Target == ref {
			delete(self.pendingConnections, connectionId)
			changed = true
		}
	}
	return changed
}

type GoalUpsert struct {
	Goal Goal
}

func (self *GoalUpsert) applyTo(state *storeState) bool {
	if existing, ok := state.goals[self.Goal.GoalId]; ok && *existing == self.Goal {
		return false
	}
	goal := self.Goal
	state.goals[goal.GoalId] = &goal
	return true
}

type GoalRemove struct {
	GoalId int
}

func (self *GoalRemove) applyTo(state *storeState) bool {
	_, ok := state.goals[self.GoalId]
	if ok {
		delete(state.goals, self.GoalId)
	}
	// edges touching the goal go with it. Sub-goals stay until the next
	// baseline confirms the server-side cascade; the assembler already
	// tolerates orphans.
	changed := state.removeConnectionsTouching(GoalRef(self.GoalId))
	return ok || changed
}

type SubGoalUpsert struct {
	SubGoal SubGoal
}

func (self *SubGoalUpsert) applyTo(state *storeState) bool {
	subGoal := self.SubGoal
	if existing, ok := state.subGoals[subGoal.SubGoalId]; ok {
		if subGoal.GoalId == 0 {
			// broadcast frames do not carry the parent goal
			subGoal.GoalId = existing.GoalId
		}
		if *existing == subGoal {
			return false
		}
	}
	state.subGoals[subGoal.SubGoalId] = &subGoal
	return true
}

type SubGoalRemove struct {
	SubGoalId int
}

func (self *SubGoalRemove) applyTo(state *storeState) bool {
	_, ok := state.subGoals[self.SubGoalId]
	if ok {
		delete(state.subGoals, self.SubGoalId)
	}
	changed := state.removeConnectionsTouching(SubGoalRef(self.SubGoalId))
	return ok || changed
}

type StickyNoteUpsert struct {
	StickyNote StickyNote
}

func (self *StickyNoteUpsert) applyTo(state *storeState) bool {
	stickyNote := self.StickyNote
	if existing, ok := state.stickyNotes[stickyNote.StickyId]; ok {
		if stickyNote.AuthorId == 0 {
			// broadcast frames do not carry the author
			stickyNote.AuthorId = existing.AuthorId
		}
		if *existing == stickyNote {
			return false
		}
	}
	state.stickyNotes[stickyNote.StickyId] = &stickyNote
	return true
}

type StickyNoteRemove struct {
	StickyId int
}

func (self *StickyNoteRemove) applyTo(state *storeState) bool {
	_, ok := state.stickyNotes[self.StickyId]
	if ok {
		delete(state.stickyNotes, self.StickyId)
	}
	return ok
}

type TaskUpsert struct {
	Task TaskNode
}

func (self *TaskUpsert) applyTo(state *storeState) bool {
	if existing, ok := state.tasks[self.Task.TaskId]; ok && *existing == self.Task {
		return false
	}
	task := self.Task
	state.tasks[task.TaskId] = &task
	return true
}

type ConnectionUpsert struct {
	Connection Connection
}

func (self *ConnectionUpsert) applyTo(state *storeState) bool {
	if existing, ok := state.connections[self.Connection.ConnectionId]; ok && *existing == self.Connection {
		return false
	}
	connection := self.Connection
	state.connections[connection.ConnectionId] = &connection
	return true
}

type ConnectionRemove struct {
	ConnectionId int
}

func (self *ConnectionRemove) applyTo(state *storeState) bool {
	_, ok := state.connections[self.ConnectionId]
	if ok {
		delete(state.connections, self.ConnectionId)
	}
	_, pendingOk := state.pendingConnections[self.ConnectionId]
	if pendingOk {
		delete(state.pendingConnections, self.ConnectionId)
	}
	return ok || pendingOk
}

// single in-memory source of truth for all map entities.
// mutated only through `ReplaceBaseline`, `ApplyLocal` and `ApplyRemote`.
// every effective mutation bumps the sequence and fires the update monitor
// so the next assembler pass knows the derived graph is stale.
type Store struct {
	mutex sync.Mutex
	state *storeState

	sequence uint64
	update   *Monitor

	// placeholder entity ids count down from -1 so they can never collide
	// with server-assigned ids
	nextPlaceholderId int
}

func NewStore() *Store {
	return &Store{
		state:             newStoreState(),
		update:            NewMonitor(),
		nextPlaceholderId: -1,
	}
}

func (self *Store) NewPlaceholderId() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	placeholderId := self.nextPlaceholderId
	self.nextPlaceholderId -= 1
	return placeholderId
}

func (self *Store) UpdateMonitor() *Monitor {
	return self.update
}

func (self *Store) Sequence() uint64 {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.sequence
}

func (self *Store) ReplaceBaseline(snapshot *Snapshot) {
	self.mutex.Lock()

	state := newStoreState()
	for _, goal := range snapshot.Goals {
		goalCopy := *goal
		state.goals[goal.GoalId] = &goalCopy
	}
	for _, subGoal := range snapshot.SubGoals {
		subGoalCopy := *subGoal
		state.subGoals[subGoal.SubGoalId] = &subGoalCopy
	}
	for _, stickyNote := range snapshot.StickyNotes {
		stickyNoteCopy := *stickyNote
		state.stickyNotes[stickyNote.StickyId] = &stickyNoteCopy
	}
	for _, task := range snapshot.Tasks {
		taskCopy := *task
		state.tasks[task.TaskId] = &taskCopy
	}
	for _, connection := range snapshot.Connections {
		connectionCopy := *connection
		state.connections[connection.ConnectionId] = &connectionCopy
	}
	// carry forward pending connections the baseline has not confirmed yet
	for connectionId, connection := range self.state.pendingConnections {
		if _, ok := state.connections[connectionId]; !ok {
			state.pendingConnections[connectionId] = connection
		}
	}

	self.state = state
	self.sequence += 1
	self.mutex.Unlock()

	self.update.NotifyAll()
}

func (self *Store) ApplyLocal(change Change) bool {
	return self.apply(change)
}

func (self *Store) ApplyRemote(change Change) bool {
	return self.apply(change)
}

func (self *Store) apply(change Change) bool {
	self.mutex.Lock()
	changed := change.applyTo(self.state)
	if changed {
		self.sequence += 1
	}
	self.mutex.Unlock()

	if changed {
		self.update.NotifyAll()
	}
	return changed
}

// register an optimistic connection so it survives a baseline replace
// until the baseline confirms it
func (self *Store) AddPendingConnection(connection *Connection) {
	self.mutex.Lock()
	connectionCopy := *connection
	self.state.pendingConnections[connection.ConnectionId] = &connectionCopy
	self.sequence += 1
	self.mutex.Unlock()

	self.update.NotifyAll()
}

func (self *Store) RemovePendingConnection(connectionId int) {
	self.mutex.Lock()
	_, ok := self.state.pendingConnections[connectionId]
	if ok {
		delete(self.state.pendingConnections, connectionId)
		self.sequence += 1
	}
	self.mutex.Unlock()

	if ok {
		self.update.NotifyAll()
	}
}

// reconciliation of locally-synthesized placeholder ids with the
// server-assigned id returned by a create call.
// endpoints of connections referencing the placeholder are remapped so a
// broadcast arriving before or after the confirmation resolves identically.

func (self *Store) ReconcileGoalId(placeholderId int, goalId int) {
	self.mutex.Lock()
	if goal, ok := self.state.goals[placeholderId]; ok {
		delete(self.state.goals, placeholderId)
		goal.GoalId = goalId
		self.state.goals[goalId] = goal
	}
	for _, subGoal := range self.state.subGoals {
		if subGoal.GoalId == placeholderId {
			subGoal.GoalId = goalId
		}
	}
	self.remapConnectionRef(GoalRef(placeholderId), GoalRef(goalId))
	self.sequence += 1
	self.mutex.Unlock()

	self.update.NotifyAll()
}

func (self *Store) ReconcileSubGoalId(placeholderId int, subGoalId int) {
	self.mutex.Lock()
	if subGoal, ok := self.state.subGoals[placeholderId]; ok {
		delete(self.state.subGoals, placeholderId)
		subGoal.SubGoalId = subGoalId
		self.state.subGoals[subGoalId] = subGoal
	}
	self.remapConnectionRef(SubGoalRef(placeholderId), SubGoalRef(subGoalId))
	self.sequence += 1
	self.mutex.Unlock()

	self.update.NotifyAll()
}

func (self *Store) ReconcileStickyId(placeholderId int, stickyId int) {
	self.mutex.Lock()
	if stickyNote, ok := self.state.stickyNotes[placeholderId]; ok {
		delete(self.state.stickyNotes, placeholderId)
		stickyNote.StickyId = stickyId
		self.state.stickyNotes[stickyId] = stickyNote
	}
	self.sequence += 1
	self.mutex.Unlock()

	self.update.NotifyAll()
}

func (self *Store) ReconcileConnectionId(placeholderId int, connectionId int) {
	self.mutex.Lock()
	if connection, ok := self.state.connections[placeholderId]; ok {
		delete(self.state.connections, placeholderId)
		connection.ConnectionId = connectionId
		self.state.connections[connectionId] = connection
	}
	if connection, ok := self.state.pendingConnections[placeholderId]; ok {
		delete(self.state.pendingConnections, placeholderId)
		connection.ConnectionId = connectionId
		self.state.pendingConnections[connectionId] = connection
	}
	self.sequence += 1
	self.mutex.Unlock()

	self.update.NotifyAll()
}

// must be called inside the state lock
func (self *Store) remapConnectionRef(oldRef NodeRef, newRef NodeRef) {
	remap := func(connections map[int]*Connection) {
		for _, connection := range connections {
			if connection.Source == oldRef {
				connection.Source = newRef
			}
			if connection.Target == oldRef {
				connection.Target = newRef
			}
		}
	}
	remap(self.state.connections)
	remap(self.state.pendingConnections)
}

// point reads returning copies. The outbound broadcast path uses these at
// flush time so a queued broadcast always carries the latest value, not a
// value captured when the edit began.

func (self *Store) Goal(goalId int) (Goal, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if goal, ok := self.state.goals[goalId]; ok {
		return *goal, true
	}
	return Goal{}, false
}

func (self *Store) SubGoal(subGoalId int) (SubGoal, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if subGoal, ok := self.state.subGoals[subGoalId]; ok {
		return *subGoal, true
	}
	return SubGoal{}, false
}

func (self *Store) StickyNote(stickyId int) (StickyNote, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if stickyNote, ok := self.state.stickyNotes[stickyId]; ok {
		return *stickyNote, true
	}
	return StickyNote{}, false
}

func (self *Store) Connection(connectionId int) (Connection, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if connection, ok := self.state.pendingConnections[connectionId]; ok {
		return *connection, true
	}
	if connection, ok := self.state.connections[connectionId]; ok {
		return *connection, true
	}
	return Connection{}, false
}

// a consistent copy of the store contents for one assembler pass.
// collections are sorted by id so derivation is deterministic.
type StoreView struct {
	Sequence           uint64
	Goals              []*Goal
	SubGoals           []*SubGoal
	StickyNotes        []*StickyNote
	Tasks              []*TaskNode
	Connections        []*Connection
	PendingConnections []*Connection
}

func (self *Store) View() *StoreView {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	view := &StoreView{
		Sequence: self.sequence,
	}
	for _, goalId := range sortedKeys(self.state.goals) {
		goal := *self.state.goals[goalId]
		view.Goals = append(view.Goals, &goal)
	}
	for _, subGoalId := range sortedKeys(self.state.subGoals) {
		subGoal := *self.state.subGoals[subGoalId]
		view.SubGoals = append(view.SubGoals, &subGoal)
	}
	for _, stickyId := range sortedKeys(self.state.stickyNotes) {
		stickyNote := *self.state.stickyNotes[stickyId]
		view.StickyNotes = append(view.StickyNotes, &stickyNote)
	}
	for _, taskId := range sortedKeys(self.state.tasks) {
		task := *self.state.tasks[taskId]
		view.Tasks = append(view.Tasks, &task)
	}
	for _, connectionId := range sortedKeys(self.state.connections) {
		connection := *self.state.connections[connectionId]
		view.Connections = append(view.Connections, &connection)
	}
	for _, connectionId := range sortedKeys(self.state.pendingConnections) {
		connection := *self.state.pendingConnections[connectionId]
		view.PendingConnections = append(view.PendingConnections, &connection)
	}
	return view
}

func (self *StoreView) Goal(goalId int) *Goal {
	for _, goal := range self.Goals {
		if goal.GoalId == goalId {
			return goal
		}
	}
	return nil
}

func (self *StoreView) SubGoal(subGoalId int) *SubGoal {
	for _, subGoal := range self.SubGoals {
		if subGoal.SubGoalId == subGoalId {
			return subGoal
		}
	}
	return nil
}

func (self *StoreView) StickyNote(stickyId int) *StickyNote {
	for _, stickyNote := range self.StickyNotes {
		if stickyNote.StickyId == stickyId {
			return stickyNote
		}
	}
	return nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
