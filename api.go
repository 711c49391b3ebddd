package mapsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any](ctx context.Context) (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R])
	apiCallback := NewApiCallback[R](func(result R, err error) {
		select {
		case c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}:
		case <-ctx.Done():
		}
	})
	return apiCallback, c
}

// async client for the rest system of record.
// the rest layer is an external collaborator; only the contracts consumed by
// the map are modeled here.
type MapApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	byJwt string
}

func NewMapApi(apiUrl string) *MapApi {
	return NewMapApiWithContext(context.Background(), apiUrl)
}

func NewMapApiWithContext(ctx context.Context, apiUrl string) *MapApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &MapApi{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
	}
}

// this gets attached to api calls that need it
func (self *MapApi) SetByJwt(byJwt string) {
	self.byJwt = byJwt
}

func (self *MapApi) Close() {
	self.cancel()
}

// goals

type GetProjectGoalsCallback apiCallback[[]*Goal]

func (self *MapApi) GetProjectGoals(projectId int, callback GetProjectGoalsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/projects/%d/goals/", self.apiUrl, projectId),
		self.byJwt,
		[]*Goal{},
		callback,
	)
}

type CreateGoalArgs struct {
	Project     int     `json:"project"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      Status  `json:"status"`
	X           float64 `json:"position_x"`
	Y           float64 `json:"position_y"`
}

type CreateGoalCallback apiCallback[*Goal]

func (self *MapApi) CreateGoal(createGoal *CreateGoalArgs, callback CreateGoalCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/goals/", self.apiUrl),
		createGoal,
		self.byJwt,
		&Goal{},
		callback,
	)
}

// partial update. Nil fields are left unchanged by the server.
type UpdateGoalArgs struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Status      *Status  `json:"status,omitempty"`
	X           *float64 `json:"position_x,omitempty"`
	Y           *float64 `json:"position_y,omitempty"`
}

type UpdateGoalCallback apiCallback[*Goal]

func (self *MapApi) UpdateGoal(goalId int, updateGoal *UpdateGoalArgs, callback UpdateGoalCallback) {
	go patch(
		self.ctx,
		fmt.Sprintf("%s/goals/%d/", self.apiUrl, goalId),
		updateGoal,
		self.byJwt,
		&Goal{},
		callback,
	)
}

type DeleteGoalCallback apiCallback[*Empty]

func (self *MapApi) DeleteGoal(goalId int, callback DeleteGoalCallback) {
	go del(
		self.ctx,
		fmt.Sprintf("%s/goals/%d/", self.apiUrl, goalId),
		self.byJwt,
		&Empty{},
		callback,
	)
}

// sub-goals

type GetGoalSubGoalsCallback apiCallback[[]*SubGoal]

func (self *MapApi) GetGoalSubGoals(goalId int, callback GetGoalSubGoalsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/goals/%d/subgoals/", self.apiUrl, goalId),
		self.byJwt,
		[]*SubGoal{},
		callback,
	)
}

type CreateSubGoalArgs struct {
	Goal        int     `json:"goal"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      Status  `json:"status"`
	X           float64 `json:"position_x"`
	Y           float64 `json:"position_y"`
}

type CreateSubGoalCallback apiCallback[*SubGoal]

func (self *MapApi) CreateSubGoal(createSubGoal *CreateSubGoalArgs, callback CreateSubGoalCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/subgoals/", self.apiUrl),
		createSubGoal,
		self.byJwt,
		&SubGoal{},
		callback,
	)
}

type UpdateSubGoalArgs struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Status      *Status  `json:"status,omitempty"`
	X           *float64 `json:"position_x,omitempty"`
	Y           *float64 `json:"position_y,omitempty"`
}

type UpdateSubGoalCallback apiCallback[*SubGoal]

func (self *MapApi) UpdateSubGoal(subGoalId int, updateSubGoal *UpdateSubGoalArgs, callback UpdateSubGoalCallback) {
	go patch(
		self.ctx,
		fmt.Sprintf("%s/subgoals/%d/", self.apiUrl, subGoalId),
		updateSubGoal,
		self.byJwt,
		&SubGoal{},
		callback,
	)
}

type DeleteSubGoalCallback apiCallback[*Empty]

func (self *MapApi) DeleteSubGoal(subGoalId int, callback DeleteSubGoalCallback) {
	go del(
		self.ctx,
		fmt.Sprintf("%s/subgoals/%d/", self.apiUrl, subGoalId),
		self.byJwt,
		&Empty{},
		callback,
	)
}

// sticky notes

type GetProjectStickyNotesCallback apiCallback[[]*StickyNote]

func (self *MapApi) GetProjectStickyNotes(projectId int, callback GetProjectStickyNotesCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/projects/%d/stickynotes/", self.apiUrl, projectId),
		self.byJwt,
		[]*StickyNote{},
		callback,
	)
}

type CreateStickyNoteArgs struct {
	Project int     `json:"project"`
	Text    string  `json:"text"`
	X       float64 `json:"position_x"`
	Y       float64 `json:"position_y"`
}

type CreateStickyNoteCallback apiCallback[*StickyNote]

func (self *MapApi) CreateStickyNote(createStickyNote *CreateStickyNoteArgs, callback CreateStickyNoteCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/stickynotes/", self.apiUrl),
		createStickyNote,
		self.byJwt,
		&StickyNote{},
		callback,
	)
}

type UpdateStickyNoteArgs struct {
	Text *string  `json:"text,omitempty"`
	X    *float64 `json:"position_x,omitempty"`
	Y    *float64 `json:"position_y,omitempty"`
}

type UpdateStickyNoteCallback apiCallback[*StickyNote]

func (self *MapApi) UpdateStickyNote(stickyId int, updateStickyNote *UpdateStickyNoteArgs, callback UpdateStickyNoteCallback) {
	go patch(
		self.ctx,
		fmt.Sprintf("%s/stickynotes/%d/", self.apiUrl, stickyId),
		updateStickyNote,
		self.byJwt,
		&StickyNote{},
		callback,
	)
}

type DeleteStickyNoteCallback apiCallback[*Empty]

func (self *MapApi) DeleteStickyNote(stickyId int, callback DeleteStickyNoteCallback) {
	go del(
		self.ctx,
		fmt.Sprintf("%s/stickynotes/%d/", self.apiUrl, stickyId),
		self.byJwt,
		&Empty{},
		callback,
	)
}

// connections

type GetProjectConnectionsCallback apiCallback[[]*Connection]

func (self *MapApi) GetProjectConnections(projectId int, callback GetProjectConnectionsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/projects/%d/connections/", self.apiUrl, projectId),
		self.byJwt,
		[]*Connection{},
		callback,
	)
}

type CreateConnectionArgs struct {
	Project    int
	Connection *Connection
}

func (self *CreateConnectionArgs) MarshalJSON() ([]byte, error) {
	connectionBytes, err := json.Marshal(self.Connection)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(connectionBytes, &fields); err != nil {
		return nil, err
	}
	delete(fields, "id")
	fields["project"] = self.Project
	return json.Marshal(fields)
}

type CreateConnectionCallback apiCallback[*Connection]

func (self *MapApi) CreateConnection(createConnection *CreateConnectionArgs, callback CreateConnectionCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/connections/", self.apiUrl),
		createConnection,
		self.byJwt,
		&Connection{},
		callback,
	)
}

type DeleteConnectionCallback apiCallback[*Empty]

func (self *MapApi) DeleteConnection(connectionId int, callback DeleteConnectionCallback) {
	go del(
		self.ctx,
		fmt.Sprintf("%s/connections/%d/", self.apiUrl, connectionId),
		self.byJwt,
		&Empty{},
		callback,
	)
}

// tasks (read-only for map purposes)

type GetProjectTasksCallback apiCallback[[]*TaskNode]

func (self *MapApi) GetProjectTasks(projectId int, callback GetProjectTasksCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/projects/%d/tasks/", self.apiUrl, projectId),
		self.byJwt,
		[]*TaskNode{},
		callback,
	)
}

type Empty struct {
}

func post[R any](ctx context.Context, url string, args any, byJwt string, result R, callback apiCallback[R]) (R, error) {
	return send(ctx, "POST", url, args, byJwt, result, callback)
}

func patch[R any](ctx context.Context, url string, args any, byJwt string, result R, callback apiCallback[R]) (R, error) {
	return send(ctx, "PATCH", url, args, byJwt, result, callback)
}

func send[R any](ctx context.Context, method string, url string, args any, byJwt string, result R, callback apiCallback[R]) (R, error) {
	var requestBodyBytes []byte
	if args == nil {
		requestBodyBytes = make([]byte, 0)
	} else {
		var err error
		requestBodyBytes, err = json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "application/json")

	if byJwt != "" {
		auth := fmt.Sprintf("Bearer %s", byJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if r.StatusCode < 200 || 300 <= r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	if len(responseBodyBytes) != 0 {
		err = json.Unmarshal(responseBodyBytes, &result)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	callback.Result(result, nil)
	return result, nil
}

func del[R any](ctx context.Context, url string, byJwt string, result R, callback apiCallback[R]) (R, error) {
	return send(ctx, "DELETE", url, nil, byJwt, result, callback)
}

func get[R any](ctx context.Context, url string, byJwt string, result R, callback apiCallback[R]) (R, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	if byJwt != "" {
		auth := fmt.Sprintf("Bearer %s", byJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}
