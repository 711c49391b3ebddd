package mapsync

import (
	"context"
	"fmt"

	"github.com/golang/glog"
)

type MapClientSettings struct {
	// client instance identity, for logs and diagnostics
	InstanceId Id

	TransportSettings *MapTransportSettings
	ThrottlerSettings *ThrottlerSettings
}

func DefaultMapClientSettings() *MapClientSettings {
	return &MapClientSettings{
		InstanceId:        NewId(),
		TransportSettings: DefaultMapTransportSettings(),
		ThrottlerSettings: DefaultThrottlerSettings(),
	}
}

// one mounted view of one project's collaborative map.
// owns the socket, the canonical store and the mutation pipeline for its
// lifetime; Close tears all of it down. In-flight rest calls are allowed to
// complete but their results land in a store nobody reads anymore.
type MapClient struct {
	ctx    context.Context
	cancel context.CancelFunc

	projectId int
	byJwt     *ByJwt

	api       *MapApi
	store     *Store
	loader    *BaselineLoader
	transport *MapTransport
	throttler *Throttler
	presence  *PresenceTracker

	dispatcher *Dispatcher
	mutator    *Mutator
}

func NewMapClientWithDefaults(
	ctx context.Context,
	apiUrl string,
	connectUrl string,
	projectId int,
	byJwtStr string,
) (*MapClient, error) {
	return NewMapClient(ctx, apiUrl, connectUrl, projectId, byJwtStr, DefaultMapClientSettings())
}

func NewMapClient(
	ctx context.Context,
	apiUrl string,
	connectUrl string,
	projectId int,
	byJwtStr string,
	settings *MapClientSettings,
) (*MapClient, error) {
	byJwt, err := ParseByJwtUnverified(byJwtStr)
	if err != nil {
		return nil, fmt.Errorf("parse jwt: %w", err)
	}

	cancelCtx, cancel := context.WithCancel(ctx)

	api := NewMapApiWithContext(cancelCtx, apiUrl)
	api.SetByJwt(byJwtStr)

	store := NewStore()
	presence := NewPresenceTracker()
	loader := NewBaselineLoader(api, projectId)
	transport := NewMapTransport(cancelCtx, connectUrl, projectId, byJwtStr, settings.TransportSettings)

	emit := func(message Message) {
		frame, err := EncodeMessage(message)
		if err != nil {
			glog.Infof("[mp]encode failed = %s\n", err)
			return
		}
		transport.Send(frame)
	}
	throttler := NewThrottler(cancelCtx, emit, settings.ThrottlerSettings)

	client := &MapClient{
		ctx:        cancelCtx,
		cancel:     cancel,
		projectId:  projectId,
		byJwt:      byJwt,
		api:        api,
		store:      store,
		loader:     loader,
		transport:  transport,
		throttler:  throttler,
		presence:   presence,
		dispatcher: NewDispatcher(store, presence, byJwt.UserId),
		mutator:    NewMutator(cancelCtx, api, store, throttler, emit, projectId, byJwt),
	}

	glog.V(1).Infof("[mc]open instance=%s project=%d user=%d\n", settings.InstanceId, projectId, byJwt.UserId)

	go client.runReceive()
	go client.runResync()

	return client, nil
}

func (self *MapClient) runReceive() {
	for {
		select {
		case <-self.ctx.Done():
			return
		case frame, ok := <-self.transport.Receive():
			if !ok {
				return
			}
			self.dispatcher.DispatchFrame(frame)
		}
	}
}

// loads the baseline at startup and again after every reconnect, absorbing
// any broadcasts missed while the socket was down
func (self *MapClient) runResync() {
	for {
		notify := self.transport.ConnectMonitor().NotifyChannel()

		snapshot, err := self.loader.Load(self.ctx)
		if err != nil {
			glog.Infof("[mb]baseline load failed project=%d = %s\n", self.projectId, err)
		} else {
			self.store.ReplaceBaseline(snapshot)
		}

		select {
		case <-self.ctx.Done():
			return
		case <-notify:
		}
	}
}

func (self *MapClient) Store() *Store {
	return self.store
}

func (self *MapClient) Mutator() *Mutator {
	return self.mutator
}

func (self *MapClient) Presence() *PresenceTracker {
	return self.presence
}

func (self *MapClient) Api() *MapApi {
	return self.api
}

// derive the renderable graph from the current store contents
func (self *MapClient) Graph(options *ViewOptions) *Graph {
	return AssembleGraph(self.store.View(), options)
}

func (self *MapClient) Close() {
	glog.V(1).Infof("[mc]close project=%d\n", self.projectId)
	self.cancel()
	self.throttler.Close()
	self.transport.Close()
	self.api.Close()
}
