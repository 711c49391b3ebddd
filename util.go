package mapsync

import (
	"sync"
)

// notifies listeners of a state change by closing the current notify channel.
// listeners re-arm by asking for the channel again.
type Monitor struct {
	mutex  sync.Mutex
	update chan struct{}
}

func NewMonitor() *Monitor {
	return &Monitor{
		update: make(chan struct{}),
	}
}

func (self *Monitor) NotifyChannel() <-chan struct{} {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.update
}

func (self *Monitor) NotifyAll() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	close(self.update)
	self.update = make(chan struct{})
}
