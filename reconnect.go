package mapsync

import (
	"time"
)

// fixed-delay reconnect window, measured from creation so that time spent
// inside a failed connect attempt counts against the delay
type Reconnect struct {
	timeout time.Duration
	start   time.Time
}

func NewReconnect(timeout time.Duration) *Reconnect {
	return &Reconnect{
		timeout: timeout,
		start:   time.Now(),
	}
}

func (self *Reconnect) After() <-chan time.Time {
	remaining := self.timeout - time.Since(self.start)
	if remaining <= 0 {
		c := make(chan time.Time, 1)
		c <- time.Now()
		return c
	}
	return time.After(remaining)
}
