package mapsync

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

const TransportBufferSize = 32

type MapTransportSettings struct {
	WsHandshakeTimeout time.Duration
	ReconnectTimeout   time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
}

func DefaultMapTransportSettings() *MapTransportSettings {
	return &MapTransportSettings{
		WsHandshakeTimeout: 2 * time.Second,
		ReconnectTimeout:   5 * time.Second,
		PingTimeout:        1 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        15 * time.Second,
	}
}

// persistent duplex socket to one project's map.
// owned by its ctx: opened on view activation, guaranteed closed on
// deactivation, reconnecting with backoff in between. Each successful
// (re)connect fires the connect monitor so the owner can resync the
// baseline for broadcasts missed while down.
type MapTransport struct {
	ctx    context.Context
	cancel context.CancelFunc

	connectUrl string
	projectId  int
	byJwt      string

	settings *MapTransportSettings

	send    chan []byte
	receive chan []byte

	connect *Monitor
}

func NewMapTransportWithDefaults(
	ctx context.Context,
	connectUrl string,
	projectId int,
	byJwt string,
) *MapTransport {
	return NewMapTransport(ctx, connectUrl, projectId, byJwt, DefaultMapTransportSettings())
}

func NewMapTransport(
	ctx context.Context,
	connectUrl string,
	projectId int,
	byJwt string,
	settings *MapTransportSettings,
) *MapTransport {
	cancelCtx, cancel := context.WithCancel(ctx)
	transport := &MapTransport{
		ctx:        cancelCtx,
		cancel:     cancel,
		connectUrl: connectUrl,
		projectId:  projectId,
		byJwt:      byJwt,
		settings:   settings,
		send:       make(chan []byte, TransportBufferSize),
		receive:    make(chan []byte, TransportBufferSize),
	}
	transport.connect = NewMonitor()
	go transport.run()
	return transport
}

// the connection url carries the project id in the path and the bearer
// token as a query parameter. One project's map per connection.
func (self *MapTransport) url() string {
	return fmt.Sprintf(
		"%s/ws/projects/%d/map/?token=%s",
		self.connectUrl,
		self.projectId,
		url.QueryEscape(self.byJwt),
	)
}

func (self *MapTransport) ConnectMonitor() *Monitor {
	return self.connect
}

func (self *MapTransport) Receive() <-chan []byte {
	return self.receive
}

// best effort. If the socket is down and the buffer is full the frame is
// dropped; the next baseline resync converges the peers.
func (self *MapTransport) Send(frame []byte) bool {
	select {
	case <-self.ctx.Done():
		return false
	case self.send <- frame:
		return true
	default:
		glog.Infof("[mt]drop project=%d ->\n", self.projectId)
		return false
	}
}

func (self *MapTransport) run() {
	defer func() {
		self.cancel()
		close(self.receive)
	}()

	for {
		reconnect := NewReconnect(self.settings.ReconnectTimeout)

		dialer := &websocket.Dialer{
			HandshakeTimeout: self.settings.WsHandshakeTimeout,
		}
		ws, _, err := dialer.DialContext(self.ctx, self.url(), nil)
		if err != nil {
			glog.Infof("[mt]connect error project=%d = %s\n", self.projectId, err)
			select {
			case <-self.ctx.Done():
				return
			case <-reconnect.After():
				continue
			}
		}

		glog.V(1).Infof("[mt]connect project=%d\n", self.projectId)
		self.connect.NotifyAll()

		c := func() {
			defer ws.Close()

			handleCtx, handleCancel := context.WithCancel(self.ctx)
			defer handleCancel()

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					case frame, ok := <-self.send:
						if !ok {
							return
						}

						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
							// a deadline timeout on a websocket cannot be recovered
							glog.Infof("[mt]project=%d-> error = %s\n", self.projectId, err)
							return
						}
						glog.V(2).Infof("[mt]project=%d->\n", self.projectId)
					case <-time.After(self.settings.PingTimeout):
						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.TextMessage, make([]byte, 0)); err != nil {
							return
						}
					}
				}
			}()

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					default:
					}

					ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
					messageType, frame, err := ws.ReadMessage()
					if err != nil {
						glog.Infof("[mt]project=%d<- error = %s\n", self.projectId, err)
						return
					}

					switch messageType {
					case websocket.TextMessage:
						if len(frame) == 0 {
							// ping
							glog.V(2).Infof("[mt]ping project=%d<-\n", self.projectId)
							continue
						}

						select {
						case <-handleCtx.Done():
							return
						case self.receive <- frame:
							glog.V(2).Infof("[mt]project=%d<-\n", self.projectId)
						case <-time.After(self.settings.ReadTimeout):
							glog.Infof("[mt]drop project=%d<-\n", self.projectId)
						}
					default:
						glog.V(2).Infof("[mt]other=%d project=%d<-\n", messageType, self.projectId)
					}
				}
			}()

			select {
			case <-handleCtx.Done():
			}
		}
		if glog.V(2) {
			Trace(fmt.Sprintf("[mt]connect run project=%d", self.projectId), c)
		} else {
			c()
		}

		select {
		case <-self.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

func (self *MapTransport) Close() {
	self.cancel()
}
