// Package websocket streams split transport traffic to websocket clients.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/split.go/pkg/bridge/msgs"
	"github.com/robotalks/split.go/pkg/split/transport"
)

// DefaultClientQueueSize is the number of messages buffered per client.
const DefaultClientQueueSize = 64

// Hub broadcasts events and commands as binary msgs.Typed frames to every
// connected client. Frames received from clients are injected into the
// served transport: commands into a Central, events into a Peripheral.
type Hub struct {
	ClientQueueSize int

	lock       sync.RWMutex
	clients    map[*client]struct{}
	central    transport.CentralTransport
	peripheral transport.PeripheralTransport
}

type client struct {
	conn   *websocket.Conn
	sendCh chan []byte
}

var _ transport.PeripheralEventHandler = &Hub{}
var _ transport.CentralCommandHandler = &Hub{}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{
		ClientQueueSize: DefaultClientQueueSize,
		clients:         make(map[*client]struct{}),
	}
}

// ServeCentral accepts commands from clients and sends them through tr.
func (h *Hub) ServeCentral(tr transport.CentralTransport) {
	h.lock.Lock()
	h.central = tr
	h.lock.Unlock()
}

// ServePeripheral accepts events from clients and reports them through tr.
func (h *Hub) ServePeripheral(tr transport.PeripheralTransport) {
	h.lock.Lock()
	h.peripheral = tr
	h.lock.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// Handler returns the websocket handler to be mounted on an HTTP server.
func (h *Hub) Handler() websocket.Handler {
	return h.serve
}

// HandlePeripheralEvent implements transport.PeripheralEventHandler.
func (h *Hub) HandlePeripheralEvent(_ context.Context, _ transport.CentralTransport, source uint8, ev transport.PeripheralEvent) {
	msg, err := msgs.NewEvent(source, ev, time.Now())
	if err != nil {
		glog.Warningf("websocket event %v: %v", ev, err)
		return
	}
	h.Broadcast(msg)
}

// HandleCentralCommand implements transport.CentralCommandHandler.
func (h *Hub) HandleCentralCommand(_ context.Context, _ transport.PeripheralTransport, cmd transport.CentralCommand) {
	msg, err := msgs.NewCommand(transport.PeripheralID, cmd)
	if err != nil {
		glog.Warningf("websocket command %v: %v", cmd, err)
		return
	}
	h.Broadcast(msg)
}

// Broadcast sends msg to all clients. Clients falling behind miss it.
func (h *Hub) Broadcast(msg msgs.SerializableMessage) {
	data, err := msgs.Encode(msg)
	if err != nil {
		glog.Warningf("encode %T: %v", msg, err)
		return
	}
	h.lock.RLock()
	defer h.lock.RUnlock()
	for c := range h.clients {
		select {
		case c.sendCh <- data:
		default:
			glog.V(2).Infof("websocket client %s too slow, message dropped", c.conn.Request().RemoteAddr)
		}
	}
}

func (h *Hub) serve(conn *websocket.Conn) {
	conn.PayloadType = websocket.BinaryFrame
	size := h.ClientQueueSize
	if size <= 0 {
		size = DefaultClientQueueSize
	}
	c := &client{conn: conn, sendCh: make(chan []byte, size)}
	h.lock.Lock()
	h.clients[c] = struct{}{}
	h.lock.Unlock()
	glog.V(1).Infof("websocket client %s connected", conn.Request().RemoteAddr)

	doneCh := make(chan struct{})
	go c.writeLoop(doneCh)
	h.readLoop(c)

	h.lock.Lock()
	delete(h.clients, c)
	h.lock.Unlock()
	close(doneCh)
	glog.V(1).Infof("websocket client %s disconnected", conn.Request().RemoteAddr)
}

func (c *client) writeLoop(doneCh <-chan struct{}) {
	for {
		select {
		case <-doneCh:
			return
		case data := <-c.sendCh:
			if err := websocket.Message.Send(c.conn, data); err != nil {
				glog.V(2).Infof("websocket send: %v", err)
				c.conn.Close()
				return
			}
		}
	}
}

func (h *Hub) readLoop(c *client) {
	for {
		var pkt []byte
		if err := websocket.Message.Receive(c.conn, &pkt); err != nil {
			return
		}
		msg, err := msgs.DecodeMessage(pkt)
		if err != nil {
			glog.Warningf("websocket message: %v", err)
			continue
		}
		h.inject(msg)
	}
}

func (h *Hub) inject(msg msgs.SerializableMessage) {
	h.lock.RLock()
	central, peripheral := h.central, h.peripheral
	h.lock.RUnlock()
	switch m := msg.(type) {
	case *msgs.Command:
		cmd, err := m.CentralCommand()
		if err == nil && central != nil {
			err = central.SendCommand(uint8(m.Source), cmd)
		}
		if err != nil {
			glog.Warningf("websocket command: %v", err)
		}
	case *msgs.Event:
		ev, err := m.PeripheralEvent()
		if err == nil && peripheral != nil {
			err = peripheral.ReportEvent(ev)
		}
		if err != nil {
			glog.Warningf("websocket event: %v", err)
		}
	default:
		glog.V(2).Infof("websocket: ignored %T", msg)
	}
}
