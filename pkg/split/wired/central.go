package wired

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/split.go/pkg/framework"
	"github.com/robotalks/split.go/pkg/split/transport"
	"github.com/robotalks/split.go/pkg/uart"
)

// Central is the wired transport of the Central half. It sends commands to
// the single wired peripheral and dispatches the events it reports.
type Central struct {
	endpoint

	handler     transport.PeripheralEventHandler
	arbiter     *Arbiter
	publishWork *framework.Work
}

var pollPayload = []byte{transport.PeripheralID, byte(transport.CommandPollEvents)}

var _ transport.CentralTransport = &Central{}
var _ transport.StatusReporter = &Central{}

// NewCentral creates a Central on dev. The device is left suspended until
// SetEnabled(true).
func NewCentral(cfg Config, dev uart.Device, handler transport.PeripheralEventHandler, opts ...Option) (*Central, error) {
	c := &Central{handler: handler}
	err := c.init(RoleCentral, cfg, dev, endpointParams{
		rxSize:         cfg.EventBufferSize(),
		txSize:         cfg.CmdBufferSize(),
		maxPayloadSize: transport.MaxEventPayloadSize(),
		onRx:           func() { c.publishWork.Submit() },
	}, opts)
	if err != nil {
		return nil, err
	}
	c.publishWork = c.queue.NewWork(c.publishEvents)
	if cfg.HalfDuplex {
		c.arbiter = NewArbiter(c.queue, cfg.HalfDuplexRxTimeout, cfg.HalfDuplexRxCompleteTimeout, c.pollPeripheral)
	}
	return c, nil
}

// Arbiter returns the half-duplex arbiter, nil in full-duplex mode.
func (c *Central) Arbiter() *Arbiter {
	return c.arbiter
}

// SendCommand implements transport.CentralTransport.
//
// The command is queued as a whole or not at all. In half-duplex mode it is
// transmitted right away only if the token is held, followed by a poll so
// the peripheral can answer; otherwise it waits for the next grant.
func (c *Central) SendCommand(source uint8, cmd transport.CentralCommand) error {
	if source != transport.PeripheralID {
		return fmt.Errorf("%w: %d", transport.ErrInvalidSource, source)
	}
	payload := transport.CommandPayload{Source: source, Command: cmd}
	size, err := payload.Size()
	if err != nil {
		glog.Warningf("failed to determine payload data size: %v", err)
		return err
	}
	var buf [MaxPayloadSize]byte
	data, err := payload.Command.AppendBinary(append(buf[:0], source))
	if err != nil {
		return err
	}

	c.txLock.Lock()
	defer c.txLock.Unlock()
	if err := c.enqueue(data[:size]); err != nil {
		glog.Warningf("no room to send %v to the peripheral %d: %v", cmd.Type, source, err)
		return err
	}
	c.transmit(cmd.Type != transport.CommandPollEvents)
	return nil
}

// transmit starts draining tx, in half-duplex mode only when the token is
// held, appending a poll if requested. The caller holds txLock.
func (c *Central) transmit(poll bool) {
	if c.arbiter != nil {
		if !c.arbiter.Take() {
			return
		}
		if poll {
			if err := c.enqueue(pollPayload); err != nil {
				glog.Warningf("no room to poll the peripheral: %v", err)
			}
		}
	}
	c.link.BeginTx()
}

// AvailableSourceIDs implements transport.CentralTransport.
func (c *Central) AvailableSourceIDs() []uint8 {
	return []uint8{transport.PeripheralID}
}

// SetEnabled implements transport.CentralTransport. Disabling requires a
// detect pin and fails with transport.ErrNotSupported otherwise.
func (c *Central) SetEnabled(enabled bool) error {
	return c.setEnabled(enabled, c.startArbiter, c.stopArbiter)
}

// Close disables the transport and stops its private work queue.
func (c *Central) Close() error {
	c.close(c.stopArbiter)
	return nil
}

func (c *Central) startArbiter() {
	if c.arbiter != nil {
		c.arbiter.Start()
	}
}

func (c *Central) stopArbiter() {
	if c.arbiter != nil {
		c.arbiter.Stop()
	}
}

// pollPeripheral runs on every grant. A tx ring too full for the poll is
// still flushed, the poll goes out on a later grant.
func (c *Central) pollPeripheral() {
	c.txLock.Lock()
	defer c.txLock.Unlock()
	if err := c.enqueue(pollPayload); err != nil {
		glog.Warningf("poll peripheral: %v", err)
		if c.tx.IsEmpty() {
			return
		}
	}
	c.transmit(false)
}

func (c *Central) publishEvents(ctx context.Context) {
	if c.arbiter != nil {
		c.arbiter.RxActivity()
	}
	for {
		data := c.nextItem()
		if data == nil {
			return
		}
		var payload transport.EventPayload
		if err := payload.UnmarshalBinary(data); err != nil {
			c.decodeFailed(err)
			continue
		}
		framesReceived.WithLabelValues(c.role).Inc()
		glog.V(3).Infof("event from %d: %v", payload.Source, payload.Event)
		if c.handler != nil {
			c.handler.HandlePeripheralEvent(ctx, c, payload.Source, payload.Event)
		}
	}
}
