package wired

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/split.go/pkg/framework"
	"github.com/robotalks/split.go/pkg/split/transport"
	"github.com/robotalks/split.go/pkg/uart"
)

// CommandQueueSize is the number of received commands waiting for dispatch.
const CommandQueueSize = 3

// Peripheral is the wired transport of the Peripheral half. It reports
// events to the Central and dispatches the commands it receives.
type Peripheral struct {
	endpoint

	handler     transport.CentralCommandHandler
	commands    chan transport.CentralCommand
	publishWork *framework.Work
}

var _ transport.PeripheralTransport = &Peripheral{}
var _ transport.StatusReporter = &Peripheral{}

// NewPeripheral creates a Peripheral on dev. The device is left suspended
// until SetEnabled(true).
func NewPeripheral(cfg Config, dev uart.Device, handler transport.CentralCommandHandler, opts ...Option) (*Peripheral, error) {
	p := &Peripheral{
		handler:  handler,
		commands: make(chan transport.CentralCommand, CommandQueueSize),
	}
	err := p.init(RolePeripheral, cfg, dev, endpointParams{
		rxSize:         cfg.CmdBufferSize(),
		txSize:         cfg.EventBufferSize(),
		maxPayloadSize: transport.MaxCommandPayloadSize(),
		onRx:           p.processRx,
	}, opts)
	if err != nil {
		return nil, err
	}
	p.publishWork = p.queue.NewWork(p.publishCommands)
	return p, nil
}

// ReportEvent implements transport.PeripheralTransport.
//
// In half-duplex mode the event only waits in the buffer until the Central
// polls for it.
func (p *Peripheral) ReportEvent(ev transport.PeripheralEvent) error {
	payload := transport.EventPayload{Source: transport.PeripheralID, Event: ev}
	size, err := payload.Size()
	if err != nil {
		glog.Warningf("failed to determine payload data size: %v", err)
		return err
	}
	var buf [MaxPayloadSize]byte
	data, err := payload.Event.AppendBinary(append(buf[:0], payload.Source))
	if err != nil {
		return err
	}

	p.txLock.Lock()
	defer p.txLock.Unlock()
	if err := p.enqueue(data[:size]); err != nil {
		glog.Warningf("no room to send %v to the central: %v", ev.Type, err)
		return err
	}
	if !p.cfg.HalfDuplex {
		p.link.BeginTx()
	}
	return nil
}

// SetEnabled implements transport.PeripheralTransport. Disabling requires a
// detect pin and fails with transport.ErrNotSupported otherwise.
func (p *Peripheral) SetEnabled(enabled bool) error {
	return p.setEnabled(enabled, nil, nil)
}

// Close disables the transport and stops its private work queue.
func (p *Peripheral) Close() error {
	p.close(nil)
	return nil
}

// processRx runs in the receiving context. Polls are answered inline,
// everything else is deferred to the work queue.
func (p *Peripheral) processRx() {
	for {
		data := p.nextItem()
		if data == nil {
			return
		}
		var payload transport.CommandPayload
		if err := payload.UnmarshalBinary(data); err != nil {
			p.decodeFailed(err)
			continue
		}
		framesReceived.WithLabelValues(p.role).Inc()
		if payload.Command.Type == transport.CommandPollEvents {
			p.link.BeginTx()
			continue
		}
		select {
		case p.commands <- payload.Command:
			p.publishWork.Submit()
		default:
			glog.Warningf("command queue full, dropping %v", payload.Command)
			frameErrors.WithLabelValues(p.role, "queue_full").Inc()
		}
	}
}

func (p *Peripheral) publishCommands(ctx context.Context) {
	for {
		select {
		case cmd := <-p.commands:
			glog.V(3).Infof("command: %v", cmd)
			if p.handler != nil {
				p.handler.HandleCentralCommand(ctx, p, cmd)
			}
		default:
			return
		}
	}
}
