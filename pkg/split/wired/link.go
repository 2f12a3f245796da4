package wired

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/split.go/pkg/framework"
	"github.com/robotalks/split.go/pkg/gpio"
	"github.com/robotalks/split.go/pkg/ringbuf"
	"github.com/robotalks/split.go/pkg/split/transport"
	"github.com/robotalks/split.go/pkg/uart"
)

// Link moves bytes between a UART and a pair of ring buffers.
// The link is the only producer of rx and the only consumer of tx.
type Link interface {
	// BeginTx starts draining tx onto the wire if not already doing so.
	BeginTx()
	// BeginRx arms reception into rx.
	BeginRx() error
	// StopRx disarms reception.
	StopRx() error
}

// linkParams is what every link strategy is built from.
type linkParams struct {
	cfg   *Config
	dev   uart.Device
	rx    *ringbuf.RingBuffer
	tx    *ringbuf.RingBuffer
	dir   gpio.Pin
	queue *framework.WorkQueue
	// onRx is invoked from the receiving context once new bytes are in rx.
	onRx func()
}

func (p *linkParams) setDir(transmit bool) {
	if p.dir == nil {
		return
	}
	if err := p.dir.Set(transmit); err != nil {
		glog.Errorf("set direction pin: %v", err)
	}
}

func (p *linkParams) rxOverflow(n int) {
	rxOverflowBytes.WithLabelValues(p.cfg.Mode.String()).Add(float64(n))
}

func newLink(p *linkParams) (Link, error) {
	switch p.cfg.Mode {
	case ModePolling:
		dev, ok := p.dev.(uart.PollDevice)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no polling API", transport.ErrNotSupported, p.dev.Name())
		}
		return newPollingLink(p, dev), nil
	case ModeInterrupt:
		dev, ok := p.dev.(uart.FIFODevice)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no interrupt API", transport.ErrNotSupported, p.dev.Name())
		}
		return newInterruptLink(p, dev)
	case ModeAsync:
		dev, ok := p.dev.(uart.AsyncDevice)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no async API", transport.ErrNotSupported, p.dev.Name())
		}
		return newAsyncLink(p, dev)
	}
	return nil, fmt.Errorf("%w: mode %v", transport.ErrNotSupported, p.cfg.Mode)
}
