package uart

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Default FIFO sizes of a Port.
const (
	DefaultRxFIFOSize = 4096
	DefaultTxFIFOSize = 64
)

// Port emulates a UART controller on top of a byte stream.
//
// A reader goroutine moves incoming bytes into the RX FIFO, dropping them on
// overrun like real hardware. A writer goroutine drains the TX FIFO and
// asynchronous transfers. A single interrupt goroutine runs the IRQ callback
// and delivers asynchronous events, so callbacks never run concurrently.
type Port struct {
	ReadWriter io.ReadWriteCloser

	name       string
	rxFIFOSize int
	txFIFOSize int

	lock   sync.Mutex
	cond   *sync.Cond
	rxFIFO []byte
	txFIFO []byte
	txBusy bool

	suspended bool
	closed    bool
	overruns  int

	irqCallback IRQCallback
	rxIRQ       bool
	txIRQ       bool

	asyncCallback AsyncCallback
	asyncTx       []byte
	rxActive      []byte
	rxNext        []byte
	rxOffset      int
	events        []Event

	kickCh  chan struct{}
	closeCh chan struct{}
}

// PortOption configures a Port.
type PortOption func(*Port)

// WithFIFOSize overrides the hardware FIFO sizes.
func WithFIFOSize(rx, tx int) PortOption {
	return func(p *Port) {
		p.rxFIFOSize, p.txFIFOSize = rx, tx
	}
}

// NewPort creates a Port on rw and starts its goroutines.
func NewPort(name string, rw io.ReadWriteCloser, opts ...PortOption) *Port {
	p := &Port{
		ReadWriter: rw,
		name:       name,
		rxFIFOSize: DefaultRxFIFOSize,
		txFIFOSize: DefaultTxFIFOSize,
		kickCh:     make(chan struct{}, 1),
		closeCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cond = sync.NewCond(&p.lock)
	go p.readLoop()
	go p.writeLoop()
	go p.irqLoop()
	return p
}

// Pipe creates two Ports connected back to back.
func Pipe(opts ...PortOption) (*Port, *Port) {
	a, b := net.Pipe()
	return NewPort("pipe0", a, opts...), NewPort("pipe1", b, opts...)
}

// Name implements Device.
func (p *Port) Name() string {
	return p.name
}

// Ready implements Device.
func (p *Port) Ready() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return !p.closed
}

// Resume implements Device.
func (p *Port) Resume() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.suspended {
		glog.V(3).Infof("UART[%s] resumed", p.name)
	}
	p.suspended = false
	p.kickLocked()
	return nil
}

// Suspend implements Device. Bytes arriving while suspended are lost.
func (p *Port) Suspend() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return ErrClosed
	}
	if !p.suspended {
		glog.V(3).Infof("UART[%s] suspended", p.name)
	}
	p.suspended = true
	p.rxFIFO = p.rxFIFO[:0]
	return nil
}

// Overruns returns the number of bytes dropped on RX FIFO overrun.
func (p *Port) Overruns() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.overruns
}

// Close closes the underlying stream and stops all goroutines.
func (p *Port) Close() error {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return nil
	}
	p.closed = true
	close(p.closeCh)
	p.cond.Broadcast()
	p.lock.Unlock()
	return p.ReadWriter.Close()
}

// PollIn implements PollDevice.
func (p *Port) PollIn() (byte, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if len(p.rxFIFO) == 0 {
		return 0, false
	}
	b := p.rxFIFO[0]
	p.rxFIFO = p.rxFIFO[1:]
	return b, true
}

// PollOut implements PollDevice.
func (p *Port) PollOut(b byte) {
	p.lock.Lock()
	defer p.lock.Unlock()
	for !p.closed && len(p.txFIFO) >= p.txFIFOSize {
		p.cond.Wait()
	}
	if p.closed || p.suspended {
		return
	}
	p.txFIFO = append(p.txFIFO, b)
	p.cond.Broadcast()
}

// SetIRQCallback implements FIFODevice.
func (p *Port) SetIRQCallback(cb IRQCallback) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.irqCallback = cb
	return nil
}

// IRQUpdate implements FIFODevice.
func (p *Port) IRQUpdate() bool {
	return true
}

// IRQPending implements FIFODevice.
func (p *Port) IRQPending() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.irqPendingLocked()
}

// RxReady implements FIFODevice.
func (p *Port) RxReady() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.rxFIFO) > 0
}

// TxReady implements FIFODevice. It is true when the TX interrupt is
// enabled and the transmitter is idle.
func (p *Port) TxReady() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.txIRQ && p.txCompleteLocked()
}

// TxComplete implements FIFODevice.
func (p *Port) TxComplete() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.txCompleteLocked()
}

// FIFORead implements FIFODevice.
func (p *Port) FIFORead(buf []byte) int {
	p.lock.Lock()
	defer p.lock.Unlock()
	n := copy(buf, p.rxFIFO)
	p.rxFIFO = p.rxFIFO[n:]
	return n
}

// FIFOFill implements FIFODevice.
func (p *Port) FIFOFill(data []byte) int {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed || p.suspended {
		return 0
	}
	n := p.txFIFOSize - len(p.txFIFO)
	if n > len(data) {
		n = len(data)
	}
	if n <= 0 {
		return 0
	}
	p.txFIFO = append(p.txFIFO, data[:n]...)
	p.cond.Broadcast()
	return n
}

// EnableRxIRQ implements FIFODevice.
func (p *Port) EnableRxIRQ() {
	p.setIRQ(&p.rxIRQ, true)
}

// DisableRxIRQ implements FIFODevice.
func (p *Port) DisableRxIRQ() {
	p.setIRQ(&p.rxIRQ, false)
}

// EnableTxIRQ implements FIFODevice.
func (p *Port) EnableTxIRQ() {
	p.setIRQ(&p.txIRQ, true)
}

// DisableTxIRQ implements FIFODevice.
func (p *Port) DisableTxIRQ() {
	p.setIRQ(&p.txIRQ, false)
}

// SetCallback implements AsyncDevice.
func (p *Port) SetCallback(cb AsyncCallback) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.asyncCallback = cb
	return nil
}

// Tx implements AsyncDevice. data must stay untouched until TxDone.
// The timeout is accepted for API parity; the stream has no flow control.
func (p *Port) Tx(data []byte, timeout time.Duration) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	switch {
	case p.closed:
		return ErrClosed
	case p.suspended:
		return ErrSuspended
	case p.asyncTx != nil:
		return ErrBusy
	}
	p.asyncTx = data
	p.cond.Broadcast()
	return nil
}

// RxEnable implements AsyncDevice. Received data is reported as soon as it
// is copied into buf, so the timeout is not used.
func (p *Port) RxEnable(buf []byte, timeout time.Duration) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	switch {
	case p.closed:
		return ErrClosed
	case p.suspended:
		return ErrSuspended
	case p.rxActive != nil:
		return ErrBusy
	}
	p.rxActive, p.rxNext, p.rxOffset = buf, nil, 0
	p.postLocked(Event{Type: EventRxBufRequest})
	return nil
}

// RxBufRsp implements AsyncDevice.
func (p *Port) RxBufRsp(buf []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	switch {
	case p.rxActive == nil:
		return ErrNotActive
	case p.rxNext != nil:
		return ErrBusy
	}
	p.rxNext = buf
	return nil
}

// RxDisable implements AsyncDevice.
func (p *Port) RxDisable() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.rxActive == nil {
		return ErrNotActive
	}
	p.releaseRxLocked()
	return nil
}

func (p *Port) setIRQ(flag *bool, enabled bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	*flag = enabled
	if enabled {
		p.kickLocked()
	}
}

func (p *Port) txCompleteLocked() bool {
	return len(p.txFIFO) == 0 && !p.txBusy
}

func (p *Port) irqPendingLocked() bool {
	if p.suspended || p.closed {
		return false
	}
	return (p.rxIRQ && len(p.rxFIFO) > 0) || (p.txIRQ && p.txCompleteLocked())
}

func (p *Port) kickLocked() {
	select {
	case p.kickCh <- struct{}{}:
	default:
	}
}

func (p *Port) postLocked(ev Event) {
	p.events = append(p.events, ev)
	p.kickLocked()
}

func (p *Port) releaseRxLocked() {
	if p.rxActive != nil {
		p.events = append(p.events, Event{Type: EventRxBufReleased, Buf: p.rxActive})
	}
	if p.rxNext != nil {
		p.events = append(p.events, Event{Type: EventRxBufReleased, Buf: p.rxNext})
	}
	p.rxActive, p.rxNext, p.rxOffset = nil, nil, 0
	p.postLocked(Event{Type: EventRxDisabled})
}

// pumpRxLocked moves received bytes into the active async buffer.
func (p *Port) pumpRxLocked() {
	for p.rxActive != nil && len(p.rxFIFO) > 0 {
		n := copy(p.rxActive[p.rxOffset:], p.rxFIFO)
		p.rxFIFO = p.rxFIFO[n:]
		p.events = append(p.events, Event{Type: EventRxRdy, Buf: p.rxActive, Offset: p.rxOffset, Len: n})
		p.rxOffset += n
		if p.rxOffset < len(p.rxActive) {
			continue
		}
		if p.rxNext == nil {
			p.releaseRxLocked()
			return
		}
		p.events = append(p.events, Event{Type: EventRxBufReleased, Buf: p.rxActive})
		p.rxActive, p.rxNext, p.rxOffset = p.rxNext, nil, 0
		p.events = append(p.events, Event{Type: EventRxBufRequest})
		// let the request be served before filling the new buffer
		return
	}
}

func (p *Port) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := p.ReadWriter.Read(buf)
		if err != nil && !os.IsTimeout(err) {
			p.lock.Lock()
			closed := p.closed
			p.lock.Unlock()
			if !closed && !errors.Is(err, io.EOF) {
				glog.Errorf("UART[%s] read error: %v", p.name, err)
			}
			return
		}
		if n == 0 {
			continue
		}
		p.lock.Lock()
		if !p.suspended {
			space := p.rxFIFOSize - len(p.rxFIFO)
			if space < n {
				p.overruns += n - space
				glog.Warningf("UART[%s] RX overrun, %d bytes lost", p.name, n-space)
				n = space
			}
			p.rxFIFO = append(p.rxFIFO, buf[:n]...)
			p.kickLocked()
		}
		p.lock.Unlock()
	}
}

func (p *Port) writeLoop() {
	for {
		p.lock.Lock()
		for !p.closed && p.asyncTx == nil && len(p.txFIFO) == 0 {
			p.cond.Wait()
		}
		if p.closed {
			p.lock.Unlock()
			return
		}
		async := p.asyncTx != nil
		var data []byte
		if async {
			data = p.asyncTx
		} else {
			data = append([]byte(nil), p.txFIFO...)
			p.txFIFO = p.txFIFO[:0]
		}
		p.txBusy = true
		p.cond.Broadcast()
		p.lock.Unlock()

		if glog.V(5) {
			glog.Infof("UART[%s] TX % x", p.name, data)
		}
		n, err := p.ReadWriter.Write(data)
		if err != nil {
			glog.V(2).Infof("UART[%s] write error: %v", p.name, err)
		}

		p.lock.Lock()
		p.txBusy = false
		if async {
			p.asyncTx = nil
			ev := Event{Type: EventTxDone, Buf: data, Len: n}
			if err != nil {
				ev.Type, ev.Err = EventTxAborted, err
			}
			p.events = append(p.events, ev)
		}
		p.kickLocked()
		p.lock.Unlock()
	}
}

func (p *Port) irqLoop() {
	for {
		select {
		case <-p.closeCh:
			return
		case <-p.kickCh:
			p.dispatch()
		}
	}
}

func (p *Port) dispatch() {
	for {
		p.lock.Lock()
		p.pumpRxLocked()
		events, asyncCallback := p.events, p.asyncCallback
		p.events = nil
		irqCallback := p.irqCallback
		pending := irqCallback != nil && p.irqPendingLocked()
		p.lock.Unlock()

		if asyncCallback != nil {
			for _, ev := range events {
				asyncCallback(ev)
			}
		}
		if pending {
			irqCallback()
		} else if len(events) == 0 {
			return
		}
	}
}
