package wired

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/split.go/pkg/uart"
)

type interruptLink struct {
	*linkParams
	dev uart.FIFODevice
}

func newInterruptLink(p *linkParams, dev uart.FIFODevice) (*interruptLink, error) {
	l := &interruptLink{linkParams: p, dev: dev}
	if err := dev.SetIRQCallback(l.serviceIRQ); err != nil {
		return nil, fmt.Errorf("set UART callback: %w", err)
	}
	return l, nil
}

func (l *interruptLink) BeginTx() {
	l.dev.EnableTxIRQ()
}

func (l *interruptLink) BeginRx() error {
	l.dev.EnableRxIRQ()
	return nil
}

func (l *interruptLink) StopRx() error {
	l.dev.DisableRxIRQ()
	return nil
}

func (l *interruptLink) serviceIRQ() {
	for l.dev.IRQUpdate() && l.dev.IRQPending() {
		if l.dev.RxReady() {
			l.fifoRead()
			l.onRx()
		}
		if l.dev.TxComplete() && l.tx.IsEmpty() {
			l.dev.DisableTxIRQ()
			l.setDir(false)
		}
		if l.dev.TxReady() {
			l.setDir(true)
			l.fifoFill()
		}
	}
}

// fifoRead drains the hardware FIFO into rx. When rx is full one byte is
// read and discarded so the interrupt can clear.
func (l *interruptLink) fifoRead() {
	for {
		buf := l.rx.PutClaim(l.rx.Capacity())
		if len(buf) == 0 {
			var dummy [1]byte
			if n := l.dev.FIFORead(dummy[:]); n > 0 {
				glog.Warning("dropping incoming byte, insufficient room in the RX buffer")
				l.rxOverflow(n)
			}
			return
		}
		n := l.dev.FIFORead(buf)
		l.rx.PutFinish(n)
		if n == 0 || n != len(buf) {
			return
		}
	}
}

func (l *interruptLink) fifoFill() {
	for !l.tx.IsEmpty() {
		buf := l.tx.GetClaim(l.tx.Capacity())
		if len(buf) == 0 {
			return
		}
		sent := l.dev.FIFOFill(buf)
		l.tx.GetFinish(sent)
		if sent <= 0 {
			return
		}
	}
}
