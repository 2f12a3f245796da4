package wired

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/split.go/pkg/framework"
	"github.com/robotalks/split.go/pkg/uart"
)

const asyncRestartDelay = time.Millisecond

type asyncLink struct {
	*linkParams
	dev uart.AsyncDevice

	rxBufs [2][]byte

	// bit n set while rxBufs[n] is owned by the device.
	rxOwned   atomic.Uint32
	rxWanted  atomic.Bool
	txBusy    atomic.Bool
	restartRx *framework.DelayableWork
}

func newAsyncLink(p *linkParams, dev uart.AsyncDevice) (*asyncLink, error) {
	bufSize := p.rx.Capacity() / 2
	if bufSize < 1 {
		bufSize = 1
	}
	l := &asyncLink{linkParams: p, dev: dev}
	l.rxBufs[0] = make([]byte, bufSize)
	l.rxBufs[1] = make([]byte, bufSize)
	l.restartRx = p.queue.NewDelayableWork(func(context.Context) {
		if l.rxWanted.Load() {
			l.startRx()
		}
	})
	if err := dev.SetCallback(l.handleEvent); err != nil {
		return nil, fmt.Errorf("set async UART callback: %w", err)
	}
	return l, nil
}

func (l *asyncLink) BeginTx() {
	if l.txBusy.CompareAndSwap(false, true) {
		l.startTx()
	}
}

func (l *asyncLink) BeginRx() error {
	l.rxWanted.Store(true)
	return l.startRx()
}

func (l *asyncLink) StopRx() error {
	l.rxWanted.Store(false)
	l.restartRx.Cancel()
	if err := l.dev.RxDisable(); err != nil && err != uart.ErrNotActive {
		return err
	}
	return nil
}

// startTx submits the whole contiguous queued region. The caller holds txBusy.
func (l *asyncLink) startTx() {
	for {
		buf := l.tx.GetClaim(l.tx.Size())
		if len(buf) > 0 {
			l.setDir(true)
			glog.V(4).Infof("sending %d", len(buf))
			err := l.dev.Tx(buf, uart.Forever)
			if err == nil {
				return
			}
			glog.V(2).Infof("no TX: %v", err)
			l.tx.GetFinish(0)
		}
		l.setDir(false)
		l.txBusy.Store(false)
		// a producer may have queued bytes after the empty claim
		if len(buf) > 0 || l.tx.IsEmpty() || !l.txBusy.CompareAndSwap(false, true) {
			return
		}
	}
}

func (l *asyncLink) startRx() error {
	l.rxOwned.Store(1)
	if err := l.dev.RxEnable(l.rxBufs[0], l.cfg.AsyncRxTimeout); err != nil {
		glog.Errorf("failed to enable RX: %v", err)
		return err
	}
	return nil
}

func (l *asyncLink) claimRxBuf() int {
	for n := range l.rxBufs {
		bit := uint32(1) << n
		for {
			owned := l.rxOwned.Load()
			if owned&bit != 0 {
				break
			}
			if l.rxOwned.CompareAndSwap(owned, owned|bit) {
				return n
			}
		}
	}
	return -1
}

func (l *asyncLink) releaseRxBuf(buf []byte) {
	if len(buf) == 0 {
		return
	}
	for n, b := range l.rxBufs {
		if &b[0] != &buf[0] {
			continue
		}
		bit := uint32(1) << n
		for {
			owned := l.rxOwned.Load()
			if l.rxOwned.CompareAndSwap(owned, owned&^bit) {
				return
			}
		}
	}
}

func (l *asyncLink) handleEvent(ev uart.Event) {
	switch ev.Type {
	case uart.EventTxAborted:
		glog.Warningf("TX aborted: %v", ev.Err)
		l.tx.GetFinish(ev.Len)
		l.startTx()
	case uart.EventTxDone:
		glog.V(4).Infof("TX done %d", ev.Len)
		l.tx.GetFinish(ev.Len)
		l.startTx()
	case uart.EventRxRdy:
		data := ev.Data()
		received := l.rx.Put(data)
		if received < len(data) {
			glog.Errorf("RX overrun, %d bytes lost", len(data)-received)
			l.rxOverflow(len(data) - received)
		}
		if received > 0 {
			l.onRx()
		}
	case uart.EventRxBufReleased:
		l.releaseRxBuf(ev.Buf)
	case uart.EventRxBufRequest:
		if n := l.claimRxBuf(); n >= 0 {
			l.dev.RxBufRsp(l.rxBufs[n])
		} else {
			glog.Warning("no RX buffers available")
		}
	case uart.EventRxStopped:
		// always followed by RxDisabled
	case uart.EventRxDisabled:
		if l.rxWanted.Load() {
			l.restartRx.Schedule(asyncRestartDelay)
		}
	}
}
