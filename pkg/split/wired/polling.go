package wired

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/split.go/pkg/framework"
	"github.com/robotalks/split.go/pkg/uart"
)

const pollTxChunk = 32

type pollingLink struct {
	*linkParams
	dev    uart.PollDevice
	timer  *framework.Timer
	txWork *framework.Work

	overruns int
}

func newPollingLink(p *linkParams, dev uart.PollDevice) *pollingLink {
	l := &pollingLink{linkParams: p, dev: dev}
	l.timer = framework.NewTimer(l.pollIn)
	l.txWork = p.queue.NewWork(l.pollOut)
	return l
}

func (l *pollingLink) BeginTx() {
	l.txWork.Submit()
}

func (l *pollingLink) BeginRx() error {
	l.timer.Start(l.cfg.PollingRxPeriod)
	return nil
}

func (l *pollingLink) StopRx() error {
	l.timer.Stop()
	return nil
}

func (l *pollingLink) pollOut(context.Context) {
	max := pollTxChunk
	if c := l.tx.Capacity(); c < max {
		max = c
	}
	for {
		buf := l.tx.GetClaim(max)
		if len(buf) == 0 {
			return
		}
		if glog.V(4) {
			glog.Infof("TX bytes % x", buf)
		}
		for _, b := range buf {
			l.dev.PollOut(b)
		}
		l.tx.GetFinish(len(buf))
	}
}

func (l *pollingLink) pollIn() {
	l.countOverruns()
	buf := l.rx.PutClaim(l.rx.Space())
	if len(buf) == 0 {
		glog.Warning("no room available for reading in from the serial port")
		return
	}
	read := 0
	for read < len(buf) {
		b, ok := l.dev.PollIn()
		if !ok {
			break
		}
		buf[read] = b
		read++
	}
	l.rx.PutFinish(read)
	if read > 0 {
		l.onRx()
	}
}

// countOverruns reports bytes the device dropped while rx was not drained
// fast enough.
func (l *pollingLink) countOverruns() {
	c, ok := l.dev.(uart.OverrunCounter)
	if !ok {
		return
	}
	n := c.Overruns()
	if n > l.overruns {
		l.rxOverflow(n - l.overruns)
	}
	l.overruns = n
}
