package uart

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func readPolled(t *testing.T, p *Port, n int) []byte {
	var out []byte
	require.Eventually(t, func() bool {
		for {
			b, ok := p.PollIn()
			if !ok {
				break
			}
			out = append(out, b)
		}
		return len(out) >= n
	}, time.Second, time.Millisecond)
	return out
}

func TestPollInOut(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()
	require.True(t, a.Ready())

	_, ok := b.PollIn()
	require.False(t, ok)
	for _, c := range []byte("hello") {
		a.PollOut(c)
	}
	require.Equal(t, []byte("hello"), readPolled(t, b, 5))
}

func TestSuspendDropsInput(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	require.NoError(t, b.Suspend())
	a.PollOut(1)
	require.Eventually(t, a.TxComplete, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	_, ok := b.PollIn()
	require.False(t, ok)

	require.NoError(t, b.Resume())
	a.PollOut(2)
	require.Equal(t, []byte{2}, readPolled(t, b, 1))
}

func TestOverrun(t *testing.T) {
	a, b := Pipe(WithFIFOSize(4, 64))
	defer a.Close()
	defer b.Close()
	a.FIFOFill([]byte{1, 2, 3, 4, 5, 6})
	require.Eventually(t, func() bool { return b.Overruns() == 2 }, time.Second, time.Millisecond)
	buf := make([]byte, 8)
	require.Equal(t, 4, b.FIFORead(buf))
	require.Equal(t, []byte{1, 2, 3, 4}, buf[:4])
}

func TestIRQ(t *testing.T) {
	a, b := Pipe(WithFIFOSize(DefaultRxFIFOSize, 4))
	defer a.Close()
	defer b.Close()

	var lock sync.Mutex
	var received []byte
	require.NoError(t, b.SetIRQCallback(func() {
		for b.IRQUpdate() && b.IRQPending() {
			if b.RxReady() {
				buf := make([]byte, 16)
				n := b.FIFORead(buf)
				lock.Lock()
				received = append(received, buf[:n]...)
				lock.Unlock()
			}
		}
	}))
	b.EnableRxIRQ()

	data := []byte("interrupt driven")
	pending := data
	require.NoError(t, a.SetIRQCallback(func() {
		for a.IRQUpdate() && a.IRQPending() {
			if a.TxComplete() && len(pending) == 0 {
				a.DisableTxIRQ()
			}
			if a.TxReady() {
				n := a.FIFOFill(pending)
				pending = pending[n:]
			}
		}
	}))
	a.EnableTxIRQ()

	require.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return string(received) == string(data)
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !a.IRQPending() }, time.Second, time.Millisecond)
}

func TestAsync(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	bufs := [][]byte{make([]byte, 4), make([]byte, 4)}
	next := 1
	eventCh := make(chan Event, 64)
	require.NoError(t, b.SetCallback(func(ev Event) {
		switch ev.Type {
		case EventRxBufRequest:
			b.RxBufRsp(bufs[next])
			next = 1 - next
		case EventRxRdy:
			ev.Buf = append([]byte(nil), ev.Buf...)
		}
		eventCh <- ev
	}))
	require.NoError(t, b.RxEnable(bufs[0], time.Millisecond))
	require.ErrorIs(t, b.RxEnable(bufs[1], time.Millisecond), ErrBusy)

	txDoneCh := make(chan Event, 1)
	require.NoError(t, a.SetCallback(func(ev Event) { txDoneCh <- ev }))
	data := []byte("0123456789")
	require.NoError(t, a.Tx(data, time.Second))
	ev := <-txDoneCh
	require.Equal(t, EventTxDone, ev.Type)
	require.Equal(t, len(data), ev.Len)

	var received []byte
	var released int
	for len(received) < len(data) || released < 2 {
		select {
		case ev := <-eventCh:
			switch ev.Type {
			case EventRxRdy:
				received = append(received, ev.Data()...)
			case EventRxBufReleased:
				released++
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout, received %q", received)
		}
	}
	require.Equal(t, data, received)

	require.NoError(t, b.RxDisable())
	var disabled bool
	for !disabled {
		select {
		case ev := <-eventCh:
			disabled = ev.Type == EventRxDisabled
		case <-time.After(time.Second):
			t.Fatal("no rx-disabled event")
		}
	}
	require.ErrorIs(t, b.RxDisable(), ErrNotActive)
}
