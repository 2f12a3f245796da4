package wired

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/split.go/pkg/gpio"
	"github.com/robotalks/split.go/pkg/ringbuf"
	"github.com/robotalks/split.go/pkg/split/transport"
	"github.com/robotalks/split.go/pkg/uart"
)

var allModes = []Mode{ModePolling, ModeInterrupt, ModeAsync}

func testConfig(mode Mode, halfDuplex bool) Config {
	cfg := DefaultConfig()
	cfg.Mode = mode
	cfg.HalfDuplex = halfDuplex
	cfg.HalfDuplexRxTimeout = 5 * time.Millisecond
	cfg.HalfDuplexRxCompleteTimeout = time.Millisecond
	cfg.DetectDebounce = time.Millisecond
	return cfg
}

type receivedEvent struct {
	source uint8
	event  transport.PeripheralEvent
}

type testPair struct {
	central    *Central
	peripheral *Peripheral
	events     chan receivedEvent
	commands   chan transport.CentralCommand
}

func newTestPair(t *testing.T, cfg Config) *testPair {
	a, b := uart.Pipe()
	tp := &testPair{
		events:   make(chan receivedEvent, 16),
		commands: make(chan transport.CentralCommand, 16),
	}
	var err error
	tp.central, err = NewCentral(cfg, a, transport.HandlePeripheralEventFunc(
		func(_ context.Context, _ transport.CentralTransport, source uint8, ev transport.PeripheralEvent) {
			tp.events <- receivedEvent{source: source, event: ev}
		}))
	require.NoError(t, err)
	tp.peripheral, err = NewPeripheral(cfg, b, transport.HandleCentralCommandFunc(
		func(_ context.Context, _ transport.PeripheralTransport, cmd transport.CentralCommand) {
			tp.commands <- cmd
		}))
	require.NoError(t, err)
	t.Cleanup(func() {
		tp.central.Close()
		tp.peripheral.Close()
		a.Close()
		b.Close()
	})
	require.NoError(t, tp.central.SetEnabled(true))
	require.NoError(t, tp.peripheral.SetEnabled(true))
	return tp
}

func (tp *testPair) expectCommand(t *testing.T) transport.CentralCommand {
	select {
	case cmd := <-tp.commands:
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("command not received")
	}
	return transport.CentralCommand{}
}

func (tp *testPair) expectEvent(t *testing.T) receivedEvent {
	select {
	case ev := <-tp.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
	return receivedEvent{}
}

func sampleInvokeBehavior() transport.CentralCommand {
	return transport.InvokeBehaviorCommand(transport.InvokeBehavior{
		BehaviorDev: "kp",
		Param1:      1,
		Param2:      2,
		Position:    5,
		EventSource: 0,
		State:       1,
	})
}

// drainFrames decodes the envelopes received so far on a raw port.
func drainFrames(port *uart.Port, rb *ringbuf.RingBuffer) [][]byte {
	for {
		b, ok := port.PollIn()
		if !ok {
			break
		}
		rb.Put([]byte{b})
	}
	var frames [][]byte
	buf := make([]byte, MaxEnvelopeSize)
	for {
		payload, err := GetItem(rb, buf)
		if err != nil {
			return frames
		}
		frames = append(frames, append([]byte(nil), payload...))
	}
}

func TestCentralWireBytes(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			a, b := uart.Pipe()
			defer a.Close()
			defer b.Close()
			c, err := NewCentral(testConfig(mode, false), a, nil)
			require.NoError(t, err)
			defer c.Close()
			require.NoError(t, c.SetEnabled(true))

			require.NoError(t, c.SendCommand(0, sampleInvokeBehavior()))

			payload := []byte{
				0x00, 0x01,
				'k', 'p', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
				1, 0, 0, 0,
				2, 0, 0, 0,
				5, 0, 0, 0,
				0x00, 0x01,
			}
			expected := append([]byte("ZmKw"), byte(len(payload)))
			expected = append(expected, payload...)
			expected = binary.LittleEndian.AppendUint32(expected, crc32.ChecksumIEEE(expected))

			var wire []byte
			require.Eventually(t, func() bool {
				for {
					v, ok := b.PollIn()
					if !ok {
						break
					}
					wire = append(wire, v)
				}
				return len(wire) >= len(expected)
			}, 2*time.Second, time.Millisecond)
			require.Equal(t, expected, wire)
		})
	}
}

func TestCommandDelivery(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			tp := newTestPair(t, testConfig(mode, false))
			cmd := sampleInvokeBehavior()
			require.NoError(t, tp.central.SendCommand(0, cmd))
			require.Equal(t, cmd, tp.expectCommand(t))

			require.NoError(t, tp.central.SendCommand(0, transport.SetPhysicalLayout(2)))
			require.NoError(t, tp.central.SendCommand(0, transport.SetHIDIndicators(0x05)))
			require.Equal(t, transport.SetPhysicalLayout(2), tp.expectCommand(t))
			require.Equal(t, transport.SetHIDIndicators(0x05), tp.expectCommand(t))
		})
	}
}

func TestEventDelivery(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			tp := newTestPair(t, testConfig(mode, false))
			require.NoError(t, tp.peripheral.ReportEvent(transport.KeyPosition(42, true)))
			ev := tp.expectEvent(t)
			require.Equal(t, uint8(0), ev.source)
			require.Equal(t, transport.EventKeyPosition, ev.event.Type)
			require.Equal(t, uint8(42), ev.event.KeyPosition.Position)
			require.True(t, ev.event.KeyPosition.Pressed)

			events := []transport.PeripheralEvent{
				transport.Sensor(transport.SensorEvent{Channel: 2, Val1: -3, Val2: 4, SensorIndex: 1}),
				transport.Input(transport.InputEvent{Reg: 1, Type: 2, Code: 3, Value: -100, Sync: true}),
				transport.Battery(87),
			}
			for _, ev := range events {
				require.NoError(t, tp.peripheral.ReportEvent(ev))
			}
			for _, ev := range events {
				require.Equal(t, ev, tp.expectEvent(t).event)
			}
		})
	}
}

func TestPollNotDispatched(t *testing.T) {
	tp := newTestPair(t, testConfig(ModeInterrupt, false))
	require.NoError(t, tp.central.SendCommand(0, transport.PollEvents()))
	require.NoError(t, tp.central.SendCommand(0, transport.SetHIDIndicators(1)))
	require.Equal(t, transport.SetHIDIndicators(1), tp.expectCommand(t))
	select {
	case cmd := <-tp.commands:
		t.Fatalf("unexpected command %v", cmd)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSendCommandErrors(t *testing.T) {
	a, b := uart.Pipe()
	defer a.Close()
	defer b.Close()
	cfg := testConfig(ModeInterrupt, true)
	cfg.CmdBufferItems = 1
	c, err := NewCentral(cfg, a, nil)
	require.NoError(t, err)
	defer c.Close()

	err = c.SendCommand(1, transport.PollEvents())
	require.ErrorIs(t, err, transport.ErrInvalidSource)
	require.Equal(t, syscall.EINVAL, transport.Errno(err))

	err = c.SendCommand(0, transport.CentralCommand{Type: 42})
	require.ErrorIs(t, err, transport.ErrNotSupported)
	require.Equal(t, 0, c.TxPending())

	// the arbiter is idle until enabled so everything stays queued
	require.NoError(t, c.SendCommand(0, transport.SetPhysicalLayout(1)))
	require.Equal(t, EnvelopeSize(3), c.TxPending())
	before := make([]byte, c.tx.Capacity())
	n := c.tx.Peek(before)

	err = c.SendCommand(0, sampleInvokeBehavior())
	require.ErrorIs(t, err, transport.ErrNoSpace)
	require.Equal(t, syscall.ENOSPC, transport.Errno(err))
	after := make([]byte, c.tx.Capacity())
	require.Equal(t, n, c.tx.Peek(after))
	require.Equal(t, before[:n], after[:n])

	require.Equal(t, []uint8{0}, c.AvailableSourceIDs())
}

func TestReportEventErrors(t *testing.T) {
	a, b := uart.Pipe()
	defer a.Close()
	defer b.Close()
	cfg := testConfig(ModePolling, true)
	cfg.EventBufferItems = 2
	p, err := NewPeripheral(cfg, b, nil)
	require.NoError(t, err)
	defer p.Close()

	require.ErrorIs(t, p.ReportEvent(transport.PeripheralEvent{Type: 9}), transport.ErrNotSupported)
	require.NoError(t, p.ReportEvent(transport.KeyPosition(1, true)))
	require.NoError(t, p.ReportEvent(transport.KeyPosition(1, false)))
	require.ErrorIs(t, p.ReportEvent(transport.Sensor(transport.SensorEvent{})), transport.ErrNoSpace)
	require.Equal(t, 2*EnvelopeSize(4), p.TxPending())
}

func TestNoDevice(t *testing.T) {
	a, b := uart.Pipe()
	b.Close()
	a.Close()
	_, err := NewCentral(DefaultConfig(), a, nil)
	require.ErrorIs(t, err, transport.ErrNoDevice)
	_, err = NewPeripheral(DefaultConfig(), b, nil)
	require.ErrorIs(t, err, transport.ErrNoDevice)
}

func TestHalfDuplexPolling(t *testing.T) {
	a, b := uart.Pipe()
	defer a.Close()
	defer b.Close()
	c, err := NewCentral(testConfig(ModeInterrupt, true), a, nil)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetEnabled(true))

	// nobody answers, polls keep coming
	rb := ringbuf.New(1024)
	var frames [][]byte
	require.Eventually(t, func() bool {
		frames = append(frames, drainFrames(b, rb)...)
		return len(frames) >= 5
	}, 2*time.Second, time.Millisecond)
	for _, f := range frames {
		require.Equal(t, []byte{0x00, byte(transport.CommandPollEvents)}, f)
	}
	require.GreaterOrEqual(t, c.Arbiter().Timeouts(), uint64(4))

	// a command waits for the token and is followed by a poll
	require.NoError(t, c.SendCommand(0, transport.SetHIDIndicators(3)))
	var types []byte
	idx := -1
	require.Eventually(t, func() bool {
		for _, f := range drainFrames(b, rb) {
			types = append(types, f[1])
		}
		idx = bytes.IndexByte(types, byte(transport.CommandSetHIDIndicators))
		return idx >= 0 && idx < len(types)-1
	}, 2*time.Second, time.Millisecond)
	require.Equal(t, byte(transport.CommandPollEvents), types[idx+1])
}

func TestHalfDuplexEvents(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			tp := newTestPair(t, testConfig(mode, true))
			require.NoError(t, tp.peripheral.ReportEvent(transport.KeyPosition(42, true)))
			require.NoError(t, tp.peripheral.ReportEvent(transport.Battery(50)))
			ev := tp.expectEvent(t)
			require.Equal(t, transport.KeyPosition(42, true), ev.event)
			require.Equal(t, transport.Battery(50), tp.expectEvent(t).event)

			require.NoError(t, tp.central.SendCommand(0, transport.SetPhysicalLayout(4)))
			require.Equal(t, transport.SetPhysicalLayout(4), tp.expectCommand(t))
			require.GreaterOrEqual(t, tp.central.Arbiter().Grants(), uint64(1))
		})
	}
}

func TestDetectPin(t *testing.T) {
	a, b := uart.Pipe()
	defer a.Close()
	defer b.Close()
	detect := gpio.NewSimPin(false)
	dir := gpio.NewSimPin(false)
	c, err := NewCentral(testConfig(ModeInterrupt, true), a, nil, WithDetectPin(detect), WithDirectionPin(dir))
	require.NoError(t, err)
	defer c.Close()

	st := c.Status()
	require.False(t, st.Available)
	require.False(t, st.Enabled)
	require.Equal(t, transport.Disconnected, st.Connections)

	statusCh := make(chan transport.Status, 4)
	require.NoError(t, c.SetStatusCallback(func(st transport.Status) { statusCh <- st }))
	detect.Set(true)
	select {
	case st = <-statusCh:
	case <-time.After(time.Second):
		t.Fatal("status not notified")
	}
	require.True(t, st.Available)
	require.Equal(t, transport.AllConnected, st.Connections)

	require.NoError(t, c.SetEnabled(true))
	require.True(t, c.Status().Enabled)
	// polls drive the direction pin
	require.Eventually(t, func() bool { return dir.Changes() >= 2 }, time.Second, time.Millisecond)

	require.NoError(t, c.SetEnabled(false))
	require.False(t, c.Status().Enabled)
	require.Equal(t, ArbiterIdle, c.Arbiter().State())
}

func TestDisableWithoutDetectPin(t *testing.T) {
	tp := newTestPair(t, testConfig(ModePolling, false))
	require.ErrorIs(t, tp.central.SetEnabled(false), transport.ErrNotSupported)
	require.ErrorIs(t, tp.peripheral.SetEnabled(false), transport.ErrNotSupported)
	require.ErrorIs(t, tp.central.SetStatusCallback(nil), transport.ErrNotSupported)
	require.True(t, tp.central.Status().Available)
	require.True(t, tp.peripheral.Enabled())
}

func TestCorruptionDropped(t *testing.T) {
	a, b := uart.Pipe()
	defer a.Close()
	defer b.Close()
	commands := make(chan transport.CentralCommand, 4)
	p, err := NewPeripheral(testConfig(ModeInterrupt, false), b, transport.HandleCentralCommandFunc(
		func(_ context.Context, _ transport.PeripheralTransport, cmd transport.CentralCommand) {
			commands <- cmd
		}))
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.SetEnabled(true))

	rb := ringbuf.New(256)
	require.NoError(t, PutItem(rb, []byte{0, byte(transport.CommandSetPhysicalLayout), 7}))
	good := make([]byte, rb.Size())
	rb.Get(good)
	bad := append([]byte(nil), good...)
	bad[PrefixSize+2] ^= 0x10

	stream := append([]byte{0xde, 0xad}, bad...)
	stream = append(stream, good...)
	go a.ReadWriter.Write(stream)

	select {
	case cmd := <-commands:
		require.Equal(t, transport.SetPhysicalLayout(7), cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("valid command lost")
	}
	select {
	case cmd := <-commands:
		t.Fatalf("corrupted command dispatched: %v", cmd)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHalfDuplexFullCommandRing(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			a, b := uart.Pipe()
			defer a.Close()
			defer b.Close()
			cfg := testConfig(mode, true)
			cfg.HalfDuplexRxTimeout = 50 * time.Millisecond
			c, err := NewCentral(cfg, a, nil)
			require.NoError(t, err)
			defer c.Close()
			require.NoError(t, c.SetEnabled(true))

			// the token is with the silent peer, commands pile up
			for i := 0; i < cfg.CmdBufferItems; i++ {
				require.NoError(t, c.SendCommand(0, sampleInvokeBehavior()))
			}
			require.Equal(t, cfg.CmdBufferSize(), c.TxPending())
			require.ErrorIs(t, c.SendCommand(0, sampleInvokeBehavior()), transport.ErrNoSpace)

			rb := ringbuf.New(1024)
			var types []byte
			require.Eventually(t, func() bool {
				for _, f := range drainFrames(b, rb) {
					types = append(types, f[1])
				}
				return len(types) > cfg.CmdBufferItems
			}, 2*time.Second, time.Millisecond)
			for i := 0; i < cfg.CmdBufferItems; i++ {
				require.Equal(t, byte(transport.CommandInvokeBehavior), types[i])
			}
			require.Equal(t, byte(transport.CommandPollEvents), types[cfg.CmdBufferItems])
			require.NoError(t, c.SendCommand(0, transport.SetHIDIndicators(1)))
		})
	}
}

// rxCountingPort counts asynchronous reception starts.
type rxCountingPort struct {
	*uart.Port
	rxEnables atomic.Int32
}

func (p *rxCountingPort) RxEnable(buf []byte, timeout time.Duration) error {
	p.rxEnables.Add(1)
	return p.Port.RxEnable(buf, timeout)
}

func TestAsyncRxRestart(t *testing.T) {
	a, b := uart.Pipe()
	defer a.Close()
	defer b.Close()
	cfg := testConfig(ModeAsync, false)
	cfg.EventBufferItems = 2
	port := &rxCountingPort{Port: a}
	events := make(chan transport.PeripheralEvent, 16)
	c, err := NewCentral(cfg, port, transport.HandlePeripheralEventFunc(
		func(_ context.Context, _ transport.CentralTransport, _ uint8, ev transport.PeripheralEvent) {
			events <- ev
		}), WithDetectPin(gpio.NewSimPin(true)))
	require.NoError(t, err)
	defer c.Close()
	p, err := NewPeripheral(cfg, b, nil)
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, c.SetEnabled(true))
	require.NoError(t, p.SetEnabled(true))
	require.Equal(t, int32(1), port.rxEnables.Load())

	expectEvents := func(from, to uint8) {
		for pos := from; pos < to; pos++ {
			require.NoError(t, p.ReportEvent(transport.KeyPosition(pos, true)))
		}
		for pos := from; pos < to; pos++ {
			select {
			case ev := <-events:
				require.Equal(t, transport.KeyPosition(pos, true), ev)
			case <-time.After(2 * time.Second):
				t.Fatalf("event %d not received", pos)
			}
		}
	}

	// reception stopped behind our back is restarted
	require.NoError(t, a.RxDisable())
	require.Eventually(t, func() bool { return port.rxEnables.Load() >= 2 }, time.Second, time.Millisecond)
	expectEvents(0, 3)
	expectEvents(3, 6)

	// an explicit stop is not undone
	require.NoError(t, c.SetEnabled(false))
	enables := port.rxEnables.Load()
	time.Sleep(20 * asyncRestartDelay)
	require.Equal(t, enables, port.rxEnables.Load())

	require.NoError(t, c.SetEnabled(true))
	require.Equal(t, enables+1, port.rxEnables.Load())
	expectEvents(6, 8)
}

func TestPollingRxOverflowCounted(t *testing.T) {
	a, b := uart.Pipe(uart.WithFIFOSize(16, 16))
	defer a.Close()
	defer b.Close()
	cfg := testConfig(ModePolling, false)
	cfg.EventBufferItems = 1
	block := make(chan struct{})
	c, err := NewCentral(cfg, a, transport.HandlePeripheralEventFunc(
		func(context.Context, transport.CentralTransport, uint8, transport.PeripheralEvent) {
			<-block
		}))
	require.NoError(t, err)
	defer c.Close()
	defer close(block)
	require.NoError(t, c.SetEnabled(true))

	overflow := rxOverflowBytes.WithLabelValues(ModePolling.String())
	before := testutil.ToFloat64(overflow)

	rb := ringbuf.New(1024)
	for pos := uint8(0); pos < 20; pos++ {
		p := transport.EventPayload{Event: transport.KeyPosition(pos, true)}
		data, err := p.MarshalBinary()
		require.NoError(t, err)
		require.NoError(t, PutItem(rb, data))
	}
	stream := make([]byte, rb.Size())
	rb.Get(stream)
	go b.ReadWriter.Write(stream)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(overflow) > before
	}, 2*time.Second, time.Millisecond)
}
