// Package uart models the UART controller API used by the wired split
// transport: polled byte I/O, interrupt-driven FIFO access and asynchronous
// DMA-style transfers, plus runtime power management.
package uart

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBusy indicates a transfer is already in progress.
	ErrBusy = errors.New("busy")
	// ErrNotActive indicates reception is not enabled.
	ErrNotActive = errors.New("reception not active")
	// ErrSuspended indicates the device is suspended.
	ErrSuspended = errors.New("device suspended")
	// ErrClosed indicates the device is closed.
	ErrClosed = errors.New("device closed")
)

// Forever disables a transfer timeout.
const Forever time.Duration = -1

// Device is the common part of all UART APIs.
type Device interface {
	Name() string
	// Ready reports whether the device can be used.
	Ready() bool
	// Resume powers the device up.
	Resume() error
	// Suspend powers the device down.
	Suspend() error
}

// PollDevice is the polled byte API.
type PollDevice interface {
	Device
	// PollIn reads one received byte if available, never blocking.
	PollIn() (byte, bool)
	// PollOut transmits one byte, blocking while the TX FIFO is full.
	PollOut(b byte)
}

// OverrunCounter is implemented by devices counting received bytes lost
// to a full RX FIFO.
type OverrunCounter interface {
	Overruns() int
}

// IRQCallback is invoked in interrupt context while an interrupt is pending.
type IRQCallback func()

// FIFODevice is the interrupt-driven API.
// All methods except the IRQ enable/disable ones are meant for the callback.
type FIFODevice interface {
	Device
	SetIRQCallback(IRQCallback) error
	// IRQUpdate latches the interrupt state; it always returns true.
	IRQUpdate() bool
	IRQPending() bool
	RxReady() bool
	TxReady() bool
	TxComplete() bool
	// FIFORead reads received bytes into buf.
	FIFORead(buf []byte) int
	// FIFOFill puts up to len(data) bytes into the TX FIFO.
	FIFOFill(data []byte) int
	EnableRxIRQ()
	DisableRxIRQ()
	EnableTxIRQ()
	DisableTxIRQ()
}

// EventType is the type of an asynchronous UART event.
type EventType int

// Asynchronous events.
const (
	EventTxDone EventType = iota
	EventTxAborted
	EventRxRdy
	EventRxBufRequest
	EventRxBufReleased
	EventRxStopped
	EventRxDisabled
)

var eventTypeNames = []string{
	"tx-done",
	"tx-aborted",
	"rx-rdy",
	"rx-buf-request",
	"rx-buf-released",
	"rx-stopped",
	"rx-disabled",
}

// String implements fmt.Stringer.
func (t EventType) String() string {
	if t >= 0 && int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Event is delivered to the AsyncCallback.
//
// TxDone and TxAborted carry the transmitted Len. RxRdy carries Buf with the
// new bytes at Buf[Offset:Offset+Len]. RxBufReleased carries the released Buf.
// RxStopped carries the Err that stopped reception.
type Event struct {
	Type   EventType
	Buf    []byte
	Offset int
	Len    int
	Err    error
}

// Data returns the bytes received with an RxRdy event.
func (e *Event) Data() []byte {
	return e.Buf[e.Offset : e.Offset+e.Len]
}

// AsyncCallback handles asynchronous events in interrupt context.
type AsyncCallback func(Event)

// AsyncDevice is the asynchronous API. Buffers handed to Tx, RxEnable and
// RxBufRsp are owned by the device until the matching event.
type AsyncDevice interface {
	Device
	SetCallback(AsyncCallback) error
	Tx(data []byte, timeout time.Duration) error
	RxEnable(buf []byte, timeout time.Duration) error
	RxBufRsp(buf []byte) error
	RxDisable() error
}
