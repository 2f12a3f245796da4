package wired

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/split.go/pkg/framework"
	"github.com/robotalks/split.go/pkg/gpio"
	"github.com/robotalks/split.go/pkg/ringbuf"
	"github.com/robotalks/split.go/pkg/split/transport"
	"github.com/robotalks/split.go/pkg/uart"
)

// Option customizes a Central or Peripheral.
type Option func(*options)

type options struct {
	dir    gpio.Pin
	detect gpio.EdgePin
	queue  *framework.WorkQueue
}

// WithDirectionPin sets the output switching a half-duplex transceiver
// between transmit (active) and receive.
func WithDirectionPin(pin gpio.Pin) Option {
	return func(o *options) { o.dir = pin }
}

// WithDetectPin sets the input sensing the presence of the other half.
// It enables disabling the transport and status reporting.
func WithDetectPin(pin gpio.EdgePin) Option {
	return func(o *options) { o.detect = pin }
}

// WithWorkQueue runs deferred processing on q instead of a private queue.
func WithWorkQueue(q *framework.WorkQueue) Option {
	return func(o *options) { o.queue = q }
}

// endpoint is the part shared by both roles: ring buffers, link, power
// management and presence detection.
type endpoint struct {
	role   string
	cfg    Config
	dev    uart.Device
	rx     *ringbuf.RingBuffer
	tx     *ringbuf.RingBuffer
	link   Link
	detect gpio.EdgePin
	rxBuf  []byte

	queue    *framework.WorkQueue
	ownQueue bool

	// serializes producers of tx.
	txLock sync.Mutex

	lock       sync.Mutex
	enabled    bool
	statusCb   transport.StatusChangedFunc
	notifyWork *framework.DelayableWork
}

type endpointParams struct {
	rxSize         int
	txSize         int
	maxPayloadSize int
	onRx           func()
}

func (e *endpoint) init(role string, cfg Config, dev uart.Device, params endpointParams, opts []Option) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dev == nil || !dev.Ready() {
		return transport.ErrNoDevice
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	e.role, e.cfg, e.dev, e.detect = role, cfg, dev, o.detect
	e.rx = ringbuf.New(params.rxSize)
	e.tx = ringbuf.New(params.txSize)
	e.rxBuf = make([]byte, PrefixSize+params.maxPayloadSize)

	if err := dev.Suspend(); err != nil {
		return fmt.Errorf("suspend %s: %w", dev.Name(), err)
	}
	if o.dir != nil {
		if err := o.dir.Set(false); err != nil {
			return fmt.Errorf("direction pin: %w", err)
		}
	}

	e.queue = o.queue
	if e.queue == nil {
		e.queue, e.ownQueue = framework.NewWorkQueue("wired-"+role), true
	}
	link, err := newLink(&linkParams{
		cfg:   &e.cfg,
		dev:   dev,
		rx:    e.rx,
		tx:    e.tx,
		dir:   o.dir,
		queue: e.queue,
		onRx:  params.onRx,
	})
	if err != nil {
		return err
	}
	e.link = link

	if e.detect != nil {
		e.notifyWork = e.queue.NewDelayableWork(e.notifyStatus)
		if err := e.detect.OnEdge(e.detectChanged); err != nil {
			return fmt.Errorf("detect pin: %w", err)
		}
	}
	if e.ownQueue {
		e.queue.Start()
	}
	return nil
}

// Status reports presence from the detect pin; without one the other half
// is assumed connected.
func (e *endpoint) Status() transport.Status {
	e.lock.Lock()
	enabled := e.enabled
	e.lock.Unlock()
	status := transport.Status{Available: true, Enabled: enabled, Connections: transport.AllConnected}
	if e.detect == nil {
		return status
	}
	detected, err := e.detect.Get()
	if err != nil {
		glog.Errorf("read detect pin: %v", err)
	}
	if !detected {
		status.Available, status.Connections = false, transport.Disconnected
	}
	return status
}

// SetStatusCallback registers the status change callback.
// It requires a detect pin.
func (e *endpoint) SetStatusCallback(cb transport.StatusChangedFunc) error {
	if e.detect == nil {
		return transport.ErrNotSupported
	}
	e.lock.Lock()
	e.statusCb = cb
	e.lock.Unlock()
	return nil
}

// Enabled returns true while reception is armed.
func (e *endpoint) Enabled() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.enabled
}

// TxPending returns the number of bytes waiting to be transmitted.
func (e *endpoint) TxPending() int {
	return e.tx.Size()
}

func (e *endpoint) setEnabled(enabled bool, started, stopping func()) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.enabled == enabled {
		return nil
	}
	if !enabled {
		if e.detect == nil {
			return transport.ErrNotSupported
		}
		e.stopLocked(stopping)
		return nil
	}
	if err := e.dev.Resume(); err != nil {
		return fmt.Errorf("resume %s: %w", e.dev.Name(), err)
	}
	if err := e.link.BeginRx(); err != nil {
		e.dev.Suspend()
		return err
	}
	e.enabled = true
	glog.V(1).Infof("wired %s enabled on %s (%v)", e.role, e.dev.Name(), e.cfg.Mode)
	if started != nil {
		started()
	}
	return nil
}

func (e *endpoint) stopLocked(stopping func()) {
	if stopping != nil {
		stopping()
	}
	if err := e.link.StopRx(); err != nil {
		glog.Warningf("stop RX: %v", err)
	}
	if err := e.dev.Suspend(); err != nil {
		glog.Warningf("suspend %s: %v", e.dev.Name(), err)
	}
	e.enabled = false
	glog.V(1).Infof("wired %s disabled", e.role)
}

func (e *endpoint) close(stopping func()) {
	e.lock.Lock()
	if e.enabled {
		e.stopLocked(stopping)
	}
	e.lock.Unlock()
	if e.notifyWork != nil {
		e.notifyWork.Cancel()
	}
	if e.ownQueue {
		e.queue.Stop()
	}
}

// enqueue frames payload into tx. The caller holds txLock.
func (e *endpoint) enqueue(payload []byte) error {
	if err := PutItem(e.tx, payload); err != nil {
		if errors.Is(err, transport.ErrNoSpace) {
			txNoSpace.WithLabelValues(e.role).Inc()
		}
		return err
	}
	framesSent.WithLabelValues(e.role).Inc()
	if glog.V(4) {
		glog.Infof("%s queued % x", e.role, payload)
	}
	return nil
}

// nextItem extracts the next valid payload from rx, skipping damaged
// envelopes. It returns nil when rx holds no complete envelope.
func (e *endpoint) nextItem() []byte {
	for {
		payload, err := GetItem(e.rx, e.rxBuf)
		switch {
		case err == nil:
			return payload
		case errors.Is(err, ErrRetry):
			return nil
		case errors.Is(err, ErrCorrupt):
			glog.Warningf("%s: data corruption in received message: %v", e.role, err)
			frameErrors.WithLabelValues(e.role, "corrupt").Inc()
		case errors.Is(err, ErrTooLarge):
			glog.Warningf("%s: invalid message: %v", e.role, err)
			frameErrors.WithLabelValues(e.role, "too_large").Inc()
		default:
			glog.Warningf("%s: fetching item from the RX buffer: %v", e.role, err)
			return nil
		}
	}
}

func (e *endpoint) decodeFailed(err error) {
	glog.Warningf("%s: undecodable payload: %v", e.role, err)
	frameErrors.WithLabelValues(e.role, "decode").Inc()
}

func (e *endpoint) detectChanged() {
	e.notifyWork.Reschedule(e.cfg.DetectDebounce)
}

func (e *endpoint) notifyStatus(context.Context) {
	e.lock.Lock()
	cb := e.statusCb
	e.lock.Unlock()
	if cb != nil {
		cb(e.Status())
	}
}
