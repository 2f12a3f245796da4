// Package gpio provides the digital pins used by the wired split transport:
// an output driving the bus direction of a half-duplex transceiver and an
// input detecting the presence of the other half.
package gpio

import (
	"sync"
)

// Pin is a logical digital pin. Active means asserted, whatever the
// electrical polarity.
type Pin interface {
	Set(active bool) error
	Get() (bool, error)
}

// EdgeCallback is invoked in interrupt context on level changes.
type EdgeCallback func()

// EdgePin is an input pin raising interrupts on both edges.
type EdgePin interface {
	Pin
	OnEdge(EdgeCallback) error
}

// SimPin is an in-memory pin.
type SimPin struct {
	lock      sync.Mutex
	value     bool
	callbacks []EdgeCallback
	changes   int
}

// NewSimPin creates a SimPin with an initial level.
func NewSimPin(active bool) *SimPin {
	return &SimPin{value: active}
}

// Set implements Pin.
func (p *SimPin) Set(active bool) error {
	p.lock.Lock()
	changed := p.value != active
	p.value = active
	var callbacks []EdgeCallback
	if changed {
		p.changes++
		callbacks = append(callbacks, p.callbacks...)
	}
	p.lock.Unlock()
	for _, cb := range callbacks {
		go cb()
	}
	return nil
}

// Get implements Pin.
func (p *SimPin) Get() (bool, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.value, nil
}

// OnEdge implements EdgePin.
func (p *SimPin) OnEdge(cb EdgeCallback) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.callbacks = append(p.callbacks, cb)
	return nil
}

// Changes returns the number of level changes so far.
func (p *SimPin) Changes() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.changes
}
