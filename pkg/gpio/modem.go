package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"
)

// ModemLine selects a serial port modem control line.
type ModemLine int

// Modem lines. RTS and DTR are outputs, the others inputs.
const (
	LineRTS ModemLine = iota
	LineDTR
	LineCTS
	LineDSR
	LineDCD
	LineRI
)

// ParseModemLine parses a line name like "rts" or "dcd".
func ParseModemLine(name string) (ModemLine, error) {
	switch name {
	case "rts", "RTS":
		return LineRTS, nil
	case "dtr", "DTR":
		return LineDTR, nil
	case "cts", "CTS":
		return LineCTS, nil
	case "dsr", "DSR":
		return LineDSR, nil
	case "dcd", "DCD":
		return LineDCD, nil
	case "ri", "RI":
		return LineRI, nil
	}
	return 0, fmt.Errorf("unknown modem line %q", name)
}

// IsOutput returns true for lines driven by the host.
func (l ModemLine) IsOutput() bool {
	return l == LineRTS || l == LineDTR
}

// ModemPin exposes a modem control line of a serial port as a pin.
// Input lines are sampled periodically to emulate edge interrupts.
type ModemPin struct {
	Port         serial.Port
	Line         ModemLine
	Inverted     bool
	PollInterval time.Duration

	lock      sync.Mutex
	value     bool
	callbacks []EdgeCallback
	stopCh    chan struct{}
}

// NewModemPin creates a pin on a modem line.
func NewModemPin(port serial.Port, line ModemLine) *ModemPin {
	return &ModemPin{Port: port, Line: line, PollInterval: 10 * time.Millisecond}
}

// Set implements Pin.
func (p *ModemPin) Set(active bool) error {
	level := active != p.Inverted
	var err error
	switch p.Line {
	case LineRTS:
		err = p.Port.SetRTS(level)
	case LineDTR:
		err = p.Port.SetDTR(level)
	default:
		return fmt.Errorf("modem line %d is an input", p.Line)
	}
	if err == nil {
		p.lock.Lock()
		p.value = active
		p.lock.Unlock()
	}
	return err
}

// Get implements Pin. Output lines report the last value set.
func (p *ModemPin) Get() (bool, error) {
	if p.Line.IsOutput() {
		p.lock.Lock()
		defer p.lock.Unlock()
		return p.value, nil
	}
	bits, err := p.Port.GetModemStatusBits()
	if err != nil {
		return false, err
	}
	var level bool
	switch p.Line {
	case LineCTS:
		level = bits.CTS
	case LineDSR:
		level = bits.DSR
	case LineDCD:
		level = bits.DCD
	case LineRI:
		level = bits.RI
	}
	return level != p.Inverted, nil
}

// OnEdge implements EdgePin and starts sampling the line.
func (p *ModemPin) OnEdge(cb EdgeCallback) error {
	if p.Line.IsOutput() {
		return fmt.Errorf("modem line %d is an output", p.Line)
	}
	value, err := p.Get()
	if err != nil {
		return err
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	p.callbacks = append(p.callbacks, cb)
	if p.stopCh == nil {
		p.value = value
		p.stopCh = make(chan struct{})
		go p.sample(p.stopCh)
	}
	return nil
}

// Close stops sampling.
func (p *ModemPin) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	return nil
}

func (p *ModemPin) sample(stopCh chan struct{}) {
	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}
		value, err := p.Get()
		if err != nil {
			glog.V(2).Infof("modem line %d: %v", p.Line, err)
			continue
		}
		p.lock.Lock()
		changed := value != p.value
		p.value = value
		callbacks := p.callbacks
		p.lock.Unlock()
		if changed {
			for _, cb := range callbacks {
				cb()
			}
		}
	}
}
