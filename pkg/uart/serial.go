package uart

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenSerial opens a serial port device as a Port using 8N1 framing.
func OpenSerial(name string, baudRate int, opts ...PortOption) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return NewPort(name, sp, opts...), nil
}

// Serial returns the underlying serial port, or nil if the Port
// isn't backed by one.
func (p *Port) Serial() serial.Port {
	if sp, ok := p.ReadWriter.(serial.Port); ok {
		return sp
	}
	return nil
}

// SerialPorts lists the serial ports present on the system.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
