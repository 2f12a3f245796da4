package transport

// PeripheralID is the only peripheral source id a wired transport serves.
const PeripheralID uint8 = 0

// CommandPayload is the Central to Peripheral message body.
type CommandPayload struct {
	Source  uint8
	Command CentralCommand
}

// Size returns the encoded size.
func (p *CommandPayload) Size() (int, error) {
	size, err := p.Command.Size()
	return size + 1, err
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p *CommandPayload) MarshalBinary() ([]byte, error) {
	size, err := p.Size()
	if err != nil {
		return nil, err
	}
	return p.Command.AppendBinary(append(make([]byte, 0, size), p.Source))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *CommandPayload) UnmarshalBinary(b []byte) error {
	if len(b) < 1 {
		return ErrShortPayload
	}
	p.Source = b[0]
	return p.Command.UnmarshalBinary(b[1:])
}

// EventPayload is the Peripheral to Central message body.
type EventPayload struct {
	Source uint8
	Event  PeripheralEvent
}

// Size returns the encoded size.
func (p *EventPayload) Size() (int, error) {
	size, err := p.Event.Size()
	return size + 1, err
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p *EventPayload) MarshalBinary() ([]byte, error) {
	size, err := p.Size()
	if err != nil {
		return nil, err
	}
	return p.Event.AppendBinary(append(make([]byte, 0, size), p.Source))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *EventPayload) UnmarshalBinary(b []byte) error {
	if len(b) < 1 {
		return ErrShortPayload
	}
	p.Source = b[0]
	return p.Event.UnmarshalBinary(b[1:])
}

// MaxCommandPayloadSize is the size of the largest CommandPayload.
func MaxCommandPayloadSize() int {
	max := 0
	for _, size := range commandDataSizes {
		if size > max {
			max = size
		}
	}
	return max + 2
}

// MaxEventPayloadSize is the size of the largest EventPayload.
func MaxEventPayloadSize() int {
	max := 0
	for _, size := range eventDataSizes {
		if size > max {
			max = size
		}
	}
	return max + 2
}
