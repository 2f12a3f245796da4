package transport

import (
	"encoding/binary"
	"fmt"
)

// EventType identifies the variant of a PeripheralEvent.
type EventType uint8

// Event types, in wire order.
const (
	EventKeyPosition EventType = iota
	EventSensor
	EventInput
	EventBattery
)

var eventDataSizes = map[EventType]int{
	EventKeyPosition: 2,
	EventSensor:      4 + 4 + 4 + 1,
	EventInput:       1 + 1 + 1 + 2 + 4,
	EventBattery:     1,
}

var eventNames = map[EventType]string{
	EventKeyPosition: "key-position",
	EventSensor:      "sensor",
	EventInput:       "input",
	EventBattery:     "battery",
}

// String implements fmt.Stringer.
func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", uint8(t))
}

// DataSize returns the wire size of the variant data.
func (t EventType) DataSize() (int, error) {
	if size, ok := eventDataSizes[t]; ok {
		return size, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrNotSupported, t)
}

// KeyPositionEvent reports a key press or release.
type KeyPositionEvent struct {
	Position uint8
	Pressed  bool
}

// SensorEvent reports one sensor channel reading.
type SensorEvent struct {
	Channel     uint32
	Val1        int32
	Val2        int32
	SensorIndex uint8
}

// InputEvent forwards an input subsystem event.
type InputEvent struct {
	Reg   uint8
	Sync  bool
	Type  uint8
	Code  uint16
	Value int32
}

// BatteryEvent reports the battery level in percent.
type BatteryEvent struct {
	Level uint8
}

// PeripheralEvent is the tagged union sent from Peripheral to Central.
// Only the field matching Type is meaningful.
type PeripheralEvent struct {
	Type        EventType
	KeyPosition KeyPositionEvent
	Sensor      SensorEvent
	Input       InputEvent
	Battery     BatteryEvent
}

// KeyPosition creates a key-position event.
func KeyPosition(position uint8, pressed bool) PeripheralEvent {
	return PeripheralEvent{Type: EventKeyPosition, KeyPosition: KeyPositionEvent{Position: position, Pressed: pressed}}
}

// Sensor creates a sensor event.
func Sensor(ev SensorEvent) PeripheralEvent {
	return PeripheralEvent{Type: EventSensor, Sensor: ev}
}

// Input creates an input event.
func Input(ev InputEvent) PeripheralEvent {
	return PeripheralEvent{Type: EventInput, Input: ev}
}

// Battery creates a battery event.
func Battery(level uint8) PeripheralEvent {
	return PeripheralEvent{Type: EventBattery, Battery: BatteryEvent{Level: level}}
}

// Size returns the encoded size including the type tag.
func (e *PeripheralEvent) Size() (int, error) {
	size, err := e.Type.DataSize()
	return size + 1, err
}

// String implements fmt.Stringer.
func (e PeripheralEvent) String() string {
	switch e.Type {
	case EventKeyPosition:
		return fmt.Sprintf("%v{position=%d pressed=%v}", e.Type, e.KeyPosition.Position, e.KeyPosition.Pressed)
	case EventSensor:
		s := &e.Sensor
		return fmt.Sprintf("%v{index=%d channel=%d val1=%d val2=%d}", e.Type, s.SensorIndex, s.Channel, s.Val1, s.Val2)
	case EventInput:
		in := &e.Input
		return fmt.Sprintf("%v{reg=%d type=%d code=%d value=%d sync=%v}", e.Type, in.Reg, in.Type, in.Code, in.Value, in.Sync)
	case EventBattery:
		return fmt.Sprintf("%v{%d%%}", e.Type, e.Battery.Level)
	}
	return e.Type.String()
}

// AppendBinary appends the type tag and variant data to b.
func (e *PeripheralEvent) AppendBinary(b []byte) ([]byte, error) {
	if _, err := e.Type.DataSize(); err != nil {
		return b, err
	}
	b = append(b, byte(e.Type))
	switch e.Type {
	case EventKeyPosition:
		b = append(b, e.KeyPosition.Position, boolByte(e.KeyPosition.Pressed))
	case EventSensor:
		s := &e.Sensor
		b = binary.LittleEndian.AppendUint32(b, s.Channel)
		b = binary.LittleEndian.AppendUint32(b, uint32(s.Val1))
		b = binary.LittleEndian.AppendUint32(b, uint32(s.Val2))
		b = append(b, s.SensorIndex)
	case EventInput:
		in := &e.Input
		b = append(b, in.Reg, boolByte(in.Sync), in.Type)
		b = binary.LittleEndian.AppendUint16(b, in.Code)
		b = binary.LittleEndian.AppendUint32(b, uint32(in.Value))
	case EventBattery:
		b = append(b, e.Battery.Level)
	}
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (e *PeripheralEvent) MarshalBinary() ([]byte, error) {
	size, err := e.Size()
	if err != nil {
		return nil, err
	}
	return e.AppendBinary(make([]byte, 0, size))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
// Trailing bytes beyond the variant size are ignored.
func (e *PeripheralEvent) UnmarshalBinary(b []byte) error {
	if len(b) < 1 {
		return ErrShortPayload
	}
	t := EventType(b[0])
	size, err := t.DataSize()
	if err != nil {
		return err
	}
	if len(b)-1 < size {
		return fmt.Errorf("%w: %v needs %d bytes, got %d", ErrShortPayload, t, size, len(b)-1)
	}
	*e = PeripheralEvent{Type: t}
	data := b[1:]
	switch t {
	case EventKeyPosition:
		e.KeyPosition.Position = data[0]
		e.KeyPosition.Pressed = data[1] != 0
	case EventSensor:
		s := &e.Sensor
		s.Channel = binary.LittleEndian.Uint32(data[0:])
		s.Val1 = int32(binary.LittleEndian.Uint32(data[4:]))
		s.Val2 = int32(binary.LittleEndian.Uint32(data[8:]))
		s.SensorIndex = data[12]
	case EventInput:
		in := &e.Input
		in.Reg = data[0]
		in.Sync = data[1] != 0
		in.Type = data[2]
		in.Code = binary.LittleEndian.Uint16(data[3:])
		in.Value = int32(binary.LittleEndian.Uint32(data[5:]))
	case EventBattery:
		e.Battery.Level = data[0]
	}
	return nil
}
