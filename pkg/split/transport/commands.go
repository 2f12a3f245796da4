package transport

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// CommandType identifies the variant of a CentralCommand.
type CommandType uint8

// Command types, in wire order.
const (
	CommandPollEvents CommandType = iota
	CommandInvokeBehavior
	CommandSetPhysicalLayout
	CommandSetHIDIndicators
)

// BehaviorDevSize is the fixed wire size of a behavior device name.
const BehaviorDevSize = 16

var commandDataSizes = map[CommandType]int{
	CommandPollEvents:        0,
	CommandInvokeBehavior:    BehaviorDevSize + 4 + 4 + 4 + 1 + 1,
	CommandSetPhysicalLayout: 1,
	CommandSetHIDIndicators:  1,
}

var commandNames = map[CommandType]string{
	CommandPollEvents:        "poll-events",
	CommandInvokeBehavior:    "invoke-behavior",
	CommandSetPhysicalLayout: "set-physical-layout",
	CommandSetHIDIndicators:  "set-hid-indicators",
}

// String implements fmt.Stringer.
func (t CommandType) String() string {
	if name, ok := commandNames[t]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", uint8(t))
}

// DataSize returns the wire size of the variant data.
func (t CommandType) DataSize() (int, error) {
	if size, ok := commandDataSizes[t]; ok {
		return size, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrNotSupported, t)
}

// InvokeBehavior asks the peripheral to run a behavior.
type InvokeBehavior struct {
	BehaviorDev string
	Param1      uint32
	Param2      uint32
	Position    uint32
	EventSource uint8
	State       uint8 // 1 pressed, 0 released, other values passed through
}

// CentralCommand is the tagged union sent from Central to Peripheral.
// Only the field matching Type is meaningful.
type CentralCommand struct {
	Type           CommandType
	InvokeBehavior InvokeBehavior
	PhysicalLayout uint8
	HIDIndicators  uint8
}

// PollEvents creates the command soliciting pending peripheral events.
func PollEvents() CentralCommand {
	return CentralCommand{Type: CommandPollEvents}
}

// InvokeBehaviorCommand creates an invoke-behavior command.
func InvokeBehaviorCommand(b InvokeBehavior) CentralCommand {
	return CentralCommand{Type: CommandInvokeBehavior, InvokeBehavior: b}
}

// SetPhysicalLayout creates a set-physical-layout command.
func SetPhysicalLayout(index uint8) CentralCommand {
	return CentralCommand{Type: CommandSetPhysicalLayout, PhysicalLayout: index}
}

// SetHIDIndicators creates a set-hid-indicators command.
func SetHIDIndicators(indicators uint8) CentralCommand {
	return CentralCommand{Type: CommandSetHIDIndicators, HIDIndicators: indicators}
}

// Size returns the encoded size including the type tag.
func (c *CentralCommand) Size() (int, error) {
	size, err := c.Type.DataSize()
	return size + 1, err
}

// String implements fmt.Stringer.
func (c CentralCommand) String() string {
	switch c.Type {
	case CommandInvokeBehavior:
		b := &c.InvokeBehavior
		return fmt.Sprintf("%v{dev=%q param1=%d param2=%d position=%d source=%d state=%d}",
			c.Type, b.BehaviorDev, b.Param1, b.Param2, b.Position, b.EventSource, b.State)
	case CommandSetPhysicalLayout:
		return fmt.Sprintf("%v{%d}", c.Type, c.PhysicalLayout)
	case CommandSetHIDIndicators:
		return fmt.Sprintf("%v{%#02x}", c.Type, c.HIDIndicators)
	}
	return c.Type.String()
}

// AppendBinary appends the type tag and variant data to b.
func (c *CentralCommand) AppendBinary(b []byte) ([]byte, error) {
	if _, err := c.Type.DataSize(); err != nil {
		return b, err
	}
	b = append(b, byte(c.Type))
	switch c.Type {
	case CommandInvokeBehavior:
		ib := &c.InvokeBehavior
		if len(ib.BehaviorDev) > BehaviorDevSize {
			return b, fmt.Errorf("%w: behavior device name %q too long", ErrInvalidPayload, ib.BehaviorDev)
		}
		var dev [BehaviorDevSize]byte
		copy(dev[:], ib.BehaviorDev)
		b = append(b, dev[:]...)
		b = binary.LittleEndian.AppendUint32(b, ib.Param1)
		b = binary.LittleEndian.AppendUint32(b, ib.Param2)
		b = binary.LittleEndian.AppendUint32(b, ib.Position)
		b = append(b, ib.EventSource, ib.State)
	case CommandSetPhysicalLayout:
		b = append(b, c.PhysicalLayout)
	case CommandSetHIDIndicators:
		b = append(b, c.HIDIndicators)
	}
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c *CentralCommand) MarshalBinary() ([]byte, error) {
	size, err := c.Size()
	if err != nil {
		return nil, err
	}
	return c.AppendBinary(make([]byte, 0, size))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
// Trailing bytes beyond the variant size are ignored.
func (c *CentralCommand) UnmarshalBinary(b []byte) error {
	if len(b) < 1 {
		return ErrShortPayload
	}
	t := CommandType(b[0])
	size, err := t.DataSize()
	if err != nil {
		return err
	}
	if len(b)-1 < size {
		return fmt.Errorf("%w: %v needs %d bytes, got %d", ErrShortPayload, t, size, len(b)-1)
	}
	*c = CentralCommand{Type: t}
	data := b[1:]
	switch t {
	case CommandInvokeBehavior:
		ib := &c.InvokeBehavior
		ib.BehaviorDev = strings.TrimRight(string(data[:BehaviorDevSize]), "\x00")
		data = data[BehaviorDevSize:]
		ib.Param1 = binary.LittleEndian.Uint32(data[0:])
		ib.Param2 = binary.LittleEndian.Uint32(data[4:])
		ib.Position = binary.LittleEndian.Uint32(data[8:])
		ib.EventSource = data[12]
		ib.State = data[13]
	case CommandSetPhysicalLayout:
		c.PhysicalLayout = data[0]
	case CommandSetHIDIndicators:
		c.HIDIndicators = data[0]
	}
	return nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
