package msgs

import (
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/split.go/pkg/split/transport"
)

// Event carries a PeripheralEvent.
type Event struct {
	PbEvent
}

// NewEvent creates an Event received from source at ts.
func NewEvent(source uint8, ev transport.PeripheralEvent, ts time.Time) (*Event, error) {
	data, err := ev.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &Event{PbEvent: PbEvent{
		Source:    uint32(source),
		Type:      uint32(ev.Type),
		Data:      data,
		Timestamp: ts.UnixNano(),
	}}, nil
}

// PeripheralEvent decodes the carried event.
func (m *Event) PeripheralEvent() (ev transport.PeripheralEvent, err error) {
	err = ev.UnmarshalBinary(m.Data)
	return
}

// TypeID implements SerializableMessage.
func (m *Event) TypeID() uint32 { return EventTypeID }

// Serializable implements SerializableMessage.
func (m *Event) Serializable() proto.Message { return &m.PbEvent }

// Command carries a CentralCommand.
type Command struct {
	PbCommand
}

// NewCommand creates a Command addressed to source.
func NewCommand(source uint8, cmd transport.CentralCommand) (*Command, error) {
	data, err := cmd.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &Command{PbCommand: PbCommand{
		Source: uint32(source),
		Type:   uint32(cmd.Type),
		Data:   data,
	}}, nil
}

// CentralCommand decodes the carried command.
func (m *Command) CentralCommand() (cmd transport.CentralCommand, err error) {
	err = cmd.UnmarshalBinary(m.Data)
	return
}

// TypeID implements SerializableMessage.
func (m *Command) TypeID() uint32 { return CommandTypeID }

// Serializable implements SerializableMessage.
func (m *Command) Serializable() proto.Message { return &m.PbCommand }

// Status carries a transport.Status.
type Status struct {
	PbStatus
}

// NewStatus creates a Status for the half identified by role and deviceID.
func NewStatus(role, deviceID string, st transport.Status) *Status {
	return &Status{PbStatus: PbStatus{
		Role:        role,
		DeviceId:    deviceID,
		Available:   st.Available,
		Enabled:     st.Enabled,
		Connections: uint32(st.Connections),
	}}
}

// TransportStatus converts back to transport.Status.
func (m *Status) TransportStatus() transport.Status {
	return transport.Status{
		Available:   m.Available,
		Enabled:     m.Enabled,
		Connections: transport.ConnectionsStatus(m.Connections),
	}
}

// TypeID implements SerializableMessage.
func (m *Status) TypeID() uint32 { return StatusTypeID }

// Serializable implements SerializableMessage.
func (m *Status) Serializable() proto.Message { return &m.PbStatus }

// TypeIDs
const (
	CommandTypeID uint32 = TypeIDKindCommand | 0x0001
	EventTypeID   uint32 = TypeIDKindEvent | 0x0001
	StatusTypeID  uint32 = TypeIDKindEvent | 0x0002
)
