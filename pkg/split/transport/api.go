package transport

import "context"

// ConnectionsStatus summarizes the links to peer halves.
type ConnectionsStatus uint8

// Connection states.
const (
	Disconnected ConnectionsStatus = iota
	SomeConnected
	AllConnected
)

// String implements fmt.Stringer.
func (s ConnectionsStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case SomeConnected:
		return "some-connected"
	case AllConnected:
		return "all-connected"
	}
	return "unknown"
}

// Status is the state reported by a transport.
type Status struct {
	Available   bool              `json:"available"`
	Enabled     bool              `json:"enabled"`
	Connections ConnectionsStatus `json:"connections"`
}

// StatusChangedFunc is notified when a transport status changes.
type StatusChangedFunc func(Status)

// StatusReporter is implemented by transports able to report presence,
// e.g. a wired link with a detect pin.
type StatusReporter interface {
	Status() Status
	SetStatusCallback(StatusChangedFunc) error
}

// CentralTransport is used by the Central to reach peripherals.
type CentralTransport interface {
	SendCommand(source uint8, cmd CentralCommand) error
	AvailableSourceIDs() []uint8
	SetEnabled(enabled bool) error
}

// PeripheralTransport is used by the Peripheral to reach the Central.
type PeripheralTransport interface {
	ReportEvent(ev PeripheralEvent) error
	SetEnabled(enabled bool) error
}

// PeripheralEventHandler receives validated events on the Central.
type PeripheralEventHandler interface {
	HandlePeripheralEvent(ctx context.Context, tr CentralTransport, source uint8, ev PeripheralEvent)
}

// HandlePeripheralEventFunc is the func form of PeripheralEventHandler.
type HandlePeripheralEventFunc func(context.Context, CentralTransport, uint8, PeripheralEvent)

// HandlePeripheralEvent implements PeripheralEventHandler.
func (f HandlePeripheralEventFunc) HandlePeripheralEvent(ctx context.Context, tr CentralTransport, source uint8, ev PeripheralEvent) {
	f(ctx, tr, source, ev)
}

// CentralCommandHandler receives validated commands on the Peripheral.
type CentralCommandHandler interface {
	HandleCentralCommand(ctx context.Context, tr PeripheralTransport, cmd CentralCommand)
}

// HandleCentralCommandFunc is the func form of CentralCommandHandler.
type HandleCentralCommandFunc func(context.Context, PeripheralTransport, CentralCommand)

// HandleCentralCommand implements CentralCommandHandler.
func (f HandleCentralCommandFunc) HandleCentralCommand(ctx context.Context, tr PeripheralTransport, cmd CentralCommand) {
	f(ctx, tr, cmd)
}

// PeripheralEventHandlers dispatches an event to every handler in order.
type PeripheralEventHandlers []PeripheralEventHandler

// HandlePeripheralEvent implements PeripheralEventHandler.
func (h PeripheralEventHandlers) HandlePeripheralEvent(ctx context.Context, tr CentralTransport, source uint8, ev PeripheralEvent) {
	for _, handler := range h {
		handler.HandlePeripheralEvent(ctx, tr, source, ev)
	}
}

// CentralCommandHandlers dispatches a command to every handler in order.
type CentralCommandHandlers []CentralCommandHandler

// HandleCentralCommand implements CentralCommandHandler.
func (h CentralCommandHandlers) HandleCentralCommand(ctx context.Context, tr PeripheralTransport, cmd CentralCommand) {
	for _, handler := range h {
		handler.HandleCentralCommand(ctx, tr, cmd)
	}
}
