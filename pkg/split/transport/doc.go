// Package transport defines the contract between the split roles and the
// physical transports moving messages between the keyboard halves.
//
// The Central sends CentralCommand values to the Peripheral and receives
// PeripheralEvent values back. Both are tagged unions with a fixed binary
// size per variant; a transport sizes and copies them but never interprets
// their content. Downstream dispatch is supplied through
// PeripheralEventHandler and CentralCommandHandler.
package transport
