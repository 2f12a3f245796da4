// Package msgs defines the protobuf messages used to carry split transport
// traffic off the board, e.g. over MQTT or websocket.
//
// Producer: the daemon running a Central or Peripheral
// Consumer: monitors, shells and remote injectors
package msgs
