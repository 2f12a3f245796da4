package msgs

import "github.com/golang/protobuf/proto"

// PbTyped is the wire form of Typed.
type PbTyped struct {
	TypeId  uint32 `protobuf:"varint,1,opt,name=type_id,json=typeId,proto3" json:"type_id,omitempty"`
	Message []byte `protobuf:"bytes,2,opt,name=message,proto3" json:"message,omitempty"`
}

func (m *PbTyped) Reset()         { *m = PbTyped{} }
func (m *PbTyped) String() string { return proto.CompactTextString(m) }
func (*PbTyped) ProtoMessage()    {}

// PbEvent is a peripheral event. Data holds the type tag and variant data
// as carried in the wire payload.
type PbEvent struct {
	Source    uint32 `protobuf:"varint,1,opt,name=source,proto3" json:"source,omitempty"`
	Type      uint32 `protobuf:"varint,2,opt,name=type,proto3" json:"type,omitempty"`
	Data      []byte `protobuf:"bytes,3,opt,name=data,proto3" json:"data,omitempty"`
	Timestamp int64  `protobuf:"varint,4,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

func (m *PbEvent) Reset()         { *m = PbEvent{} }
func (m *PbEvent) String() string { return proto.CompactTextString(m) }
func (*PbEvent) ProtoMessage()    {}

// PbCommand is a central command.
type PbCommand struct {
	Source uint32 `protobuf:"varint,1,opt,name=source,proto3" json:"source,omitempty"`
	Type   uint32 `protobuf:"varint,2,opt,name=type,proto3" json:"type,omitempty"`
	Data   []byte `protobuf:"bytes,3,opt,name=data,proto3" json:"data,omitempty"`
}

func (m *PbCommand) Reset()         { *m = PbCommand{} }
func (m *PbCommand) String() string { return proto.CompactTextString(m) }
func (*PbCommand) ProtoMessage()    {}

// PbStatus is a transport status report.
type PbStatus struct {
	Role        string `protobuf:"bytes,1,opt,name=role,proto3" json:"role,omitempty"`
	DeviceId    string `protobuf:"bytes,2,opt,name=device_id,json=deviceId,proto3" json:"device_id,omitempty"`
	Available   bool   `protobuf:"varint,3,opt,name=available,proto3" json:"available,omitempty"`
	Enabled     bool   `protobuf:"varint,4,opt,name=enabled,proto3" json:"enabled,omitempty"`
	Connections uint32 `protobuf:"varint,5,opt,name=connections,proto3" json:"connections,omitempty"`
}

func (m *PbStatus) Reset()         { *m = PbStatus{} }
func (m *PbStatus) String() string { return proto.CompactTextString(m) }
func (*PbStatus) ProtoMessage()    {}
