package mqtt

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/split.go/pkg/bridge/msgs"
	"github.com/robotalks/split.go/pkg/split/transport"
)

// Topic suffixes under <prefix><device-id>/.
const (
	// TopicEvent carries events received by a Central or reported by a
	// Peripheral.
	TopicEvent = "event"
	// TopicCommand carries commands received by a Peripheral or sent by a
	// Central.
	TopicCommand = "cmd"
	// TopicStatus carries the retained transport status, cleared by the
	// will message when the bridge goes away.
	TopicStatus = "status"
	// TopicSend accepts commands to be sent by a Central.
	TopicSend = "send"
	// TopicReport accepts events to be reported by a Peripheral.
	TopicReport = "report"
)

// Bridge mirrors the traffic of one split half to MQTT and injects
// remote commands or events into its transport.
type Bridge struct {
	Queue    *Queue
	DeviceID string
	Role     string

	statusLock sync.Mutex
	status     *transport.Status
}

var _ transport.PeripheralEventHandler = &Bridge{}
var _ transport.CentralCommandHandler = &Bridge{}

// NewBridge creates a Bridge connecting to brokerURL.
func NewBridge(brokerURL, deviceID, role string) (*Bridge, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+deviceID+"/"+TopicStatus, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("split:" + role + ":" + deviceID)
	}
	b := NewBridgeWithQueue(NewQueue(opts, topicPrefix), deviceID, role)
	return b, nil
}

// NewBridgeWithQueue creates a Bridge on an existing Queue.
func NewBridgeWithQueue(q *Queue, deviceID, role string) *Bridge {
	b := &Bridge{Queue: q, DeviceID: deviceID, Role: role}
	q.OnConnect = func(*Queue) { b.publishStatus() }
	return b
}

// Topic returns the device topic with suffix.
func (b *Bridge) Topic(suffix string) string {
	return b.DeviceID + "/" + suffix
}

// HandlePeripheralEvent implements transport.PeripheralEventHandler.
func (b *Bridge) HandlePeripheralEvent(_ context.Context, _ transport.CentralTransport, source uint8, ev transport.PeripheralEvent) {
	b.PublishEvent(source, ev)
}

// HandleCentralCommand implements transport.CentralCommandHandler.
func (b *Bridge) HandleCentralCommand(_ context.Context, _ transport.PeripheralTransport, cmd transport.CentralCommand) {
	b.PublishCommand(transport.PeripheralID, cmd)
}

// PublishEvent publishes an event on TopicEvent.
func (b *Bridge) PublishEvent(source uint8, ev transport.PeripheralEvent) {
	msg, err := msgs.NewEvent(source, ev, time.Now())
	if err != nil {
		glog.Warningf("bridge event %v: %v", ev, err)
		return
	}
	b.publish(TopicEvent, msg, false)
}

// PublishCommand publishes a command on TopicCommand.
func (b *Bridge) PublishCommand(source uint8, cmd transport.CentralCommand) {
	msg, err := msgs.NewCommand(source, cmd)
	if err != nil {
		glog.Warningf("bridge command %v: %v", cmd, err)
		return
	}
	b.publish(TopicCommand, msg, false)
}

// UpdateStatus records st and publishes it retained. It can be used as a
// transport.StatusChangedFunc.
func (b *Bridge) UpdateStatus(st transport.Status) {
	b.statusLock.Lock()
	b.status = &st
	b.statusLock.Unlock()
	b.publishStatus()
}

// ServeCentral sends commands received on TopicSend through tr.
func (b *Bridge) ServeCentral(tr transport.CentralTransport) *Subscription {
	return b.Queue.Sub(b.Topic(TopicSend), func(topic string, payload []byte) {
		msg, err := decode[*msgs.Command](payload)
		if err != nil {
			glog.Warningf("%s: %v", topic, err)
			return
		}
		cmd, err := msg.CentralCommand()
		if err != nil {
			glog.Warningf("%s: %v", topic, err)
			return
		}
		if err := tr.SendCommand(uint8(msg.Source), cmd); err != nil {
			glog.Warningf("%s: send %v: %v", topic, cmd, err)
		}
	})
}

// ServePeripheral reports events received on TopicReport through tr.
func (b *Bridge) ServePeripheral(tr transport.PeripheralTransport) *Subscription {
	return b.Queue.Sub(b.Topic(TopicReport), func(topic string, payload []byte) {
		msg, err := decode[*msgs.Event](payload)
		if err != nil {
			glog.Warningf("%s: %v", topic, err)
			return
		}
		ev, err := msg.PeripheralEvent()
		if err != nil {
			glog.Warningf("%s: %v", topic, err)
			return
		}
		if err := tr.ReportEvent(ev); err != nil {
			glog.Warningf("%s: report %v: %v", topic, ev, err)
		}
	})
}

// Run implements framework.Runnable. The retained status is cleared on
// exit.
func (b *Bridge) Run(ctx context.Context) error {
	token := b.Queue.Connect()
	go func() {
		if token.Wait() && token.Error() != nil {
			glog.Errorf("MQTT connect: %v", token.Error())
		}
	}()
	<-ctx.Done()
	b.Queue.PubWith(b.Topic(TopicStatus), nil, 1, true).WaitTimeout(time.Second)
	b.Queue.Close()
	return ctx.Err()
}

// Name implements framework.Named.
func (b *Bridge) Name() string {
	return "mqtt-bridge"
}

func (b *Bridge) publishStatus() {
	b.statusLock.Lock()
	st := b.status
	b.statusLock.Unlock()
	if st == nil {
		return
	}
	b.publish(TopicStatus, msgs.NewStatus(b.Role, b.DeviceID, *st), true)
}

func (b *Bridge) publish(suffix string, msg msgs.SerializableMessage, retain bool) {
	data, err := msgs.Encode(msg)
	if err != nil {
		glog.Warningf("encode %T: %v", msg, err)
		return
	}
	qos := b.Queue.QoS
	if retain {
		qos = 1
	}
	b.Queue.PubWith(b.Topic(suffix), data, qos, retain)
}

func decode[T msgs.SerializableMessage](payload []byte) (T, error) {
	var zero T
	msg, err := msgs.DecodeMessage(payload)
	if err != nil {
		return zero, err
	}
	typed, ok := msg.(T)
	if !ok {
		return zero, &msgs.ErrUnknownType{TypeID: msg.TypeID()}
	}
	return typed, nil
}
