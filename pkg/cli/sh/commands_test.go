package sh

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/split.go/pkg/split/transport"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		args []string
		cmd  transport.CentralCommand
	}{
		{[]string{"poll"}, transport.PollEvents()},
		{[]string{"layout", "2"}, transport.SetPhysicalLayout(2)},
		{[]string{"hid", "0x05"}, transport.SetHIDIndicators(5)},
		{[]string{"invoke", "kp", "1", "2", "5", "0", "on"}, transport.InvokeBehaviorCommand(transport.InvokeBehavior{
			BehaviorDev: "kp", Param1: 1, Param2: 2, Position: 5, State: 1,
		})},
	}
	for _, c := range cases {
		cmd, err := ParseCommand(c.args)
		require.NoError(t, err, "%q", c.args)
		require.Equal(t, c.cmd, cmd)
	}

	for _, args := range [][]string{
		nil,
		{"reboot"},
		{"layout"},
		{"layout", "256"},
		{"hid", "1", "2"},
		{"invoke", "kp", "1"},
	} {
		_, err := ParseCommand(args)
		require.Error(t, err, "%q", args)
	}
}

func TestParseEvent(t *testing.T) {
	cases := []struct {
		args []string
		ev   transport.PeripheralEvent
	}{
		{[]string{"key", "42", "down"}, transport.KeyPosition(42, true)},
		{[]string{"key", "7", "up"}, transport.KeyPosition(7, false)},
		{[]string{"sensor", "1", "-5", "6", "2"}, transport.Sensor(transport.SensorEvent{Channel: 1, Val1: -5, Val2: 6, SensorIndex: 2})},
		{[]string{"input", "1", "2", "0x110", "-1", "true"}, transport.Input(transport.InputEvent{Reg: 1, Type: 2, Code: 0x110, Value: -1, Sync: true})},
		{[]string{"battery", "90"}, transport.Battery(90)},
	}
	for _, c := range cases {
		ev, err := ParseEvent(c.args)
		require.NoError(t, err, "%q", c.args)
		require.Equal(t, c.ev, ev)
	}

	for _, args := range [][]string{
		{},
		{"mouse"},
		{"key", "1", "maybe"},
		{"battery"},
		{"sensor", "1", "x", "1", "1"},
	} {
		_, err := ParseEvent(args)
		require.Error(t, err, "%q", args)
	}
}
