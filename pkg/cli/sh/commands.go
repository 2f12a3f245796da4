package sh

import (
	"encoding/json"
	"flag"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/split.go/pkg/config"
	"github.com/robotalks/split.go/pkg/split/transport"
	"github.com/robotalks/split.go/pkg/uart"
)

// ParseCommand parses the arguments of the send command.
func ParseCommand(args []string) (cmd transport.CentralCommand, err error) {
	if len(args) == 0 {
		return cmd, fmt.Errorf("command type expected")
	}
	var p argParser
	p.args = args[1:]
	switch args[0] {
	case "poll":
		cmd = transport.PollEvents()
	case "layout":
		cmd = transport.SetPhysicalLayout(p.uint8("index"))
	case "hid":
		cmd = transport.SetHIDIndicators(p.uint8("indicators"))
	case "invoke":
		b := transport.InvokeBehavior{BehaviorDev: p.string("dev")}
		b.Param1 = p.uint32("param1")
		b.Param2 = p.uint32("param2")
		b.Position = p.uint32("position")
		b.EventSource = p.uint8("source")
		if p.bool("state") {
			b.State = 1
		}
		cmd = transport.InvokeBehaviorCommand(b)
	default:
		return cmd, fmt.Errorf("unknown command %q", args[0])
	}
	return cmd, p.done()
}

// ParseEvent parses the arguments of the report command.
func ParseEvent(args []string) (ev transport.PeripheralEvent, err error) {
	if len(args) == 0 {
		return ev, fmt.Errorf("event type expected")
	}
	var p argParser
	p.args = args[1:]
	switch args[0] {
	case "key":
		ev = transport.KeyPosition(p.uint8("position"), p.bool("pressed"))
	case "sensor":
		var s transport.SensorEvent
		s.Channel = p.uint32("channel")
		s.Val1 = p.int32("val1")
		s.Val2 = p.int32("val2")
		s.SensorIndex = p.uint8("index")
		ev = transport.Sensor(s)
	case "input":
		var in transport.InputEvent
		in.Reg = p.uint8("reg")
		in.Type = p.uint8("type")
		in.Code = uint16(p.uint("code", 16))
		in.Value = p.int32("value")
		in.Sync = p.bool("sync")
		ev = transport.Input(in)
	case "battery":
		ev = transport.Battery(p.uint8("level"))
	default:
		return ev, fmt.Errorf("unknown event %q", args[0])
	}
	return ev, p.done()
}

type argParser struct {
	args []string
	err  error
}

func (p *argParser) next(name string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	if len(p.args) == 0 {
		p.err = fmt.Errorf("missing %s", name)
		return "", false
	}
	arg := p.args[0]
	p.args = p.args[1:]
	return arg, true
}

func (p *argParser) string(name string) string {
	arg, _ := p.next(name)
	return arg
}

func (p *argParser) uint(name string, bits int) uint64 {
	arg, ok := p.next(name)
	if !ok {
		return 0
	}
	v, err := strconv.ParseUint(arg, 0, bits)
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %w", name, err)
	}
	return v
}

func (p *argParser) uint8(name string) uint8 {
	return uint8(p.uint(name, 8))
}

func (p *argParser) uint32(name string) uint32 {
	return uint32(p.uint(name, 32))
}

func (p *argParser) int32(name string) int32 {
	arg, ok := p.next(name)
	if !ok {
		return 0
	}
	v, err := strconv.ParseInt(arg, 0, 32)
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %w", name, err)
	}
	return int32(v)
}

func (p *argParser) bool(name string) bool {
	arg, ok := p.next(name)
	if !ok {
		return false
	}
	switch arg {
	case "down", "on", "pressed":
		return true
	case "up", "off", "released":
		return false
	}
	v, err := strconv.ParseBool(arg)
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %w", name, err)
	}
	return v
}

func (p *argParser) done() error {
	if p.err == nil && len(p.args) > 0 {
		p.err = fmt.Errorf("unexpected arguments %q", p.args)
	}
	return p.err
}

func printJSONOr(c *ishell.Context, v interface{}, text string) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		text = string(out)
	}
	c.Println(text)
}

var (
	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name:    "ports",
		Aliases: []string{"l"},
		Help:    "list serial ports",
		Func: func(c *ishell.Context) {
			ports, err := uart.SerialPorts()
			if err != nil {
				c.Err(err)
				return
			}
			if ports == nil {
				ports = []string{}
			}
			printJSONOr(c, ports, fmt.Sprintf("%d ports: %q", len(ports), ports))
		},
	}

	// OpenCmd opens a serial port.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[PORT [central|peripheral]]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				s.Config.Port = c.Args[0]
			}
			if len(c.Args) > 1 {
				s.Config.Role = c.Args[1]
			}
			if err := s.Open(); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the opened transport.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}

	// EnableCmd enables the transport.
	EnableCmd = ishell.Cmd{
		Name: "enable",
		Help: "",
		Func: MustBeOpen(func(c *ishell.Context, _ *Node) {
			if err := ShellFrom(c).setEnabled(true); err != nil {
				c.Err(err)
			}
		}),
	}

	// DisableCmd disables the transport. It requires a detect pin.
	DisableCmd = ishell.Cmd{
		Name: "disable",
		Help: "",
		Func: MustBeOpen(func(c *ishell.Context, _ *Node) {
			if err := ShellFrom(c).setEnabled(false); err != nil {
				c.Err(fmt.Errorf("%w (errno %d)", err, -int(transport.Errno(err))))
			}
		}),
	}

	// StatusCmd prints the transport status.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: MustBeOpen(func(c *ishell.Context, n *Node) {
			st := n.StatusReporter().Status()
			printJSONOr(c, st, fmt.Sprintf("available=%v enabled=%v connections=%v",
				st.Available, st.Enabled, st.Connections))
		}),
	}

	// StatsCmd prints buffer and arbitration counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "",
		Func: MustBeOpen(func(c *ishell.Context, n *Node) {
			stats := struct {
				TxPending int    `json:"tx_pending"`
				Arbiter   string `json:"arbiter,omitempty"`
				Grants    uint64 `json:"grants,omitempty"`
				Timeouts  uint64 `json:"timeouts,omitempty"`
			}{}
			if n.Central != nil {
				stats.TxPending = n.Central.TxPending()
				if a := n.Central.Arbiter(); a != nil {
					stats.Arbiter, stats.Grants, stats.Timeouts = a.State().String(), a.Grants(), a.Timeouts()
				}
			} else {
				stats.TxPending = n.Peripheral.TxPending()
			}
			text := fmt.Sprintf("tx_pending=%d", stats.TxPending)
			if stats.Arbiter != "" {
				text += fmt.Sprintf(" arbiter=%s grants=%d timeouts=%d", stats.Arbiter, stats.Grants, stats.Timeouts)
			}
			printJSONOr(c, stats, text)
		}),
	}

	// SendCmd sends a command from a Central.
	SendCmd = ishell.Cmd{
		Name: "send",
		Help: "poll | layout N | hid N | invoke DEV P1 P2 POS SRC STATE",
		Func: MustBeOpen(func(c *ishell.Context, n *Node) {
			if n.Central == nil {
				c.Err(fmt.Errorf("send requires the central role"))
				return
			}
			cmd, err := ParseCommand(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err := n.Central.SendCommand(transport.PeripheralID, cmd); err != nil {
				c.Err(err)
			}
		}),
	}

	// ReportCmd reports an event from a Peripheral.
	ReportCmd = ishell.Cmd{
		Name: "report",
		Help: "key POS down|up | sensor CH V1 V2 IDX | input REG TYPE CODE VALUE SYNC | battery LEVEL",
		Func: MustBeOpen(func(c *ishell.Context, n *Node) {
			if n.Peripheral == nil {
				c.Err(fmt.Errorf("report requires the peripheral role"))
				return
			}
			ev, err := ParseEvent(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err := n.Peripheral.ReportEvent(ev); err != nil {
				c.Err(err)
			}
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main(conf *config.Config) {
	New(conf).WithAutoOpen(true).Run(flag.Args()...)
}
