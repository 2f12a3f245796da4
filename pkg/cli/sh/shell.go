// Package sh provides an ishell backed interactive shell driving one half
// of a split link.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/split.go/pkg/config"
	"github.com/robotalks/split.go/pkg/split/transport"
	"github.com/robotalks/split.go/pkg/split/wired"
	"github.com/robotalks/split.go/pkg/uart"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool

	Shell  *ishell.Shell
	Config *config.Config
	Node   *Node
}

// Node is an opened transport of either role.
type Node struct {
	Role       string
	Central    *wired.Central
	Peripheral *wired.Peripheral

	closer io.Closer
}

// Close closes the transport and its hardware.
func (n *Node) Close() error {
	if n.Central != nil {
		n.Central.Close()
	}
	if n.Peripheral != nil {
		n.Peripheral.Close()
	}
	if n.closer != nil {
		return n.closer.Close()
	}
	return nil
}

// StatusReporter returns the transport of the node as a StatusReporter.
func (n *Node) StatusReporter() transport.StatusReporter {
	if n.Central != nil {
		return n.Central
	}
	return n.Peripheral
}

const (
	shellKey       = "$shell"
	unopenedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&PortsCmd,
		&OpenCmd,
		&CloseCmd,
		&EnableCmd,
		&DisableCmd,
		&StatusCmd,
		&StatsCmd,
		&SendCmd,
		&ReportCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *config.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unopenedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requires an opened transport.
func MustBeOpen(fn func(c *ishell.Context, n *Node)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		n := ShellFrom(c).Node
		if n == nil {
			c.Err(fmt.Errorf("not opened"))
			return
		}
		fn(c, n)
	}
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}

// Open opens the configured serial port in the configured role.
func (s *Shell) Open() error {
	hw, err := s.Config.OpenHardware()
	if err != nil {
		return err
	}
	if err := s.OpenDevice(hw.Port, hw, hw.Options...); err != nil {
		hw.Close()
		return err
	}
	return nil
}

// OpenDevice creates the transport on dev. closer is released with the
// node.
func (s *Shell) OpenDevice(dev uart.Device, closer io.Closer, opts ...wired.Option) (err error) {
	n := &Node{Role: s.Config.Role, closer: closer}
	switch n.Role {
	case config.RoleCentral:
		n.Central, err = wired.NewCentral(s.Config.Wired, dev, transport.HandlePeripheralEventFunc(s.printEvent), opts...)
	case config.RolePeripheral:
		n.Peripheral, err = wired.NewPeripheral(s.Config.Wired, dev, transport.HandleCentralCommandFunc(s.printCommand), opts...)
	default:
		err = fmt.Errorf("invalid role %q", n.Role)
	}
	if err != nil {
		return err
	}
	s.Close()
	s.Node = n
	if err := s.setEnabled(true); err != nil {
		return err
	}
	s.Shell.SetPrompt(fmt.Sprintf("%s@%s > ", n.Role, dev.Name()))
	return nil
}

// Close closes the opened transport.
func (s *Shell) Close() {
	if s.Node != nil {
		s.Node.Close()
		s.Node = nil
		s.Shell.SetPrompt(unopenedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoOpen && s.Config.Port != "" {
		if s.Interactive {
			s.Shell.Printf("Opening %s as %s ...\n", s.Config.Port, s.Config.Role)
		}
		if err := s.Open(); err != nil {
			log.Fatalf("open %q failed: %v", s.Config.Port, err)
		}
	}
	defer s.Close()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func (s *Shell) setEnabled(enabled bool) error {
	if s.Node.Central != nil {
		return s.Node.Central.SetEnabled(enabled)
	}
	return s.Node.Peripheral.SetEnabled(enabled)
}

func (s *Shell) printEvent(_ context.Context, _ transport.CentralTransport, source uint8, ev transport.PeripheralEvent) {
	s.print(struct {
		Source uint8  `json:"source"`
		Event  string `json:"event"`
	}{source, ev.String()}, fmt.Sprintf("EVENT[%d] %v", source, ev))
}

func (s *Shell) printCommand(_ context.Context, _ transport.PeripheralTransport, cmd transport.CentralCommand) {
	s.print(struct {
		Command string `json:"command"`
	}{cmd.String()}, fmt.Sprintf("COMMAND %v", cmd))
}

func (s *Shell) print(v interface{}, text string) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			s.Shell.Println(err)
			return
		}
		text = string(out)
	}
	s.Shell.Println(text)
}
