package wired

import (
	"fmt"
	"time"

	"github.com/robotalks/split.go/pkg/split/transport"
)

// Mode selects how bytes move between the UART and the ring buffers.
type Mode int

// Link modes.
const (
	ModePolling Mode = iota
	ModeInterrupt
	ModeAsync
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModePolling:
		return "polling"
	case ModeInterrupt:
		return "interrupt"
	case ModeAsync:
		return "async"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "polling", "poll":
		return ModePolling, nil
	case "interrupt", "irq":
		return ModeInterrupt, nil
	case "async", "dma":
		return ModeAsync, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Set implements flag.Value.
func (m *Mode) Set(s string) error {
	mode, err := ParseMode(s)
	if err == nil {
		*m = mode
	}
	return err
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	return m.Set(string(text))
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Config is the wiring and sizing of a wired split link.
type Config struct {
	Mode       Mode
	HalfDuplex bool

	// Buffer capacities in envelopes of the largest size.
	CmdBufferItems   int
	EventBufferItems int

	PollingRxPeriod             time.Duration
	HalfDuplexRxTimeout         time.Duration
	HalfDuplexRxCompleteTimeout time.Duration
	AsyncRxTimeout              time.Duration
	DetectDebounce              time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Mode:                        ModeInterrupt,
		CmdBufferItems:              4,
		EventBufferItems:            16,
		PollingRxPeriod:             time.Millisecond,
		HalfDuplexRxTimeout:         20 * time.Millisecond,
		HalfDuplexRxCompleteTimeout: 2 * time.Millisecond,
		AsyncRxTimeout:              20 * time.Microsecond,
		DetectDebounce:              50 * time.Millisecond,
	}
}

// CmdBufferSize is the byte capacity of the command direction.
func (c *Config) CmdBufferSize() int {
	return EnvelopeSize(transport.MaxCommandPayloadSize()) * c.CmdBufferItems
}

// EventBufferSize is the byte capacity of the event direction.
func (c *Config) EventBufferSize() int {
	return EnvelopeSize(transport.MaxEventPayloadSize()) * c.EventBufferItems
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.Mode < ModePolling || c.Mode > ModeAsync:
		return fmt.Errorf("invalid mode %v", c.Mode)
	case c.CmdBufferItems < 1 || c.EventBufferItems < 1:
		return fmt.Errorf("buffer items must be positive")
	case c.Mode == ModePolling && c.PollingRxPeriod <= 0:
		return fmt.Errorf("polling period must be positive")
	case c.HalfDuplex && (c.HalfDuplexRxTimeout <= 0 || c.HalfDuplexRxCompleteTimeout <= 0):
		return fmt.Errorf("half-duplex timeouts must be positive")
	}
	return nil
}
