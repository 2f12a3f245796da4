// Package config provides the common options of split daemons and tools:
// built-in defaults, SPLIT_* environment variables, an optional TOML file
// and command line flags, in increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golang/glog"

	"github.com/robotalks/split.go/pkg/env"
	"github.com/robotalks/split.go/pkg/gpio"
	"github.com/robotalks/split.go/pkg/split/wired"
	"github.com/robotalks/split.go/pkg/uart"
)

// Roles of a split half.
const (
	RoleCentral    = wired.RoleCentral
	RolePeripheral = wired.RolePeripheral
)

// Config configures one split half.
type Config struct {
	Role     string
	DeviceID string

	// Port is the serial device path, e.g. /dev/ttyUSB0.
	Port string
	Baud int

	Wired wired.Config

	// DirPin and DetectPin name modem lines of Port, e.g. "rts" and "dcd".
	DirPin          string
	DetectPin       string
	DirInverted     bool
	DetectInverted  bool
	PinPollInterval time.Duration

	// MQTTBrokerURL e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
	// ListenAddr serves /metrics and /ws when not empty.
	ListenAddr string

	// File is the TOML file loaded by Load.
	File string
}

var defaultConfig = Config{
	Role:            RoleCentral,
	Baud:            115200,
	Wired:           wired.DefaultConfig(),
	PinPollInterval: 10 * time.Millisecond,
	ListenAddr:      ":9311",
}

func init() {
	defaultConfig.DeviceID = env.MachineID()
	if err := defaultConfig.ApplyEnv(os.LookupEnv); err != nil {
		glog.Warningf("environment: %v", err)
	}
}

// ApplyEnv applies SPLIT_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if val, ok := lookup(key); ok && val != "" {
			*dst = val
		}
	}
	str("SPLIT_ROLE", &c.Role)
	str("SPLIT_ID", &c.DeviceID)
	str("SPLIT_PORT", &c.Port)
	str("SPLIT_DIR_PIN", &c.DirPin)
	str("SPLIT_DETECT_PIN", &c.DetectPin)
	str("SPLIT_MQTT_URL", &c.MQTTBrokerURL)
	str("SPLIT_LISTEN", &c.ListenAddr)
	var errs []error
	if val, ok := lookup("SPLIT_BAUD"); ok && val != "" {
		baud, err := strconv.Atoi(val)
		if err != nil {
			errs = append(errs, fmt.Errorf("SPLIT_BAUD: %w", err))
		} else {
			c.Baud = baud
		}
	}
	if val, ok := lookup("SPLIT_MODE"); ok && val != "" {
		if err := c.Wired.Mode.Set(val); err != nil {
			errs = append(errs, fmt.Errorf("SPLIT_MODE: %w", err))
		}
	}
	if val, ok := lookup("SPLIT_HALF_DUPLEX"); ok && val != "" {
		hd, err := strconv.ParseBool(val)
		if err != nil {
			errs = append(errs, fmt.Errorf("SPLIT_HALF_DUPLEX: %w", err))
		} else {
			c.Wired.HalfDuplex = hd
		}
	}
	return errors.Join(errs...)
}

// SetupFlags sets up command line flags on the default config.
func SetupFlags() {
	defaultConfig.SetupFlags(flag.CommandLine)
}

// SetupFlags binds the options to fs. Flag names match the TOML keys.
func (c *Config) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.File, "config", c.File, "TOML configuration file.")
	fs.StringVar(&c.Role, "role", c.Role, "Split half role: central or peripheral.")
	fs.StringVar(&c.DeviceID, "id", c.DeviceID, "Device ID used by bridges.")
	fs.StringVar(&c.Port, "port", c.Port, "Serial port device.")
	fs.IntVar(&c.Baud, "baud", c.Baud, "Serial baud rate.")
	fs.Var(&c.Wired.Mode, "mode", "Link strategy: polling, interrupt or async.")
	fs.BoolVar(&c.Wired.HalfDuplex, "half-duplex", c.Wired.HalfDuplex, "Share one wire for both directions.")
	fs.IntVar(&c.Wired.CmdBufferItems, "cmd-buffer-items", c.Wired.CmdBufferItems, "Command buffer capacity in envelopes.")
	fs.IntVar(&c.Wired.EventBufferItems, "event-buffer-items", c.Wired.EventBufferItems, "Event buffer capacity in envelopes.")
	fs.DurationVar(&c.Wired.PollingRxPeriod, "polling-rx-period", c.Wired.PollingRxPeriod, "RX polling period in polling mode.")
	fs.DurationVar(&c.Wired.HalfDuplexRxTimeout, "rx-timeout", c.Wired.HalfDuplexRxTimeout, "Half-duplex wait for the peripheral to answer.")
	fs.DurationVar(&c.Wired.HalfDuplexRxCompleteTimeout, "rx-complete-timeout", c.Wired.HalfDuplexRxCompleteTimeout, "Half-duplex quiet time ending a peripheral burst.")
	fs.DurationVar(&c.Wired.DetectDebounce, "detect-debounce", c.Wired.DetectDebounce, "Detect pin debounce time.")
	fs.StringVar(&c.DirPin, "dir-pin", c.DirPin, "Modem line driving the transceiver direction, e.g. rts.")
	fs.StringVar(&c.DetectPin, "detect-pin", c.DetectPin, "Modem line sensing the other half, e.g. dcd.")
	fs.BoolVar(&c.DirInverted, "dir-inverted", c.DirInverted, "Direction pin is active low.")
	fs.BoolVar(&c.DetectInverted, "detect-inverted", c.DetectInverted, "Detect pin is active low.")
	fs.StringVar(&c.MQTTBrokerURL, "mqtt", c.MQTTBrokerURL, "MQTT broker URL, empty disables the bridge.")
	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "HTTP address for /metrics and /ws, empty disables it.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

type fileConfig struct {
	Role              string `toml:"role"`
	ID                string `toml:"id"`
	Port              string `toml:"port"`
	Baud              int    `toml:"baud"`
	Mode              string `toml:"mode"`
	HalfDuplex        bool   `toml:"half-duplex"`
	CmdBufferItems    int    `toml:"cmd-buffer-items"`
	EventBufferItems  int    `toml:"event-buffer-items"`
	PollingRxPeriod   string `toml:"polling-rx-period"`
	RxTimeout         string `toml:"rx-timeout"`
	RxCompleteTimeout string `toml:"rx-complete-timeout"`
	DetectDebounce    string `toml:"detect-debounce"`
	DirPin            string `toml:"dir-pin"`
	DetectPin         string `toml:"detect-pin"`
	DirInverted       bool   `toml:"dir-inverted"`
	DetectInverted    bool   `toml:"detect-inverted"`
	MQTT              string `toml:"mqtt"`
	Listen            string `toml:"listen"`
}

// LoadFile applies the keys defined in a TOML file, except those listed
// in skip.
func (c *Config) LoadFile(path string, skip map[string]bool) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	defined := func(key string) bool {
		return meta.IsDefined(key) && !skip[key]
	}
	duration := func(key, val string, dst *time.Duration) error {
		if !defined(key) {
			return nil
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	if defined("role") {
		c.Role = raw.Role
	}
	if defined("id") {
		c.DeviceID = raw.ID
	}
	if defined("port") {
		c.Port = raw.Port
	}
	if defined("baud") {
		c.Baud = raw.Baud
	}
	if defined("mode") {
		if err := c.Wired.Mode.Set(raw.Mode); err != nil {
			return err
		}
	}
	if defined("half-duplex") {
		c.Wired.HalfDuplex = raw.HalfDuplex
	}
	if defined("cmd-buffer-items") {
		c.Wired.CmdBufferItems = raw.CmdBufferItems
	}
	if defined("event-buffer-items") {
		c.Wired.EventBufferItems = raw.EventBufferItems
	}
	if defined("dir-pin") {
		c.DirPin = raw.DirPin
	}
	if defined("detect-pin") {
		c.DetectPin = raw.DetectPin
	}
	if defined("dir-inverted") {
		c.DirInverted = raw.DirInverted
	}
	if defined("detect-inverted") {
		c.DetectInverted = raw.DetectInverted
	}
	if defined("mqtt") {
		c.MQTTBrokerURL = raw.MQTT
	}
	if defined("listen") {
		c.ListenAddr = raw.Listen
	}
	return errors.Join(
		duration("polling-rx-period", raw.PollingRxPeriod, &c.Wired.PollingRxPeriod),
		duration("rx-timeout", raw.RxTimeout, &c.Wired.HalfDuplexRxTimeout),
		duration("rx-complete-timeout", raw.RxCompleteTimeout, &c.Wired.HalfDuplexRxCompleteTimeout),
		duration("detect-debounce", raw.DetectDebounce, &c.Wired.DetectDebounce),
	)
}

// Load applies the file named by -config, keeping values explicitly set
// on the command line of fs.
func (c *Config) Load(fs *flag.FlagSet) error {
	if c.File == "" {
		return nil
	}
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	return c.LoadFile(c.File, explicit)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Role != RoleCentral && c.Role != RolePeripheral {
		return fmt.Errorf("invalid role %q", c.Role)
	}
	if c.Port == "" {
		return errors.New("serial port must be specified")
	}
	if c.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	}
	if c.DirPin != "" {
		line, err := gpio.ParseModemLine(c.DirPin)
		if err != nil {
			return err
		}
		if !line.IsOutput() {
			return fmt.Errorf("direction pin %s is not an output", c.DirPin)
		}
	}
	if c.DetectPin != "" {
		if _, err := gpio.ParseModemLine(c.DetectPin); err != nil {
			return err
		}
	}
	return c.Wired.Validate()
}

// Hardware is the opened serial port with its pins as wired options.
type Hardware struct {
	Port    *uart.Port
	Options []wired.Option

	pins []*gpio.ModemPin
}

// Close releases pins and the port.
func (h *Hardware) Close() error {
	for _, pin := range h.pins {
		pin.Close()
	}
	return h.Port.Close()
}

// OpenHardware opens the serial port and its modem line pins.
func (c *Config) OpenHardware() (*Hardware, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	port, err := uart.OpenSerial(c.Port, c.Baud)
	if err != nil {
		return nil, err
	}
	hw := &Hardware{Port: port}
	pin := func(name string, inverted bool) *gpio.ModemPin {
		line, _ := gpio.ParseModemLine(name)
		p := gpio.NewModemPin(port.Serial(), line)
		p.Inverted, p.PollInterval = inverted, c.PinPollInterval
		hw.pins = append(hw.pins, p)
		return p
	}
	if c.DirPin != "" {
		hw.Options = append(hw.Options, wired.WithDirectionPin(pin(c.DirPin, c.DirInverted)))
	}
	if c.DetectPin != "" {
		hw.Options = append(hw.Options, wired.WithDetectPin(pin(c.DetectPin, c.DetectInverted)))
	}
	return hw, nil
}

// MustOpenHardware opens the hardware and fails on error.
func (c *Config) MustOpenHardware() *Hardware {
	hw, err := c.OpenHardware()
	if err != nil {
		log.Fatalln(err)
	}
	return hw
}
