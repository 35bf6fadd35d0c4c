package env

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"
	"gopkg.in/yaml.v3"

	fx "github.com/robotalks/bridge.go/pkg/framework"
	"github.com/robotalks/bridge.go/pkg/l0/comm"
	"github.com/robotalks/bridge.go/pkg/l0/control"
	"github.com/robotalks/bridge.go/pkg/l0/motor"
)

// LinkConfig configures the link and the router.
type LinkConfig struct {
	// URL of the link, see package link.
	URL          string        `yaml:"url"`
	RingSize     int           `yaml:"ring_size"`
	MaxFrameSize int           `yaml:"max_frame_size"`
	CRCPoly      uint8         `yaml:"crc_poly"`
	CRCInit      uint8         `yaml:"crc_init"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ControlConfig configures the control service.
type ControlConfig struct {
	QueueSize       int `yaml:"queue_size"`
	MaxResponseSize int `yaml:"max_response_size"`
}

// TelemetryConfig configures the telemetry publisher.
type TelemetryConfig struct {
	// StatsChannel publishes link stats when non-zero.
	StatsChannel  int           `yaml:"stats_channel"`
	StatsInterval time.Duration `yaml:"stats_interval"`
}

// MQTTConfig configures the relay.
type MQTTConfig struct {
	// URL of the broker, e.g. mqtt://host:port/topic-prefix
	URL      string `yaml:"url"`
	ClientID string `yaml:"client_id"`
	Channels []int  `yaml:"channels"`
}

// Config defines the bridge.
type Config struct {
	// File is the YAML config file, values in it override defaults and
	// environment variables, explicitly set flags override it.
	File string `yaml:"-"`

	ID           string          `yaml:"id"`
	LoopInterval time.Duration   `yaml:"loop_interval"`
	Link         LinkConfig      `yaml:"link"`
	Motor        motor.Config    `yaml:"motor"`
	Control      ControlConfig   `yaml:"control"`
	Telemetry    TelemetryConfig `yaml:"telemetry"`
	MQTT         MQTTConfig      `yaml:"mqtt"`
}

// Environment variables.
const (
	EnvLink    = "BRIDGE_LINK"
	EnvMQTTURL = "BRIDGE_MQTT_URL"
	EnvConfig  = "BRIDGE_CONFIG"
)

var defaultConfig = Config{
	LoopInterval: 20 * time.Millisecond,
	Link: LinkConfig{
		URL:          "/dev/ttyUSB0",
		RingSize:     comm.DefaultRingBufferSize,
		MaxFrameSize: comm.DefaultMaxFrameSize,
		CRCPoly:      comm.DefaultCRCPoly,
		CRCInit:      comm.DefaultCRCInit,
		PollInterval: comm.DefaultPollInterval,
	},
	Motor: motor.DefaultConfig(),
	Control: ControlConfig{
		QueueSize:       control.DefaultQueueSize,
		MaxResponseSize: control.DefaultMaxResponseSize,
	},
	Telemetry: TelemetryConfig{
		StatsChannel:  int(comm.ChannelAnalog),
		StatsInterval: 5 * time.Second,
	},
	MQTT: MQTTConfig{
		URL:      "mqtt://localhost:1883/bridge/",
		Channels: []int{2, 3, 4, 5, 6, 7, 254},
	},
}

func init() {
	defaultConfig.ID = MachineID()
	defaultConfig.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if val, ok := lookup(EnvLink); ok && val != "" {
		c.Link.URL = val
	}
	if val, ok := lookup(EnvMQTTURL); ok && val != "" {
		c.MQTT.URL = val
	}
	if val, ok := lookup(EnvConfig); ok && val != "" {
		c.File = val
	}
}

type flagBinding struct {
	name  string
	apply func(dst, src *Config)
}

var flagBindings []flagBinding

func bindFlag[T any](fs *flag.FlagSet, define func(*flag.FlagSet, *T, string, T, string), name string, field func(*Config) *T, usage string) {
	define(fs, field(&defaultConfig), name, *field(&defaultConfig), usage)
	flagBindings = append(flagBindings, flagBinding{
		name:  name,
		apply: func(dst, src *Config) { *field(dst) = *field(src) },
	})
}

// SetupFlags sets command line flags.
func SetupFlags() {
	SetupFlagSet(flag.CommandLine)
}

// SetupFlagSet sets flags on fs.
func SetupFlagSet(fs *flag.FlagSet) {
	flagBindings = nil
	fs.StringVar(&defaultConfig.File, "config", defaultConfig.File, "YAML config file")
	bindFlag(fs, (*flag.FlagSet).StringVar, "id", func(c *Config) *string { return &c.ID }, "Device ID")
	bindFlag(fs, (*flag.FlagSet).StringVar, "link", func(c *Config) *string { return &c.Link.URL }, "Link URL (serial device, serial://, ws://, tcp://)")
	bindFlag(fs, (*flag.FlagSet).IntVar, "ring-size", func(c *Config) *int { return &c.Link.RingSize }, "Ingestion buffer size")
	bindFlag(fs, (*flag.FlagSet).IntVar, "max-frame", func(c *Config) *int { return &c.Link.MaxFrameSize }, "Max encoded frame size")
	bindFlag(fs, (*flag.FlagSet).DurationVar, "loop-interval", func(c *Config) *time.Duration { return &c.LoopInterval }, "Control loop interval")
	bindFlag(fs, (*flag.FlagSet).IntVar, "motors", func(c *Config) *int { return &c.Motor.Count }, "Number of motors")
	bindFlag(fs, (*flag.FlagSet).Float64Var, "pwm-freq", func(c *Config) *float64 { return &c.Motor.Frequency }, "PWM frequency in Hz")
	bindFlag(fs, (*flag.FlagSet).UintVar, "pwm-bits", func(c *Config) *uint { return &c.Motor.Resolution }, "PWM duty resolution in bits")
	bindFlag(fs, (*flag.FlagSet).BoolVar, "bidirectional", func(c *Config) *bool { return &c.Motor.Bidirectional }, "Motors are bidirectional")
	bindFlag(fs, (*flag.FlagSet).Float64Var, "min-us", func(c *Config) *float64 { return &c.Motor.MinUs }, "Min pulse width in us")
	bindFlag(fs, (*flag.FlagSet).Float64Var, "center-us", func(c *Config) *float64 { return &c.Motor.CenterUs }, "Center pulse width in us")
	bindFlag(fs, (*flag.FlagSet).Float64Var, "max-us", func(c *Config) *float64 { return &c.Motor.MaxUs }, "Max pulse width in us")
	bindFlag(fs, func(fs *flag.FlagSet, p *motor.Mode, name string, value motor.Mode, usage string) {
		fs.Func(name, usage+fmt.Sprintf(" (default %q)", value), func(s string) error {
			*p = motor.Mode(s)
			return nil
		})
	}, "motor-mode", func(c *Config) *motor.Mode { return &c.Motor.Mode }, "Motor command mode: throttle or pulse")
	bindFlag(fs, (*flag.FlagSet).DurationVar, "motor-timeout", func(c *Config) *time.Duration { return &c.Motor.Timeout }, "Motor safety timeout")
	bindFlag(fs, (*flag.FlagSet).StringVar, "mqtt", func(c *Config) *string { return &c.MQTT.URL }, "MQTT broker URL")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with defaults, loading the config file if
// specified.
func NewConfig() (*Config, error) {
	return newConfig(flag.CommandLine)
}

func newConfig(fs *flag.FlagSet) (*Config, error) {
	conf := defaultConfig
	conf.MQTT.Channels = append([]int(nil), defaultConfig.MQTT.Channels...)
	if conf.File == "" {
		return &conf, conf.Validate()
	}
	if err := conf.LoadFile(conf.File); err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for _, b := range flagBindings {
		if set[b.name] {
			b.apply(&conf, &defaultConfig)
		}
	}
	return &conf, conf.Validate()
}

// MustNewConfig creates Config and fails on error.
func MustNewConfig() *Config {
	conf, err := NewConfig()
	if err != nil {
		glog.Exitf("config: %v", err)
	}
	return conf
}

// LoadFile overrides the config with values in the YAML file.
func (c *Config) LoadFile(fn string) error {
	data, err := os.ReadFile(fn)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", fn, err)
	}
	return nil
}

// Validate checks the config.
func (c *Config) Validate() error {
	var errs fx.AggregatedError
	if c.Link.RingSize < 2 {
		errs.Add(fmt.Errorf("invalid ring size %d", c.Link.RingSize))
	}
	if c.Link.MaxFrameSize < comm.MinMessageLen {
		errs.Add(fmt.Errorf("invalid max frame size %d", c.Link.MaxFrameSize))
	}
	if c.Telemetry.StatsChannel < 0 || c.Telemetry.StatsChannel > 255 {
		errs.Add(fmt.Errorf("invalid stats channel %d", c.Telemetry.StatsChannel))
	}
	for _, ch := range c.MQTT.Channels {
		if ch < 0 || ch > 255 {
			errs.Add(fmt.Errorf("invalid relay channel %d", ch))
		}
	}
	errs.Add(c.Motor.Validate())
	return errs.Aggregate()
}
