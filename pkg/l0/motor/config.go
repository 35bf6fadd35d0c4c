package motor

import (
	"fmt"
	"time"
)

// Mode selects how command values are interpreted.
type Mode string

// Command modes.
const (
	// ModeThrottle takes normalized throttle values.
	ModeThrottle Mode = "throttle"
	// ModePulse takes raw pulse widths in microseconds.
	ModePulse Mode = "pulse"
)

// Config defines the motor outputs and the supervisor behavior.
type Config struct {
	Count         int           `yaml:"count"`
	Frequency     float64       `yaml:"frequency"`
	Resolution    uint          `yaml:"resolution"`
	Bidirectional bool          `yaml:"bidirectional"`
	MinUs         float64       `yaml:"min_us"`
	CenterUs      float64       `yaml:"center_us"`
	MaxUs         float64       `yaml:"max_us"`
	Mode          Mode          `yaml:"mode"`
	QueueSize     int           `yaml:"queue_size"`
	Timeout       time.Duration `yaml:"timeout"`
	Wait          time.Duration `yaml:"wait"`
}

// DefaultConfig returns the config of typical hobby ESCs.
func DefaultConfig() Config {
	return Config{
		Count:         8,
		Frequency:     400,
		Resolution:    16,
		Bidirectional: true,
		MinUs:         1100,
		CenterUs:      1500,
		MaxUs:         1900,
		Mode:          ModeThrottle,
		QueueSize:     10,
		Timeout:       500 * time.Millisecond,
		Wait:          20 * time.Millisecond,
	}
}

// MaxDuty is the duty value of a full period.
func (c *Config) MaxDuty() uint32 {
	return uint32(1)<<c.Resolution - 1
}

// PeriodUs is the PWM period in microseconds.
func (c *Config) PeriodUs() float64 {
	return 1e6 / c.Frequency
}

// NeutralUs is the pulse width of no motion.
func (c *Config) NeutralUs() float64 {
	if c.Bidirectional {
		return c.CenterUs
	}
	return c.MinUs
}

// Validate checks the config is usable.
func (c *Config) Validate() error {
	switch {
	case c.Count <= 0:
		return fmt.Errorf("invalid motor count %d", c.Count)
	case c.Frequency <= 0:
		return fmt.Errorf("invalid PWM frequency %v", c.Frequency)
	case c.Resolution == 0 || c.Resolution > 31:
		return fmt.Errorf("invalid PWM resolution %d", c.Resolution)
	case c.MinUs < 0 || c.MinUs > c.MaxUs:
		return fmt.Errorf("invalid pulse range [%v, %v]", c.MinUs, c.MaxUs)
	case c.Bidirectional && (c.CenterUs < c.MinUs || c.CenterUs > c.MaxUs):
		return fmt.Errorf("center pulse %v outside [%v, %v]", c.CenterUs, c.MinUs, c.MaxUs)
	case c.MaxUs > c.PeriodUs():
		return fmt.Errorf("max pulse %vus exceeds PWM period %vus", c.MaxUs, c.PeriodUs())
	case c.Mode != ModeThrottle && c.Mode != ModePulse:
		return fmt.Errorf("unknown command mode %q", c.Mode)
	case c.QueueSize <= 0:
		return fmt.Errorf("invalid queue size %d", c.QueueSize)
	case c.Timeout <= 0 || c.Wait <= 0:
		return fmt.Errorf("timeout and wait must be positive")
	}
	return nil
}
