package motor

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/golang/glog"
)

var (
	// ErrPulseOutOfRange indicates a pulse width outside [min, max].
	ErrPulseOutOfRange = errors.New("pulse width out of range")
	// ErrInvalidThrottle indicates a NaN throttle.
	ErrInvalidThrottle = errors.New("invalid throttle")
)

// Driver converts throttle or pulse widths to duty values of one output.
type Driver struct {
	Index  int
	Output PWM

	conf Config
	duty atomic.Uint32
}

// NewDriver creates a Driver. It doesn't touch the output until the first
// command or Neutral.
func NewDriver(index int, output PWM, conf Config) *Driver {
	return &Driver{Index: index, Output: output, conf: conf}
}

// Duty returns the last applied duty value.
func (d *Driver) Duty() uint32 {
	return d.duty.Load()
}

// PulseToDuty converts a pulse width to the duty value, truncated to
// the output resolution.
func (d *Driver) PulseToDuty(us float64) uint32 {
	return uint32(us * float64(d.conf.MaxDuty()) / d.conf.PeriodUs())
}

// ThrottleToPulse maps a normalized throttle to the pulse width.
// Bidirectional throttle in [-1, 1] maps 0 to center, others in [0, 1]
// map 0 to min. Values are clamped.
func (d *Driver) ThrottleToPulse(v float64) float64 {
	c := &d.conf
	if c.Bidirectional {
		v = math.Max(-1, math.Min(1, v))
		if v >= 0 {
			return c.CenterUs + (c.MaxUs-c.CenterUs)*v
		}
		return c.CenterUs + (c.CenterUs-c.MinUs)*v
	}
	v = math.Max(0, math.Min(1, v))
	return c.MinUs + (c.MaxUs-c.MinUs)*v
}

// SetThrottle applies a normalized throttle.
func (d *Driver) SetThrottle(v float64) error {
	if math.IsNaN(v) {
		return ErrInvalidThrottle
	}
	return d.apply(d.PulseToDuty(d.ThrottleToPulse(v)))
}

// SetDutyUs applies a pulse width directly. Widths outside [min, max] are
// rejected and nothing is applied.
func (d *Driver) SetDutyUs(us float64) error {
	if math.IsNaN(us) || us < d.conf.MinUs || us > d.conf.MaxUs {
		glog.Warningf("motor %d: pulse %vus outside [%v, %v]", d.Index, us, d.conf.MinUs, d.conf.MaxUs)
		return fmt.Errorf("motor %d: %w: %v", d.Index, ErrPulseOutOfRange, us)
	}
	return d.apply(d.PulseToDuty(us))
}

// Neutral applies the pulse width of no motion.
func (d *Driver) Neutral() error {
	return d.apply(d.NeutralDuty())
}

// NeutralDuty is the duty value of no motion.
func (d *Driver) NeutralDuty() uint32 {
	return d.PulseToDuty(d.conf.NeutralUs())
}

func (d *Driver) apply(duty uint32) error {
	if err := d.Output.SetDuty(duty); err != nil {
		return fmt.Errorf("motor %d: %w", d.Index, err)
	}
	d.duty.Store(duty)
	return nil
}
