package motor

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/bridge.go/pkg/l0/comm"
	"github.com/robotalks/bridge.go/pkg/l0/doc"
)

// Supervisor owns the motor drivers. It applies command sets received
// from its intake queue and drives all motors to neutral when commands
// stop arriving for longer than Config.Timeout.
//
// A command set maps decimal motor indices (0-based) to throttle values
// (ModeThrottle) or pulse widths in microseconds (ModePulse).
type Supervisor struct {
	Config  Config
	Drivers []*Driver

	intake  chan *doc.Document
	dropped atomic.Uint64
	applied atomic.Uint64
	lastCmd atomic.Int64
	idle    bool
}

// NewSupervisor creates a Supervisor with one driver per output.
// Config.Count is updated to the number of outputs.
func NewSupervisor(conf Config, outputs []PWM) *Supervisor {
	conf.Count = len(outputs)
	s := &Supervisor{Config: conf}
	for n, out := range outputs {
		s.Drivers = append(s.Drivers, NewDriver(n, out, conf))
	}
	size := conf.QueueSize
	if size <= 0 {
		size = DefaultConfig().QueueSize
	}
	s.intake = make(chan *doc.Document, size)
	return s
}

// Name implements Named.
func (s *Supervisor) Name() string {
	return "motor-supervisor"
}

// Submit queues a command set without blocking. If the queue is full the
// command set is dropped and false is returned. The caller must not use
// d afterwards.
func (s *Supervisor) Submit(d *doc.Document) bool {
	select {
	case s.intake <- d:
		return true
	default:
		s.dropped.Add(1)
		glog.Warning("motor intake full, command dropped")
		return false
	}
}

// HandleDocument implements comm.Handler.
func (s *Supervisor) HandleDocument(ctx context.Context, ch comm.Channel, d *doc.Document) {
	s.Submit(d)
}

// Handler returns the handler to subscribe on the motor channel.
func (s *Supervisor) Handler() comm.Handler {
	return s
}

// Dropped returns the number of command sets dropped on full intake.
func (s *Supervisor) Dropped() uint64 {
	return s.dropped.Load()
}

// LastCommand returns the time of the last applied command, or the time
// neutral was last applied by the safety timeout.
func (s *Supervisor) LastCommand() time.Time {
	if ns := s.lastCmd.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return time.Time{}
}

// Duties returns the current duty of every motor.
func (s *Supervisor) Duties() []uint32 {
	duties := make([]uint32, len(s.Drivers))
	for n, drv := range s.Drivers {
		duties[n] = drv.Duty()
	}
	return duties
}

// Status builds the report of the supervisor.
func (s *Supervisor) Status() *doc.Document {
	duties := make([]doc.Value, len(s.Drivers))
	for n, drv := range s.Drivers {
		duties[n] = doc.Uint(uint64(drv.Duty()))
	}
	return doc.New().
		Set("count", doc.Int(int64(len(s.Drivers)))).
		Set("applied", doc.Uint(s.applied.Load())).
		Set("dropped", doc.Uint(s.Dropped())).
		Set("duty", doc.Array(duties...))
}

// Run implements Runnable. All motors are set to neutral on start and
// when ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.neutral(time.Now())
	defer s.neutral(time.Now())

	wait := s.Config.Wait
	if wait <= 0 {
		wait = DefaultConfig().Wait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		got := false
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-s.intake:
			got = s.apply(d, time.Now()) > 0
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}
		if !got {
			s.checkTimeout(time.Now())
		}
		timer.Reset(wait)
	}
}

func (s *Supervisor) apply(d *doc.Document, now time.Time) int {
	applied := 0
	d.Range(func(key string, v doc.Value) bool {
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || index >= len(s.Drivers) {
			glog.V(2).Infof("motor %q ignored", key)
			return true
		}
		if err := s.applyValue(s.Drivers[index], v); err != nil {
			glog.Warningf("motor command %s=%s: %v", key, v, err)
			return true
		}
		applied++
		return true
	})
	if applied > 0 {
		s.applied.Add(1)
		s.lastCmd.Store(now.UnixNano())
		s.idle = false
	}
	return applied
}

func (s *Supervisor) applyValue(drv *Driver, v doc.Value) error {
	if s.Config.Mode == ModePulse {
		us, ok := v.AsInt()
		if !ok {
			return fmt.Errorf("pulse width expected, got %s", v.Kind())
		}
		return drv.SetDutyUs(float64(us))
	}
	throttle, ok := v.AsFloat()
	if !ok {
		return fmt.Errorf("throttle expected, got %s", v.Kind())
	}
	return drv.SetThrottle(throttle)
}

// checkTimeout applies neutral once when no command has been applied for
// longer than Config.Timeout. It's not repeated until the next command.
func (s *Supervisor) checkTimeout(now time.Time) bool {
	if s.idle || now.Sub(s.LastCommand()) <= s.Config.Timeout {
		return false
	}
	glog.Warningf("no motor command in %v, set neutral", s.Config.Timeout)
	s.neutral(now)
	return true
}

func (s *Supervisor) neutral(now time.Time) {
	for _, drv := range s.Drivers {
		if err := drv.Neutral(); err != nil {
			glog.Errorf("neutral: %v", err)
		}
	}
	s.lastCmd.Store(now.UnixNano())
	s.idle = true
}
