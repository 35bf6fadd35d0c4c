// Package telemetry publishes sensor readings through the router.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/bridge.go/pkg/framework"
	"github.com/robotalks/bridge.go/pkg/l0/comm"
	"github.com/robotalks/bridge.go/pkg/l0/doc"
)

// Emitter sends a reading on a channel. *comm.Router implements it.
type Emitter interface {
	Publish(comm.Channel, *doc.Document) error
}

// Sensor produces readings. One sample may emit several documents, e.g.
// one per board on a bus, or accel/gyro on separate channels.
type Sensor interface {
	Sample(ctx context.Context, out Emitter) error
}

// SensorFunc is the func form of Sensor.
type SensorFunc func(context.Context, Emitter) error

// Sample implements Sensor.
func (f SensorFunc) Sample(ctx context.Context, out Emitter) error {
	return f(ctx, out)
}

// Single adapts a function producing one document on a fixed channel.
func Single(ch comm.Channel, fn func(context.Context) (*doc.Document, error)) Sensor {
	return SensorFunc(func(ctx context.Context, out Emitter) error {
		d, err := fn(ctx)
		if err != nil || d == nil {
			return err
		}
		return out.Publish(ch, d)
	})
}

type scheduled struct {
	name     string
	interval time.Duration
	sensor   Sensor
	next     time.Time
}

// Publisher samples sensors at their own intervals. It's a Loop
// controller, so the effective resolution is the loop interval.
type Publisher struct {
	Emitter Emitter

	lock    sync.Mutex
	sensors []*scheduled
}

// NewPublisher creates a Publisher.
func NewPublisher(out Emitter) *Publisher {
	return &Publisher{Emitter: out}
}

// Add schedules a sensor. It's sampled in the first iteration.
func (p *Publisher) Add(name string, interval time.Duration, s Sensor) *Publisher {
	p.lock.Lock()
	p.sensors = append(p.sensors, &scheduled{name: name, interval: interval, sensor: s})
	p.lock.Unlock()
	return p
}

// AddToLoop implements LoopAdder.
func (p *Publisher) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvReport, p)
}

// Control implements Controller.
func (p *Publisher) Control(cc fx.ControlContext) error {
	return p.Poll(cc.Context(), cc.Time())
}

// Poll samples the sensors due at now.
func (p *Publisher) Poll(ctx context.Context, now time.Time) error {
	p.lock.Lock()
	sensors := p.sensors
	p.lock.Unlock()

	var errs fx.AggregatedError
	for _, s := range sensors {
		if now.Before(s.next) {
			continue
		}
		s.next = now.Add(s.interval)
		if err := s.sensor.Sample(ctx, p.Emitter); err != nil {
			glog.V(2).Infof("sensor %s: %v", s.name, err)
			errs.Add(err)
		}
	}
	return errs.Aggregate()
}
