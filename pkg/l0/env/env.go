// Package env builds the runtime of a bridge from Config.
package env

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/bridge.go/pkg/framework"
	"github.com/robotalks/bridge.go/pkg/l0/comm"
	"github.com/robotalks/bridge.go/pkg/l0/control"
	"github.com/robotalks/bridge.go/pkg/l0/doc"
	"github.com/robotalks/bridge.go/pkg/l0/link"
	"github.com/robotalks/bridge.go/pkg/l0/motor"
	"github.com/robotalks/bridge.go/pkg/l0/relay/mqtt"
	"github.com/robotalks/bridge.go/pkg/l0/telemetry"
)

// Env is the link side of a bridge, shared by the device and hosts.
type Env struct {
	Config   *Config
	Link     io.ReadWriteCloser
	Buffer   *comm.RingBuffer
	Receiver *comm.Receiver
	Router   *comm.Router
}

// NewEnv opens the link and creates the Env.
func (c *Config) NewEnv(ctx context.Context) (*Env, error) {
	conn, err := link.Open(ctx, c.Link.URL)
	if err != nil {
		return nil, fmt.Errorf("open link %s: %w", c.Link.URL, err)
	}
	return c.NewEnvWith(conn), nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	e, err := c.NewEnv(context.Background())
	if err != nil {
		glog.Exit(err)
	}
	return e
}

// NewEnvWith creates the Env on an opened link.
func (c *Config) NewEnvWith(conn io.ReadWriteCloser) *Env {
	buf := comm.NewRingBuffer(c.Link.RingSize)
	router := comm.NewRouter(conn, buf)
	router.Checksum = comm.NewChecksum(c.Link.CRCPoly, c.Link.CRCInit)
	router.MaxFrameSize = c.Link.MaxFrameSize
	router.PollInterval = c.Link.PollInterval
	return &Env{
		Config:   c,
		Link:     conn,
		Buffer:   buf,
		Receiver: comm.NewReceiver(conn, router),
		Router:   router,
	}
}

// AddToLoop implements LoopAdder.
func (e *Env) AddToLoop(loop *fx.Loop) {
	loop.AddRunnable(e.Receiver, e.Router)
}

// Close closes the link.
func (e *Env) Close() error {
	return e.Link.Close()
}

// Device is the firmware side: motors, control and telemetry on top of
// the link.
type Device struct {
	*Env
	Supervisor *motor.Supervisor
	Control    *control.Service
	Telemetry  *telemetry.Publisher
	// Bus is shared by the board sensors added with AddSensor.
	Bus *telemetry.Bus
}

// NewDevice creates the Device with the motor outputs and subscribes its
// handlers.
func (e *Env) NewDevice(outputs []motor.PWM) *Device {
	c := e.Config
	d := &Device{
		Env:        e,
		Supervisor: motor.NewSupervisor(c.Motor, outputs),
		Control:    control.NewService(e.Router, c.ID, c.Control.QueueSize),
		Telemetry:  telemetry.NewPublisher(e.Router),
		Bus:        &telemetry.Bus{Name: "device"},
	}
	d.Control.MaxResponseSize = c.Control.MaxResponseSize
	d.Control.AddStatus("link", func() *doc.Document { return e.Router.Stats().Document() })
	d.Control.AddStatus("motors", d.Supervisor.Status)
	e.Router.Subscribe(comm.ChannelMotor, d.Supervisor.Handler())
	e.Router.Subscribe(comm.ChannelControl, d.Control)
	if ch := c.Telemetry.StatsChannel; ch > 0 {
		d.Telemetry.Add("link-stats", c.Telemetry.StatsInterval, telemetry.LinkStats(comm.Channel(ch), e.Router))
	}
	return d
}

// AddSensor schedules a board sensor. Its samples are serialized on Bus.
func (d *Device) AddSensor(name string, interval time.Duration, s telemetry.Sensor) *Device {
	d.Telemetry.Add(name, interval, telemetry.OnBus(d.Bus, s))
	return d
}

// AddToLoop implements LoopAdder.
func (d *Device) AddToLoop(loop *fx.Loop) {
	d.Env.AddToLoop(loop)
	loop.AddRunnable(d.Supervisor)
	loop.Add(d.Control, d.Telemetry)
}

// NewRelay creates the MQTT relay of the router channels.
func (e *Env) NewRelay() (*mqtt.Relay, error) {
	c := e.Config.MQTT
	clientID := c.ClientID
	if clientID == "" {
		clientID = "bridge-relay-" + e.Config.ID
	}
	q, err := mqtt.NewQueueFromURL(c.URL, clientID)
	if err != nil {
		return nil, fmt.Errorf("mqtt %s: %w", c.URL, err)
	}
	channels := make([]comm.Channel, len(c.Channels))
	for n, ch := range c.Channels {
		channels[n] = comm.Channel(ch)
	}
	return mqtt.NewRelay(q, e.Router, channels...), nil
}
