package telemetry

import (
	"context"
	"sync"
)

// Bus serializes access to a device bus shared by several sensors.
// The lock is held for a single request/response exchange.
type Bus struct {
	Name string

	lock sync.Mutex
}

// Exchange runs fn with the bus locked.
func (b *Bus) Exchange(fn func() error) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	return fn()
}

// OnBus wraps s so each sample runs as one exchange on bus.
func OnBus(bus *Bus, s Sensor) Sensor {
	return SensorFunc(func(ctx context.Context, out Emitter) error {
		return bus.Exchange(func() error {
			return s.Sample(ctx, out)
		})
	})
}
