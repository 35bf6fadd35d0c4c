package telemetry

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/bridge.go/pkg/l0/comm"
	"github.com/robotalks/bridge.go/pkg/l0/doc"
)

type recordEmitter struct {
	channels []comm.Channel
	docs     []*doc.Document
}

func (e *recordEmitter) Publish(ch comm.Channel, d *doc.Document) error {
	e.channels = append(e.channels, ch)
	e.docs = append(e.docs, d)
	return nil
}

func TestPublisherSchedule(t *testing.T) {
	out := &recordEmitter{}
	p := NewPublisher(out)
	p.Add("env", 100*time.Millisecond, Single(comm.ChannelEnvironment, func(context.Context) (*doc.Document, error) {
		return doc.New().Set("t", doc.Float(21.5)), nil
	}))
	p.Add("imu", 50*time.Millisecond, SensorFunc(func(ctx context.Context, out Emitter) error {
		out.Publish(comm.ChannelAccel, doc.New().Set("x", doc.Float(0)))
		return out.Publish(comm.ChannelGyro, doc.New().Set("x", doc.Float(0)))
	}))

	t0 := time.Now()
	ctx := context.Background()
	require.NoError(t, p.Poll(ctx, t0))
	require.Equal(t, []comm.Channel{comm.ChannelEnvironment, comm.ChannelAccel, comm.ChannelGyro}, out.channels)

	out.channels = nil
	require.NoError(t, p.Poll(ctx, t0.Add(20*time.Millisecond)))
	require.Empty(t, out.channels)
	require.NoError(t, p.Poll(ctx, t0.Add(50*time.Millisecond)))
	require.Equal(t, []comm.Channel{comm.ChannelAccel, comm.ChannelGyro}, out.channels)

	out.channels = nil
	require.NoError(t, p.Poll(ctx, t0.Add(100*time.Millisecond)))
	require.Equal(t, []comm.Channel{comm.ChannelEnvironment, comm.ChannelAccel, comm.ChannelGyro}, out.channels)
}

func TestPublisherErrors(t *testing.T) {
	out := &recordEmitter{}
	p := NewPublisher(out)
	errBus := errors.New("bus error")
	p.Add("bad", time.Second, Single(comm.ChannelAnalog, func(context.Context) (*doc.Document, error) {
		return nil, errBus
	}))
	p.Add("none", time.Second, Single(comm.ChannelDigital, func(context.Context) (*doc.Document, error) {
		return nil, nil
	}))
	p.Add("good", time.Second, Single(comm.ChannelDigital, func(context.Context) (*doc.Document, error) {
		return doc.New().Set("v", doc.Bool(true)), nil
	}))
	err := p.Poll(context.Background(), time.Now())
	require.Error(t, err)
	require.Equal(t, errBus.Error(), err.Error())
	require.Equal(t, []comm.Channel{comm.ChannelDigital}, out.channels)
}

func TestLinkStats(t *testing.T) {
	r := comm.NewRouter(io.Discard, comm.NewRingBuffer(16))
	require.NoError(t, r.Publish(comm.ChannelMotor, doc.New()))
	out := &recordEmitter{}
	require.NoError(t, LinkStats(comm.ChannelAnalog, r).Sample(context.Background(), out))
	require.Len(t, out.docs, 1)
	require.Equal(t, comm.ChannelAnalog, out.channels[0])
	v, ok := out.docs[0].Get("published")
	require.True(t, ok)
	require.True(t, doc.Int(1).Equal(v))
}

func TestBusExclusive(t *testing.T) {
	var bus Bus
	var inflight, maxInflight atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Exchange(func() error {
					n := inflight.Add(1)
					if n > maxInflight.Load() {
						maxInflight.Store(n)
					}
					inflight.Add(-1)
					return nil
				})
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxInflight.Load())

	errBus := errors.New("nack")
	require.Equal(t, errBus, bus.Exchange(func() error { return errBus }))
}

func TestOnBus(t *testing.T) {
	var bus Bus
	var inflight, maxInflight atomic.Int32
	s := OnBus(&bus, SensorFunc(func(ctx context.Context, out Emitter) error {
		n := inflight.Add(1)
		if n > maxInflight.Load() {
			maxInflight.Store(n)
		}
		time.Sleep(time.Millisecond)
		inflight.Add(-1)
		return out.Publish(comm.ChannelAnalog, doc.New().Set("v", doc.Int(1)))
	}))
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Exchange(func() error {
				n := inflight.Add(1)
				if n > maxInflight.Load() {
					maxInflight.Store(n)
				}
				inflight.Add(-1)
				return nil
			})
		}()
	}
	out := &recordEmitter{}
	require.NoError(t, s.Sample(context.Background(), out))
	wg.Wait()
	require.Equal(t, int32(1), maxInflight.Load())
	require.Equal(t, []comm.Channel{comm.ChannelAnalog}, out.channels)
}
