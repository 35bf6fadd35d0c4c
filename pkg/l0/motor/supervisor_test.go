package motor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/bridge.go/pkg/l0/comm"
	"github.com/robotalks/bridge.go/pkg/l0/doc"
)

func newTestSupervisor(conf Config) (*Supervisor, []*recordPWM) {
	recs := make([]*recordPWM, conf.Count)
	outputs := make([]PWM, conf.Count)
	for n := range recs {
		recs[n] = &recordPWM{}
		outputs[n] = recs[n]
	}
	return NewSupervisor(conf, outputs), recs
}

func TestSupervisorApplyThrottle(t *testing.T) {
	s, recs := newTestSupervisor(DefaultConfig())
	now := time.Now()
	cmd := doc.New().
		SetIndex(0, doc.Float(0.5)).
		SetIndex(1, doc.Int(1)).
		SetIndex(8, doc.Float(1)).
		Set("x", doc.Float(1)).
		SetIndex(2, doc.String("fast"))
	require.Equal(t, 2, s.apply(cmd, now))
	require.Equal(t, uint32(44563), s.Drivers[0].Duty())
	require.Equal(t, uint32(49806), s.Drivers[1].Duty())
	require.Empty(t, recs[2].history())
	require.Equal(t, now.UnixNano(), s.LastCommand().UnixNano())

	later := now.Add(time.Second)
	require.Zero(t, s.apply(doc.New().SetIndex(9, doc.Float(1)), later))
	require.Equal(t, now.UnixNano(), s.LastCommand().UnixNano())
}

func TestSupervisorApplyPulse(t *testing.T) {
	conf := DefaultConfig()
	conf.Mode = ModePulse
	s, recs := newTestSupervisor(conf)
	cmd := doc.New().
		SetIndex(0, doc.Int(1600)).
		SetIndex(1, doc.Float(1600.7)).
		SetIndex(2, doc.Int(2000)).
		SetIndex(3, doc.Bool(true))
	require.Equal(t, 2, s.apply(cmd, time.Now()))
	require.Equal(t, uint32(41942), s.Drivers[0].Duty())
	require.Equal(t, uint32(41942), s.Drivers[1].Duty())
	require.Empty(t, recs[2].history())
	require.Empty(t, recs[3].history())
}

func TestSupervisorTimeout(t *testing.T) {
	s, recs := newTestSupervisor(DefaultConfig())
	t0 := time.Now()
	require.Equal(t, 1, s.apply(doc.New().SetIndex(0, doc.Float(1)), t0))

	require.False(t, s.checkTimeout(t0.Add(400*time.Millisecond)))
	require.False(t, s.checkTimeout(t0.Add(500*time.Millisecond)))
	require.True(t, s.checkTimeout(t0.Add(600*time.Millisecond)))
	neutral := s.Drivers[0].NeutralDuty()
	for n, rec := range recs {
		duty, ok := rec.last()
		require.True(t, ok, "motor %d", n)
		require.Equal(t, neutral, duty, "motor %d", n)
	}
	require.Equal(t, t0.Add(600*time.Millisecond).UnixNano(), s.LastCommand().UnixNano())

	// no repeated neutral in the same idle period
	require.False(t, s.checkTimeout(t0.Add(1200*time.Millisecond)))
	require.False(t, s.checkTimeout(t0.Add(time.Hour)))
	require.Equal(t, []uint32{49806, neutral}, recs[0].history())
	require.Len(t, recs[1].history(), 1)

	t1 := t0.Add(2 * time.Hour)
	require.Equal(t, 1, s.apply(doc.New().SetIndex(1, doc.Float(-1)), t1))
	require.False(t, s.checkTimeout(t1.Add(100*time.Millisecond)))
	require.True(t, s.checkTimeout(t1.Add(501*time.Millisecond)))
	require.Equal(t, []uint32{28835, neutral}, recs[1].history()[1:])
}

func TestSupervisorSubmitDropsOnFull(t *testing.T) {
	conf := DefaultConfig()
	conf.QueueSize = 2
	s, _ := newTestSupervisor(conf)
	require.True(t, s.Submit(doc.New()))
	require.True(t, s.Submit(doc.New()))
	require.False(t, s.Submit(doc.New()))
	require.Equal(t, uint64(1), s.Dropped())

	st := s.Status()
	dropped, ok := st.Get("dropped")
	require.True(t, ok)
	require.True(t, doc.Int(1).Equal(dropped))
}

func TestSupervisorFromRouter(t *testing.T) {
	s, _ := newTestSupervisor(DefaultConfig())
	r := comm.NewRouter(io.Discard, comm.NewRingBuffer(256))
	r.Subscribe(comm.ChannelMotor, s.Handler())

	cmd := doc.New().SetIndex(1, doc.Float(0.5))
	for _, b := range (&comm.Message{Channel: comm.ChannelMotor, Payload: cmd.Encode()}).Bytes(comm.DefaultChecksum) {
		r.Buffer.Push(b)
	}
	require.Equal(t, 1, r.Pump(context.Background()))
	received := <-s.intake
	require.True(t, cmd.Equal(received))
	require.Equal(t, 1, s.apply(received, time.Now()))
	require.Equal(t, uint32(44563), s.Drivers[1].Duty())
}

func TestSupervisorRun(t *testing.T) {
	conf := DefaultConfig()
	conf.Count = 2
	conf.Wait = 5 * time.Millisecond
	conf.Timeout = 50 * time.Millisecond
	s, recs := newTestSupervisor(conf)
	neutral := s.Drivers[0].NeutralDuty()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		duty, ok := recs[1].last()
		return ok && duty == neutral
	}, time.Second, time.Millisecond)

	require.True(t, s.Submit(doc.New().SetIndex(0, doc.Float(1))))
	require.Eventually(t, func() bool {
		return s.Drivers[0].Duty() == 49806
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return s.Drivers[0].Duty() == neutral
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		require.Fail(t, "supervisor not stopped")
	}
}
