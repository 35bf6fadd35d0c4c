package framework

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Aggregate())
	errs.Add(nil, errors.New("a"), nil)
	require.EqualError(t, errs.Aggregate(), "a")
	errs.Add(errors.New("b"))
	require.Equal(t, "multiple errors:\n  a\n  b", errs.Aggregate().Error())
}

func TestRunnerWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunnerWith(ctx)
	r.Go(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), NamedRun("fail", RunFunc(func(context.Context) error {
		return errors.New("failed")
	})))
	cancel()
	require.EqualError(t, r.Wait(), "failed")
}

func TestRunWithContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan struct{})
	go cancel()
	err := RunWithContextCancel(ctx, func() { close(stop) }, func() error {
		<-stop
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	err = RunWithContextCancel(context.Background(), nil, func() error {
		return errors.New("done")
	})
	require.EqualError(t, err, "done")
}

type recordCloser struct {
	closed atomic.Int32
}

func (c *recordCloser) Close() error {
	c.closed.Add(1)
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	var c recordCloser
	require.NoError(t, RunWithContextCloser(context.Background(), &c, func() error { return nil }))
	require.EqualValues(t, 1, c.closed.Load())
}

func TestLoopPriorityOrder(t *testing.T) {
	var (
		lock  sync.Mutex
		order []int
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	record := func(n int) Controller {
		return ControlFunc(func(cc ControlContext) error {
			require.Equal(t, n, cc.PriorityLevel())
			lock.Lock()
			order = append(order, n)
			done := len(order) == 3
			lock.Unlock()
			if done {
				cancel()
			}
			return nil
		})
	}
	l := NewLoop()
	l.Interval = time.Millisecond
	l.AddController(PrLvReport, record(PrLvReport))
	l.AddController(PrLvSense, record(PrLvSense))
	l.AddController(PrLvControl, record(PrLvControl))
	require.ErrorIs(t, l.Run(ctx), context.Canceled)
	lock.Lock()
	defer lock.Unlock()
	require.Equal(t, []int{PrLvSense, PrLvControl, PrLvReport}, order[:3])
}

func TestLoopTriggerNext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ran := make(chan struct{}, 1)
	l := NewLoop()
	l.Interval = time.Hour
	l.AddController(PrLvNormal, ControlFunc(func(ControlContext) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))
	l.AddRunnable(RunFunc(func(ctx context.Context) error {
		LoopCtlFrom(ctx).TriggerNext()
		<-ctx.Done()
		return ctx.Err()
	}))
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("controller not triggered")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestLoopTaskFailure(t *testing.T) {
	l := NewLoop()
	l.AddRunnable(NamedRun("broken", RunFunc(func(context.Context) error {
		return errors.New("broken")
	})))
	require.EqualError(t, l.Run(context.Background()), "broken")
}
