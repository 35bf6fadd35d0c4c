package framework

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultLoopInterval is used when Loop.Interval is not set.
const DefaultLoopInterval = 100 * time.Millisecond

// Loop runs controllers cooperatively at a fixed interval, ordered by
// priority level, and hosts the Runnables added to it.
type Loop struct {
	Interval time.Duration

	controllers [PriorityLevels][]Controller
	runners     []Runnable
	lock        sync.Mutex

	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to a loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type loopCtl struct {
	*Loop
}

type loopIteration struct {
	loopCtl
	ctx           context.Context
	time          time.Time
	priorityLevel int
}

var loopCtxKey = &Loop{}

// LoopCtlFrom gets LoopControl from the context passed to Runnables
// started by the loop.
func LoopCtlFrom(ctx context.Context) LoopControl {
	ctl, _ := ctx.Value(loopCtxKey).(LoopControl)
	return ctl
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{
		Interval: DefaultLoopInterval,
		wakeUpCh: make(chan struct{}, 1),
	}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at the priority level.
// Controllers implementing Runnable are also started as tasks.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.controllers[priorityLevel] = append(l.controllers[priorityLevel], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds tasks started with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.lock.Lock()
	l.runners = append(l.runners, runnables...)
	l.lock.Unlock()
	return l
}

// Run implements Runnable. It returns when ctx is canceled or any task
// fails.
func (l *Loop) Run(ctx context.Context) error {
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.lock.Lock()
	runners := l.runners
	l.lock.Unlock()

	failCh := make(chan error, 1)
	runner := NewRunnerWith(context.WithValue(ctx, loopCtxKey, LoopControl(&loopCtl{l})))
	for n, r := range runners {
		r, name := r, strconv.Itoa(n)
		if named, ok := r.(Named); ok {
			name = named.Name()
		}
		runner.Go(NamedRun(name, RunFunc(func(rctx context.Context) error {
			err := r.Run(rctx)
			if err != nil && rctx.Err() == nil {
				select {
				case failCh <- err:
				default:
				}
			}
			return err
		})))
	}

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultLoopInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var err error
	for err == nil {
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case err = <-failCh:
		case <-ticker.C:
			l.runIteration(ctx)
		case <-l.wakeUpCh:
			l.runIteration(ctx)
		}
	}
	cancel()
	if werr := runner.Wait(); werr != nil && err == context.Canceled {
		err = werr
	}
	return err
}

// RunOrFail is intended to be used in main to simply run the loop
// until a stop signal.
func (l *Loop) RunOrFail() {
	r := NewRunner().HandleSignals()
	if err := l.Run(r.Context); err != nil && err != context.Canceled {
		glog.Exitf("loop stopped: %v", err)
	}
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

func (l *Loop) runIteration(ctx context.Context) {
	iter := &loopIteration{loopCtl: loopCtl{l}, ctx: ctx, time: time.Now()}
	for i := 0; i < PriorityLevels; i++ {
		iter.priorityLevel = i
		l.lock.Lock()
		ctls := l.controllers[i]
		l.lock.Unlock()
		for _, ctl := range ctls {
			if err := ctl.Control(iter); err != nil {
				glog.Errorf("controller error: %v", err)
			}
		}
	}
}

func (t *loopIteration) Context() context.Context { return t.ctx }
func (t *loopIteration) Time() time.Time           { return t.time }
func (t *loopIteration) PriorityLevel() int        { return t.priorityLevel }
