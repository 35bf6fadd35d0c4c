// Package control implements the command/response service on the control
// channel. Requests are {cmd: string}, responses always carry status and
// timestamp (milliseconds since start, wrapping at 32 bits).
package control

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/bridge.go/pkg/framework"
	"github.com/robotalks/bridge.go/pkg/l0/comm"
	"github.com/robotalks/bridge.go/pkg/l0/doc"
)

// Defaults of Service.
const (
	DefaultQueueSize       = 5
	DefaultMaxResponseSize = 512
)

// Keys and values of requests and responses.
const (
	KeyCommand   = "cmd"
	KeyStatus    = "status"
	KeyTimestamp = "timestamp"
	KeyError     = "error"

	StatusOK    = 200
	StatusError = 500
)

// MsgResponseTooLarge is the error reported when a response exceeds
// MaxResponseSize.
const MsgResponseTooLarge = "response too large"

// Publisher sends documents on a channel. *comm.Router implements it.
type Publisher interface {
	Publish(comm.Channel, *doc.Document) error
}

// CommandFunc handles a request and fills the response. Returning false
// suppresses the response.
type CommandFunc func(ctx context.Context, req, resp *doc.Document) bool

// StatusFunc reports one section of the status response.
type StatusFunc func() *doc.Document

type statusSection struct {
	name string
	fn   StatusFunc
}

// Service processes control requests. Requests are queued by
// HandleDocument without blocking and processed by Control in the loop.
type Service struct {
	Publisher       Publisher
	Channel         comm.Channel
	ID              string
	MaxResponseSize int

	startTime time.Time
	queue     chan *doc.Document
	dropped   atomic.Uint64

	lock     sync.RWMutex
	commands map[string]CommandFunc
	sections []statusSection
}

// NewService creates a Service with ping and status commands.
func NewService(pub Publisher, id string, queueSize int) *Service {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	s := &Service{
		Publisher:       pub,
		Channel:         comm.ChannelControl,
		ID:              id,
		MaxResponseSize: DefaultMaxResponseSize,
		startTime:       time.Now(),
		queue:           make(chan *doc.Document, queueSize),
		commands:        make(map[string]CommandFunc),
	}
	s.Register("ping", s.ping)
	s.Register("status", s.status)
	return s
}

// AddToLoop implements LoopAdder.
func (s *Service) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvControl, s)
}

// Register adds or replaces a command.
func (s *Service) Register(name string, fn CommandFunc) {
	s.lock.Lock()
	s.commands[name] = fn
	s.lock.Unlock()
}

// AddStatus adds a section to the status response.
func (s *Service) AddStatus(name string, fn StatusFunc) {
	s.lock.Lock()
	s.sections = append(s.sections, statusSection{name: name, fn: fn})
	s.lock.Unlock()
}

// Dropped returns the number of requests dropped on full queue.
func (s *Service) Dropped() uint64 {
	return s.dropped.Load()
}

// Timestamp returns milliseconds since the service started.
func (s *Service) Timestamp() uint32 {
	return uint32(time.Since(s.startTime).Milliseconds())
}

// HandleDocument implements comm.Handler. It triggers the next loop
// iteration when called within a Loop.
func (s *Service) HandleDocument(ctx context.Context, ch comm.Channel, d *doc.Document) {
	select {
	case s.queue <- d:
	default:
		s.dropped.Add(1)
		glog.Warning("control queue full, request dropped")
		return
	}
	if ctl := fx.LoopCtlFrom(ctx); ctl != nil {
		ctl.TriggerNext()
	}
}

// Control implements Controller. It processes all queued requests.
func (s *Service) Control(cc fx.ControlContext) error {
	s.Process(cc.Context())
	return nil
}

// Process handles all queued requests and returns the number processed.
func (s *Service) Process(ctx context.Context) int {
	for n := 0; ; n++ {
		select {
		case req := <-s.queue:
			s.handle(ctx, req)
		default:
			return n
		}
	}
}

func (s *Service) handle(ctx context.Context, req *doc.Document) {
	v, _ := req.Get(KeyCommand)
	name, ok := v.AsString()
	if !ok {
		glog.Warningf("control request without command: %s", req)
		return
	}
	s.lock.RLock()
	fn := s.commands[name]
	s.lock.RUnlock()
	if fn == nil {
		glog.Warningf("unknown control command: %q", name)
		return
	}
	glog.V(2).Infof("control command %q", name)
	resp := doc.New()
	if !fn(ctx, req, resp) {
		return
	}
	if _, exists := resp.Get(KeyStatus); !exists {
		resp.Set(KeyStatus, doc.Int(StatusOK))
	}
	resp.Set(KeyTimestamp, doc.Uint(uint64(s.Timestamp())))
	if max := s.MaxResponseSize; max > 0 && resp.EncodedSize() > max {
		glog.Warningf("control response of %q exceeds %d bytes", name, max)
		resp = doc.New().
			Set(KeyStatus, doc.Int(StatusError)).
			Set(KeyError, doc.String(MsgResponseTooLarge)).
			Set(KeyTimestamp, doc.Uint(uint64(s.Timestamp())))
	}
	if err := s.Publisher.Publish(s.Channel, resp); err != nil {
		glog.Warningf("control response of %q: %v", name, err)
	}
}

func (s *Service) ping(ctx context.Context, req, resp *doc.Document) bool {
	resp.Set("msg", doc.String("pong")).Set(KeyStatus, doc.Int(StatusOK))
	return true
}

func (s *Service) status(ctx context.Context, req, resp *doc.Document) bool {
	resp.Set(KeyStatus, doc.Int(StatusOK)).
		Set("id", doc.String(s.ID)).
		Set("uptime_ms", doc.Uint(uint64(time.Since(s.startTime).Milliseconds())))
	s.lock.RLock()
	sections := s.sections
	s.lock.RUnlock()
	for _, sec := range sections {
		resp.Set(sec.name, doc.Map(sec.fn()))
	}
	return true
}
