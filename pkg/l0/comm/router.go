package comm

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/bridge.go/pkg/l0/doc"
)

// Defaults of Router.
const (
	DefaultMaxFrameSize = 1024
	DefaultPollInterval = 10 * time.Millisecond
)

// Handler is called with each Document received on a subscribed channel.
// It runs on the Router's consumer task and must not block.
type Handler interface {
	HandleDocument(context.Context, Channel, *doc.Document)
}

// HandlerFunc is the func form of Handler.
type HandlerFunc func(context.Context, Channel, *doc.Document)

// HandleDocument implements Handler.
func (f HandlerFunc) HandleDocument(ctx context.Context, ch Channel, d *doc.Document) {
	f(ctx, ch, d)
}

// Router multiplexes channels over the link. Inbound, it drains Buffer,
// reassembles and validates frames and dispatches Documents to handlers.
// Outbound, it frames Documents and writes them to Writer.
//
// Pump and Run make up the single consumer of Buffer: only one of them
// may run at a time. Subscribe and Publish are safe for concurrent use.
type Router struct {
	Writer       io.Writer
	Buffer       *RingBuffer
	Checksum     *Checksum
	MaxFrameSize int
	PollInterval time.Duration

	handlers     map[Channel]Handler
	handlersLock sync.RWMutex
	sendLock     sync.Mutex

	frame    []byte
	skipping bool
	wakeCh   chan struct{}
	counters counters
}

// NewRouter creates a Router writing to w and draining buf.
func NewRouter(w io.Writer, buf *RingBuffer) *Router {
	return &Router{
		Writer:       w,
		Buffer:       buf,
		Checksum:     DefaultChecksum,
		MaxFrameSize: DefaultMaxFrameSize,
		PollInterval: DefaultPollInterval,
		handlers:     make(map[Channel]Handler),
		wakeCh:       make(chan struct{}, 1),
	}
}

// Name implements Named.
func (r *Router) Name() string {
	return "l0-router"
}

// Subscribe registers the handler for a channel, replacing any previous
// one.
func (r *Router) Subscribe(ch Channel, h Handler) {
	r.handlersLock.Lock()
	r.handlers[ch] = h
	r.handlersLock.Unlock()
}

// Unsubscribe removes the handler of a channel.
func (r *Router) Unsubscribe(ch Channel) {
	r.handlersLock.Lock()
	delete(r.handlers, ch)
	r.handlersLock.Unlock()
}

// Handler returns the handler registered for a channel.
func (r *Router) Handler(ch Channel) Handler {
	r.handlersLock.RLock()
	defer r.handlersLock.RUnlock()
	return r.handlers[ch]
}

// Publish encodes d and writes it on channel ch. It never retries:
// a short write is logged, counted and reported as ErrShortWrite.
func (r *Router) Publish(ch Channel, d *doc.Document) error {
	msg := Message{Channel: ch, Payload: d.Encode()}
	r.sendLock.Lock()
	n, err := msg.WriteFrame(r.Writer, r.checksum())
	r.sendLock.Unlock()
	switch {
	case errors.Is(err, ErrShortWrite):
		r.counters.shortWrites.Add(1)
		glog.Warningf("publish channel %d: short write %d bytes", ch, n)
	case err != nil:
		r.counters.writeErrors.Add(1)
		glog.Warningf("publish channel %d: %v", ch, err)
	default:
		r.counters.published.Add(1)
		glog.V(2).Infof("SEND ch=%d %d bytes", ch, n)
	}
	return err
}

// Wake notifies the consumer that bytes arrived. It never blocks and is
// safe to call from the producer.
func (r *Router) Wake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

// Pump drains all pending bytes from Buffer and dispatches complete
// frames. It returns the number of Documents dispatched to handlers.
func (r *Router) Pump(ctx context.Context) int {
	dispatched := 0
	for {
		b, ok := r.Buffer.Pop()
		if !ok {
			return dispatched
		}
		if b != Delimiter {
			r.accumulate(b)
			continue
		}
		if r.skipping {
			r.skipping = false
			continue
		}
		if len(r.frame) > 0 {
			if r.processFrame(ctx, r.frame) {
				dispatched++
			}
			r.frame = r.frame[:0]
		}
	}
}

// Run implements Runnable. It pumps whenever the producer wakes it up, and
// at PollInterval in case a wake up was coalesced.
func (r *Router) Run(ctx context.Context) error {
	interval := r.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.wakeCh:
		case <-ticker.C:
		}
		r.Pump(ctx)
	}
}

// Stats returns a snapshot of counters, including buffer overflows.
func (r *Router) Stats() Stats {
	s := r.counters.snapshot()
	if r.Buffer != nil {
		s.Overflows = r.Buffer.Overflows()
	}
	return s
}

func (r *Router) accumulate(b byte) {
	if r.skipping {
		return
	}
	max := r.MaxFrameSize
	if max <= 0 {
		max = DefaultMaxFrameSize
	}
	if len(r.frame) >= max {
		r.counters.oversized.Add(1)
		glog.Warningf("frame exceeds %d bytes, dropped", max)
		r.frame = r.frame[:0]
		// The rest of the frame up to the next delimiter is garbage.
		r.skipping = true
		return
	}
	r.frame = append(r.frame, b)
}

func (r *Router) processFrame(ctx context.Context, frame []byte) bool {
	r.counters.received.Add(1)
	raw, err := DecodeFrame(frame)
	if err != nil {
		r.counters.framingErrors.Add(1)
		glog.Warningf("drop frame: %v", err)
		return false
	}
	msg, err := ParseMessage(r.checksum(), raw)
	if err != nil {
		if errors.Is(err, ErrFrameTooShort) {
			r.counters.shortFrames.Add(1)
		} else {
			r.counters.checksumErrors.Add(1)
		}
		glog.Warningf("drop frame: %v", err)
		return false
	}
	d, err := doc.Decode(msg.Payload)
	if err != nil {
		r.counters.decodeErrors.Add(1)
		glog.Warningf("drop frame on channel %d: %v", msg.Channel, err)
		return false
	}
	glog.V(2).Infof("RECV ch=%d %s", msg.Channel, d)
	h := r.Handler(msg.Channel)
	if h == nil {
		r.counters.unhandled.Add(1)
		return false
	}
	r.counters.dispatched.Add(1)
	h.HandleDocument(ctx, msg.Channel, d)
	return true
}

func (r *Router) checksum() *Checksum {
	if r.Checksum != nil {
		return r.Checksum
	}
	return DefaultChecksum
}
