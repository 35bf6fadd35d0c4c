package comm

import (
	"context"
	"io"

	"github.com/golang/glog"

	fx "github.com/robotalks/bridge.go/pkg/framework"
)

// DefaultReadSize is the default chunk size of a Receiver read.
const DefaultReadSize = 64

// Receiver is the producer side of the link. It pushes every byte read
// from Reader into Buffer and then calls OnArrival. It never waits for
// the consumer: bytes that don't fit are dropped by the RingBuffer.
type Receiver struct {
	Reader    io.Reader
	Buffer    *RingBuffer
	OnArrival func()
	ReadSize  int
}

// NewReceiver creates a Receiver feeding the Router's buffer and waking it
// up on arrival.
func NewReceiver(r io.Reader, router *Router) *Receiver {
	return &Receiver{
		Reader:    r,
		Buffer:    router.Buffer,
		OnArrival: router.Wake,
		ReadSize:  DefaultReadSize,
	}
}

// Name implements Named.
func (r *Receiver) Name() string {
	return "l0-receiver"
}

// Run implements Runnable. If Reader is an io.Closer, it's closed when
// ctx is canceled to unblock the pending read.
func (r *Receiver) Run(ctx context.Context) error {
	if closer, ok := r.Reader.(io.Closer); ok {
		return fx.RunWithContextCloser(ctx, closer, func() error {
			return r.readLoop(ctx)
		})
	}
	return r.readLoop(ctx)
}

func (r *Receiver) readLoop(ctx context.Context) error {
	size := r.ReadSize
	if size <= 0 {
		size = DefaultReadSize
	}
	buf := make([]byte, size)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Reader.Read(buf)
		if n > 0 {
			r.Feed(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			glog.Warningf("link read error: %v", err)
			return err
		}
	}
}

// Feed pushes bytes into the buffer and notifies the consumer. It's the
// producer context entry point and must not be called concurrently.
func (r *Receiver) Feed(data []byte) {
	for _, b := range data {
		if !r.Buffer.Push(b) {
			glog.V(2).Info("ingestion buffer full, byte dropped")
		}
	}
	if fn := r.OnArrival; fn != nil {
		fn()
	}
}
