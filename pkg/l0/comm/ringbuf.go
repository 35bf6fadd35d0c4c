package comm

import "sync/atomic"

// DefaultRingBufferSize is the default capacity of the ingestion buffer.
const DefaultRingBufferSize = 512

// RingBuffer is a lock-free single-producer/single-consumer byte queue.
// Push must only be called from one producer goroutine and Pop from one
// consumer goroutine. One slot is kept empty to tell full from empty, so
// it holds Cap()-1 bytes at most.
type RingBuffer struct {
	buf  []byte
	mask uint32

	// head is written by the producer only, tail by the consumer only.
	head atomic.Uint32
	tail atomic.Uint32

	overflows atomic.Uint64
}

// NewRingBuffer creates a RingBuffer, size is rounded up to a power of two.
func NewRingBuffer(size int) *RingBuffer {
	n := uint32(2)
	for int(n) < size {
		n <<= 1
	}
	return &RingBuffer{buf: make([]byte, n), mask: n - 1}
}

// Cap returns the number of slots.
func (r *RingBuffer) Cap() int {
	return len(r.buf)
}

// Push appends a byte. It never blocks: if the buffer is full the byte is
// dropped, the overflow counter is incremented and false is returned.
func (r *RingBuffer) Push(b byte) bool {
	head := r.head.Load()
	next := (head + 1) & r.mask
	if next == r.tail.Load() {
		r.overflows.Add(1)
		return false
	}
	r.buf[head] = b
	r.head.Store(next)
	return true
}

// Pop removes the oldest byte, ok is false if the buffer is empty.
func (r *RingBuffer) Pop() (b byte, ok bool) {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return 0, false
	}
	b = r.buf[tail]
	r.tail.Store((tail + 1) & r.mask)
	return b, true
}

// Len returns the number of pending bytes.
func (r *RingBuffer) Len() int {
	return int((r.head.Load() - r.tail.Load()) & r.mask)
}

// IsEmpty indicates no bytes are pending.
func (r *RingBuffer) IsEmpty() bool {
	return r.head.Load() == r.tail.Load()
}

// Overflows returns the number of bytes dropped by Push.
func (r *RingBuffer) Overflows() uint64 {
	return r.overflows.Load()
}

// Clear discards pending bytes. It is only safe when neither the producer
// nor the consumer is running.
func (r *RingBuffer) Clear() {
	r.head.Store(0)
	r.tail.Store(0)
}
