package comm

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingBufferSize(t *testing.T) {
	testCases := []struct {
		size, cap int
	}{
		{0, 2}, {1, 2}, {2, 2}, {3, 4}, {500, 512}, {512, 512}, {513, 1024},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.cap, NewRingBuffer(tc.size).Cap(), "size %d", tc.size)
	}
}

func TestRingBufferFIFO(t *testing.T) {
	r := NewRingBuffer(8)
	require.True(t, r.IsEmpty())
	_, ok := r.Pop()
	require.False(t, ok)

	for i := 0; i < 7; i++ {
		require.True(t, r.Push(byte(i)))
	}
	require.Equal(t, 7, r.Len())
	require.False(t, r.Push(0xff))
	require.Equal(t, uint64(1), r.Overflows())
	require.Equal(t, 7, r.Len())

	for i := 0; i < 7; i++ {
		b, ok := r.Pop()
		require.True(t, ok)
		require.Equal(t, byte(i), b)
	}
	require.True(t, r.IsEmpty())

	// wrap around
	for round := 0; round < 10; round++ {
		for i := 0; i < 5; i++ {
			require.True(t, r.Push(byte(round*5+i)))
		}
		for i := 0; i < 5; i++ {
			b, ok := r.Pop()
			require.True(t, ok)
			require.Equal(t, byte(round*5+i), b)
		}
	}
	require.Equal(t, 0, r.Len())
}

func TestRingBufferClear(t *testing.T) {
	r := NewRingBuffer(4)
	r.Push(1)
	r.Push(2)
	r.Clear()
	require.True(t, r.IsEmpty())
	require.True(t, r.Push(3))
	b, ok := r.Pop()
	require.True(t, ok)
	require.Equal(t, byte(3), b)
}

func TestRingBufferConcurrent(t *testing.T) {
	const total = 20000
	r := NewRingBuffer(64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if r.Push(byte(i)) {
				i++
			} else {
				runtime.Gosched()
			}
		}
	}()
	for i := 0; i < total; {
		b, ok := r.Pop()
		if !ok {
			runtime.Gosched()
			continue
		}
		require.Equal(t, byte(i), b)
		i++
	}
	wg.Wait()
	require.True(t, r.IsEmpty())
}
