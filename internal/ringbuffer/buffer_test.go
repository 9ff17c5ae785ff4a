package ringbuffer

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	b := New(8)
	n := b.Write([]byte("hello"))
	require.Equal(t, 5, n)
	require.Equal(t, 5, b.Available())
	require.Equal(t, 3, b.FreeSpace())

	out := make([]byte, 5)
	n = b.Read(out)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(out))
	require.Equal(t, 0, b.Available())
}

func TestBoundedInvariant(t *testing.T) {
	b := New(4)
	done := make(chan struct{})
	go func() {
		b.Write([]byte{1, 2, 3, 4, 5, 6})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, b.Available(), 4)
	assert.GreaterOrEqual(t, b.Available(), 0)

	drain := make([]byte, 2)
	b.Read(drain)
	b.Read(drain)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer never unblocked after space freed")
	}
}

func TestCloseUnblocksWriterWithZero(t *testing.T) {
	b := New(2)
	b.Write([]byte{1, 2}) // fill it

	result := make(chan int, 1)
	go func() {
		result <- b.Write([]byte{3})
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case n := <-result:
		assert.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("write never unblocked on close")
	}

	// Write after close always returns 0 without blocking.
	assert.Equal(t, 0, b.Write([]byte{9}))
}

func TestCloseDrainsThenReturnsZero(t *testing.T) {
	b := New(4)
	b.Write([]byte{1, 2, 3})
	b.Close()

	out := make([]byte, 2)
	n := b.Read(out)
	require.Equal(t, 2, n)

	out = make([]byte, 2)
	n = b.Read(out)
	require.Equal(t, 1, n)

	n = b.Read(out)
	require.Equal(t, 0, n, "closed and drained buffer must return 0 without blocking")
}

func TestCloseIsIdempotentAndWakesReaders(t *testing.T) {
	b := New(4)
	result := make(chan int, 1)
	go func() {
		result <- b.Read(make([]byte, 1))
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()
	b.Close() // must not panic or deadlock

	select {
	case n := <-result:
		assert.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("reader never unblocked on close")
	}
}

// TestFIFOUnderConcurrency exercises invariant 3: the concatenation of all
// successful reads equals the concatenation of all successful writes.
func TestFIFOUnderConcurrency(t *testing.T) {
	b := New(37) // awkward size to exercise wraparound
	const total = 100000

	input := make([]byte, total)
	for i := range input {
		input[i] = byte(i)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer b.Close()
		off := 0
		for off < len(input) {
			n := b.Write(input[off:min(off+17, len(input))])
			if n == 0 {
				return
			}
			off += n
		}
	}()

	var out bytes.Buffer
	buf := make([]byte, 13)
	for {
		n := b.Read(buf)
		if n == 0 {
			break
		}
		out.Write(buf[:n])
	}
	wg.Wait()

	assert.Equal(t, input, out.Bytes())
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
