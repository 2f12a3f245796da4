// Package ringbuf provides a fixed-capacity circular byte buffer shared by
// exactly one producer and one consumer.
package ringbuf

import (
	"errors"
	"sync/atomic"
)

// ErrClaim indicates finishing more bytes than claimed.
var ErrClaim = errors.New("finish exceeds claimed size")

// RingBuffer is a single-producer/single-consumer byte ring.
//
// Only the producer calls Put, PutClaim and PutFinish. Only the consumer
// calls Get, Peek, Skip, GetClaim and GetFinish. Size and Space may be
// called from either side; the cursors are published atomically so no
// other locking is needed as long as this discipline holds.
type RingBuffer struct {
	buf  []byte
	head atomic.Uint64
	tail atomic.Uint64

	getClaim uint64 // consumer only
	putClaim uint64 // producer only
}

// New creates a RingBuffer holding up to capacity bytes.
func New(capacity int) *RingBuffer {
	if capacity <= 0 {
		panic("ringbuf: capacity must be positive")
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Capacity returns the total number of bytes the ring can hold.
func (r *RingBuffer) Capacity() int {
	return len(r.buf)
}

// Size returns the number of bytes available for reading.
func (r *RingBuffer) Size() int {
	return int(r.tail.Load() - r.head.Load())
}

// Space returns the number of bytes available for writing.
func (r *RingBuffer) Space() int {
	return len(r.buf) - r.Size()
}

// IsEmpty returns true if nothing is buffered.
func (r *RingBuffer) IsEmpty() bool {
	return r.Size() == 0
}

// Put copies as much of data as fits and returns the number of bytes written.
func (r *RingBuffer) Put(data []byte) int {
	tail := r.tail.Load()
	free := len(r.buf) - int(tail-r.head.Load())
	n := len(data)
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}
	idx := int(tail % uint64(len(r.buf)))
	first := copy(r.buf[idx:], data[:n])
	copy(r.buf, data[first:n])
	r.putClaim = tail + uint64(n)
	r.tail.Store(r.putClaim)
	return n
}

// PutClaim reserves up to max contiguous writable bytes and returns them.
// Successive claims continue after the previous one until PutFinish.
func (r *RingBuffer) PutClaim(max int) []byte {
	tail := r.tail.Load()
	if r.putClaim < tail {
		r.putClaim = tail
	}
	start := r.putClaim
	free := len(r.buf) - int(start-r.head.Load())
	idx := int(start % uint64(len(r.buf)))
	n := len(r.buf) - idx
	if n > free {
		n = free
	}
	if n > max {
		n = max
	}
	if n <= 0 {
		return nil
	}
	r.putClaim += uint64(n)
	return r.buf[idx : idx+n]
}

// PutFinish commits n bytes of previously claimed space and drops
// the rest of the claim.
func (r *RingBuffer) PutFinish(n int) error {
	tail := r.tail.Load()
	if n < 0 || uint64(n) > r.putClaim-tail {
		r.putClaim = tail
		return ErrClaim
	}
	r.putClaim = tail + uint64(n)
	r.tail.Store(r.putClaim)
	return nil
}

// Peek copies up to len(dst) bytes without consuming them.
func (r *RingBuffer) Peek(dst []byte) int {
	return r.read(dst, r.head.Load())
}

// Get consumes up to len(dst) bytes into dst.
func (r *RingBuffer) Get(dst []byte) int {
	head := r.head.Load()
	n := r.read(dst, head)
	r.getClaim = head + uint64(n)
	r.head.Store(r.getClaim)
	return n
}

// Skip consumes up to n bytes without copying them.
func (r *RingBuffer) Skip(n int) int {
	head := r.head.Load()
	if avail := int(r.tail.Load() - head); n > avail {
		n = avail
	}
	if n < 0 {
		n = 0
	}
	r.getClaim = head + uint64(n)
	r.head.Store(r.getClaim)
	return n
}

// GetClaim returns up to max contiguous readable bytes without consuming
// them. The returned slice aliases the ring and stays valid until GetFinish.
func (r *RingBuffer) GetClaim(max int) []byte {
	head := r.head.Load()
	if r.getClaim < head {
		r.getClaim = head
	}
	start := r.getClaim
	avail := int(r.tail.Load() - start)
	idx := int(start % uint64(len(r.buf)))
	n := len(r.buf) - idx
	if n > avail {
		n = avail
	}
	if n > max {
		n = max
	}
	if n <= 0 {
		return nil
	}
	r.getClaim += uint64(n)
	return r.buf[idx : idx+n]
}

// GetFinish consumes n bytes of previously claimed data and drops
// the rest of the claim.
func (r *RingBuffer) GetFinish(n int) error {
	head := r.head.Load()
	if n < 0 || uint64(n) > r.getClaim-head {
		r.getClaim = head
		return ErrClaim
	}
	r.getClaim = head + uint64(n)
	r.head.Store(r.getClaim)
	return nil
}

// Reset empties the ring. Both sides must be idle.
func (r *RingBuffer) Reset() {
	r.head.Store(0)
	r.tail.Store(0)
	r.getClaim, r.putClaim = 0, 0
}

func (r *RingBuffer) read(dst []byte, head uint64) int {
	n := int(r.tail.Load() - head)
	if n > len(dst) {
		n = len(dst)
	}
	if n == 0 {
		return 0
	}
	idx := int(head % uint64(len(r.buf)))
	first := copy(dst[:n], r.buf[idx:])
	copy(dst[first:n], r.buf)
	return n
}
