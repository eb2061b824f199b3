// Package shmring is a lock-free single-producer, single-consumer byte ring.
// The producer is the radio UART reader; the consumer is the main loop.
package shmring

import "sync/atomic"

// Ring never blocks either side. The producer only stores wr and the
// consumer only stores rd; indices run freely and are masked on access.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32
	wr   atomic.Uint32

	dropped  atomic.Uint32
	readable chan struct{}
}

// New allocates a ring of size bytes. size must be a power of two >= 2.
func New(size int) *Ring {
	if size < 2 || size&(size-1) != 0 {
		panic("shmring: size must be power of two >= 2")
	}
	return &Ring{
		buf:      make([]byte, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
	}
}

// Available is the number of unread bytes.
func (r *Ring) Available() int { return int(r.wr.Load() - r.rd.Load()) }

// Dropped counts bytes refused because the ring was full.
func (r *Ring) Dropped() uint32 { return r.dropped.Load() }

// Readable receives a token when the ring goes from empty to non-empty.
// Tokens coalesce; drain with TryReadInto until it returns 0.
func (r *Ring) Readable() <-chan struct{} { return r.readable }

// TryWriteFrom copies as much of src as fits and returns the count. The
// rest is counted in Dropped. Producer side only.
func (r *Ring) TryWriteFrom(src []byte) int {
	wr := r.wr.Load()
	used := wr - r.rd.Load()
	n := min(len(src), len(r.buf)-int(used))
	r.dropped.Add(uint32(len(src) - n))
	if n == 0 {
		return 0
	}
	at := wr & r.mask
	k := copy(r.buf[at:], src[:n])
	copy(r.buf, src[k:n])
	r.wr.Store(wr + uint32(n))

	// The consumer may have emptied the ring after used was sampled; it
	// then waits for a token that the used==0 test alone would not send.
	if used == 0 || r.rd.Load() == wr {
		select {
		case r.readable <- struct{}{}:
		default:
		}
	}
	return n
}

// TryReadInto moves up to len(dst) bytes out of the ring. Consumer side only.
func (r *Ring) TryReadInto(dst []byte) int {
	rd := r.rd.Load()
	n := min(len(dst), int(r.wr.Load()-rd))
	if n <= 0 {
		return 0
	}
	at := rd & r.mask
	k := copy(dst[:n], r.buf[at:])
	copy(dst[k:n], r.buf)
	r.rd.Store(rd + uint32(n))
	return n
}
