package audio

import (
	"sync"
)

// RingBuffer is a thread-safe ring buffer for float audio samples. The
// buffered capture source uses it to regroup variable-size device blocks
// into fixed-size frames.
type RingBuffer struct {
	buffer []float32
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewRingBuffer creates a ring buffer holding up to size-1 samples.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]float32, size),
		size:   size,
	}
}

// Write appends samples to the buffer. Returns the number of samples
// written, which may be less than len(samples) if the buffer is full.
func (rb *RingBuffer) Write(samples []float32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for i := 0; i < len(samples); i++ {
		if (rb.write+1)%rb.size == rb.read {
			break // full
		}
		rb.buffer[rb.write] = samples[i]
		rb.write = (rb.write + 1) % rb.size
		written++
	}
	return written
}

// Read fills out with buffered samples. Returns the number of samples read.
func (rb *RingBuffer) Read(out []float32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for i := 0; i < len(out); i++ {
		if rb.read == rb.write {
			break // empty
		}
		out[i] = rb.buffer[rb.read]
		rb.read = (rb.read + 1) % rb.size
		read++
	}
	return read
}

// Available returns the number of samples available to read.
func (rb *RingBuffer) Available() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.available()
}

func (rb *RingBuffer) available() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

// Space returns the number of samples that can still be written.
func (rb *RingBuffer) Space() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size - rb.available() - 1 // -1 to keep full/empty distinguishable
}

// Clear discards all buffered samples.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.read = 0
	rb.write = 0
}

// IsEmpty reports whether the buffer holds no samples.
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.read == rb.write
}
