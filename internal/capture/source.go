// Package capture feeds microphone audio into the upstream model stream.
// A Source produces raw float32 samples at the capture rate; the Pipeline
// regroups them into fixed blocks, applies mute and playback gating, and
// hands encoded frames to a sink.
package capture

import (
	"errors"
	"sync"

	"github.com/speaklab/practice-gateway/internal/audio"
)

var (
	// ErrPermissionDenied indicates the client refused microphone access.
	ErrPermissionDenied = errors.New("capture: microphone permission denied")

	// ErrDeviceUnavailable indicates no capture device could be acquired.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")
)

// Source is a stream of raw capture samples. Start begins delivery and
// Stop releases the device. Implementations must tolerate Stop being
// called more than once.
type Source interface {
	Start(deliver func(samples []float32)) error
	Stop() error
}

// PushSource is a Source fed externally, used when the actual device
// lives on the far side of a websocket. Callers push decoded sample
// slices with Push; they are forwarded to the deliver function registered
// by Start.
type PushSource struct {
	mu      sync.Mutex
	deliver func([]float32)
	started bool
}

// NewPushSource returns an idle PushSource.
func NewPushSource() *PushSource {
	return &PushSource{}
}

// Start registers the delivery function. Starting an already started
// source is an error.
func (p *PushSource) Start(deliver func(samples []float32)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("capture: source already started")
	}
	p.deliver = deliver
	p.started = true
	return nil
}

// Stop detaches the delivery function. Pushes after Stop are dropped.
func (p *PushSource) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deliver = nil
	p.started = false
	return nil
}

// Started reports whether a delivery function is registered.
func (p *PushSource) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Push forwards samples to the registered delivery function, if any.
func (p *PushSource) Push(samples []float32) {
	p.mu.Lock()
	deliver := p.deliver
	p.mu.Unlock()
	if deliver != nil {
		deliver(samples)
	}
}

// BufferedSource wraps another Source and regroups its deliveries into
// fixed-size blocks. Device callbacks rarely align with the block size
// the upstream expects, so samples accumulate in a ring buffer and are
// released one full block at a time.
type BufferedSource struct {
	inner     Source
	blockSize int
	buf       *audio.RingBuffer
	mu        sync.Mutex
}

// NewBufferedSource wraps inner so that deliveries arrive in blocks of
// exactly blockSize samples.
func NewBufferedSource(inner Source, blockSize, bufferSize int) *BufferedSource {
	return &BufferedSource{
		inner:     inner,
		blockSize: blockSize,
		buf:       audio.NewRingBuffer(bufferSize),
	}
}

// Start begins delivery of fixed-size blocks. Samples left over from a
// partial block stay buffered until the next device callback completes
// them.
func (b *BufferedSource) Start(deliver func(samples []float32)) error {
	return b.inner.Start(func(samples []float32) {
		b.mu.Lock()
		b.buf.Write(samples)
		var blocks [][]float32
		for b.buf.Available() >= b.blockSize {
			block := make([]float32, b.blockSize)
			b.buf.Read(block)
			blocks = append(blocks, block)
		}
		b.mu.Unlock()
		for _, block := range blocks {
			deliver(block)
		}
	})
}

// Stop stops the inner source and drops any buffered partial block.
func (b *BufferedSource) Stop() error {
	err := b.inner.Stop()
	b.mu.Lock()
	b.buf.Clear()
	b.mu.Unlock()
	return err
}
