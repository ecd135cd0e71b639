package capture

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/speaklab/practice-gateway/internal/audio"
	"github.com/speaklab/practice-gateway/internal/observability"
)

// FrameSink receives encoded PCM16 capture frames.
type FrameSink interface {
	SendFrame(data []byte) error
}

// Pipeline pulls sample blocks from a Source, encodes them and forwards
// them to a FrameSink. Frames are suppressed while the user is muted or
// while model playback is in progress, so the model never hears its own
// voice or a muted microphone.
type Pipeline struct {
	source       Source
	sink         FrameSink
	playbackBusy func() bool
	metrics      *observability.Metrics
	logger       zerolog.Logger

	mu      sync.Mutex
	muted   bool
	started bool
	closed  bool
}

// NewPipeline builds a pipeline over source delivering to sink.
// playbackBusy reports whether model audio is currently queued or
// playing; it may be nil, in which case playback never gates capture.
func NewPipeline(source Source, sink FrameSink, playbackBusy func() bool, metrics *observability.Metrics, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		source:       source,
		sink:         sink,
		playbackBusy: playbackBusy,
		metrics:      metrics,
		logger:       logger.With().Str("component", "capture").Logger(),
	}
}

// Start acquires the source and begins forwarding frames.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrDeviceUnavailable
	}
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	return p.source.Start(p.handleSamples)
}

func (p *Pipeline) handleSamples(samples []float32) {
	if p.suppressed() {
		return
	}
	frame := audio.EncodeFrame(samples)
	if err := p.sink.SendFrame(frame); err != nil {
		// A single failed frame is dropped; the session decides when
		// the transport is actually gone.
		p.logger.Warn().Err(err).Msg("Dropping capture frame")
		if p.metrics != nil {
			p.metrics.RecordError("send_frame", "capture")
		}
		return
	}
	if p.metrics != nil {
		p.metrics.RecordAudioBytes("capture", int64(len(frame)))
	}
}

func (p *Pipeline) suppressed() bool {
	p.mu.Lock()
	muted := p.muted
	closed := p.closed
	p.mu.Unlock()
	if closed || muted {
		return true
	}
	return p.playbackBusy != nil && p.playbackBusy()
}

// SetMuted toggles microphone suppression. The source keeps running;
// frames are simply not forwarded while muted.
func (p *Pipeline) SetMuted(muted bool) {
	p.mu.Lock()
	changed := p.muted != muted
	p.muted = muted
	p.mu.Unlock()
	if changed {
		p.logger.Debug().Bool("muted", muted).Msg("Capture mute changed")
	}
}

// Muted reports the current mute state.
func (p *Pipeline) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// Close stops the source and releases the pipeline. Safe to call more
// than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	p.mu.Unlock()

	if started {
		return p.source.Stop()
	}
	return nil
}
