package playback

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/speaklab/practice-gateway/internal/audio"
	"github.com/speaklab/practice-gateway/internal/observability"
)

// Sink renders a scheduled segment. For a websocket client this means
// forwarding the samples for the browser to play.
type Sink interface {
	PlaySegment(seg *audio.Segment)
}

type pending struct {
	stopEmit func() bool
	stopDone func() bool
}

// Scheduler queues model audio segments back to back. Each segment is
// anchored at the later of "now" and the end of the previously queued
// segment, so bursts of small segments render as one gapless utterance.
type Scheduler struct {
	clock   Clock
	sink    Sink
	metrics *observability.Metrics
	logger  zerolog.Logger

	mu       sync.Mutex
	next     time.Duration
	active   map[int]*pending
	seq      int
	analyzer *audio.Analyzer
	closed   bool
}

// NewScheduler builds a scheduler delivering to sink on clock time.
func NewScheduler(clock Clock, sink Sink, metrics *observability.Metrics, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		clock:    clock,
		sink:     sink,
		metrics:  metrics,
		logger:   logger.With().Str("component", "playback").Logger(),
		active:   make(map[int]*pending),
		analyzer: audio.NewAnalyzer(),
	}
}

// Enqueue schedules seg for playback and returns its start offset on the
// scheduler's clock. Segments start at the later of the current clock
// reading and the end of the last queued segment.
func (s *Scheduler) Enqueue(seg *audio.Segment) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.next
	}

	now := s.clock.Now()
	start := s.next
	if now > start {
		start = now
	}
	dur := seg.Duration()
	s.next = start + dur

	id := s.seq
	s.seq++
	p := &pending{}
	s.active[id] = p

	p.stopEmit = s.clock.AfterFunc(start-now, func() {
		s.emit(id, seg)
	})
	p.stopDone = s.clock.AfterFunc(s.next-now, func() {
		s.finish(id)
	})

	if s.metrics != nil {
		s.metrics.RecordSegment()
	}
	s.logger.Debug().
		Dur("start", start).
		Dur("duration", dur).
		Int("depth", len(s.active)).
		Msg("Segment scheduled")
	return start
}

func (s *Scheduler) emit(id int, seg *audio.Segment) {
	s.mu.Lock()
	_, ok := s.active[id]
	if ok {
		s.analyzer.Write(seg.Samples)
	}
	s.mu.Unlock()
	if ok {
		s.sink.PlaySegment(seg)
	}
}

func (s *Scheduler) finish(id int) {
	s.mu.Lock()
	delete(s.active, id)
	if len(s.active) == 0 {
		s.analyzer.Reset()
	}
	s.mu.Unlock()
}

// Interrupt discards every scheduled segment and re-anchors the queue so
// the next Enqueue starts immediately. Used when the model reports the
// user barged in.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	dropped := len(s.active)
	for id, p := range s.active {
		p.stopEmit()
		p.stopDone()
		delete(s.active, id)
	}
	s.next = 0
	s.analyzer.Reset()
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Debug().Int("dropped", dropped).Msg("Playback interrupted")
	}
	if s.metrics != nil {
		s.metrics.RecordInterruption()
	}
}

// Depth reports the number of segments queued or playing.
func (s *Scheduler) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Busy reports whether any segment is queued or playing. Capture is
// suppressed while this is true.
func (s *Scheduler) Busy() bool {
	return s.Depth() > 0
}

// Volume returns the current playback loudness in [0,1], zero when idle.
func (s *Scheduler) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.active) == 0 {
		return 0
	}
	return s.analyzer.Volume()
}

// Close drops all scheduled segments. Safe to call more than once.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, p := range s.active {
		p.stopEmit()
		p.stopDone()
		delete(s.active, id)
	}
	s.next = 0
	s.mu.Unlock()
}
