package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/speaklab/practice-gateway/internal/audio"
)

// fakeClock advances manually and fires due callbacks outside any caller
// lock, mirroring how time.AfterFunc behaves.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers map[int]*fakeTimer
}

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{timers: make(map[int]*fakeTimer)}
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.seq
	c.seq++
	t := &fakeTimer{at: c.now + d, f: f}
	c.timers[id] = t
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		was := t.stopped
		t.stopped = true
		return !was
	}
}

// advance moves the clock forward and fires callbacks that came due, in
// schedule order.
func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for id, t := range c.timers {
		if !t.stopped && t.at <= c.now {
			t.stopped = true
			due = append(due, t)
			delete(c.timers, id)
		}
	}
	c.mu.Unlock()
	for i := 0; i < len(due); i++ {
		earliest := i
		for j := i + 1; j < len(due); j++ {
			if due[j].at < due[earliest].at {
				earliest = j
			}
		}
		due[i], due[earliest] = due[earliest], due[i]
		due[i].f()
	}
}

type playedSink struct {
	mu       sync.Mutex
	segments []*audio.Segment
}

func (s *playedSink) PlaySegment(seg *audio.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, seg)
}

func (s *playedSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

// segment builds a segment of the given duration at 24 kHz.
func segment(d time.Duration) *audio.Segment {
	n := int(d.Seconds() * 24000)
	return &audio.Segment{Samples: make([]float32, n), SampleRate: 24000}
}

func TestScheduler_BackToBackSegments(t *testing.T) {
	clock := newFakeClock()
	sink := &playedSink{}
	s := NewScheduler(clock, sink, nil, zerolog.Nop())

	start1 := s.Enqueue(segment(100 * time.Millisecond))
	start2 := s.Enqueue(segment(50 * time.Millisecond))
	start3 := s.Enqueue(segment(50 * time.Millisecond))

	if start1 != 0 {
		t.Errorf("Expected first segment at 0, got %v", start1)
	}
	if start2 != 100*time.Millisecond {
		t.Errorf("Expected second segment at 100ms, got %v", start2)
	}
	if start3 != 150*time.Millisecond {
		t.Errorf("Expected third segment at 150ms, got %v", start3)
	}
}

func TestScheduler_AnchorsToNowAfterGap(t *testing.T) {
	clock := newFakeClock()
	s := NewScheduler(clock, &playedSink{}, nil, zerolog.Nop())

	s.Enqueue(segment(100 * time.Millisecond))
	clock.advance(300 * time.Millisecond)

	start := s.Enqueue(segment(50 * time.Millisecond))
	if start != 300*time.Millisecond {
		t.Errorf("Expected segment after gap to start at 300ms, got %v", start)
	}
}

func TestScheduler_DepthTracksLifecycle(t *testing.T) {
	clock := newFakeClock()
	sink := &playedSink{}
	s := NewScheduler(clock, sink, nil, zerolog.Nop())

	s.Enqueue(segment(100 * time.Millisecond))
	s.Enqueue(segment(100 * time.Millisecond))
	if s.Depth() != 2 {
		t.Fatalf("Expected depth 2, got %d", s.Depth())
	}
	if !s.Busy() {
		t.Error("Expected scheduler busy with queued segments")
	}

	clock.advance(100 * time.Millisecond)
	if s.Depth() != 1 {
		t.Errorf("Expected depth 1 after first segment finished, got %d", s.Depth())
	}

	clock.advance(100 * time.Millisecond)
	if s.Depth() != 0 {
		t.Errorf("Expected depth 0 after all finished, got %d", s.Depth())
	}
	if s.Busy() {
		t.Error("Expected scheduler idle after all segments finished")
	}
}

func TestScheduler_EmitsInOrder(t *testing.T) {
	clock := newFakeClock()
	sink := &playedSink{}
	s := NewScheduler(clock, sink, nil, zerolog.Nop())

	a := segment(100 * time.Millisecond)
	b := segment(100 * time.Millisecond)
	s.Enqueue(a)
	s.Enqueue(b)

	clock.advance(0)
	if sink.count() != 1 || sink.segments[0] != a {
		t.Fatalf("Expected only the first segment emitted at t=0, got %d", sink.count())
	}

	clock.advance(100 * time.Millisecond)
	if sink.count() != 2 || sink.segments[1] != b {
		t.Fatalf("Expected the second segment emitted at t=100ms, got %d", sink.count())
	}
}

func TestScheduler_InterruptDropsQueueAndReanchors(t *testing.T) {
	clock := newFakeClock()
	sink := &playedSink{}
	s := NewScheduler(clock, sink, nil, zerolog.Nop())

	clock.advance(50 * time.Millisecond)
	s.Enqueue(segment(100 * time.Millisecond))
	s.Enqueue(segment(100 * time.Millisecond))

	s.Interrupt()
	if s.Depth() != 0 {
		t.Errorf("Expected depth 0 after interrupt, got %d", s.Depth())
	}

	clock.advance(time.Second)
	if sink.count() != 0 {
		t.Errorf("Expected no segments emitted after interrupt, got %d", sink.count())
	}

	// The next segment starts immediately at the current clock reading,
	// not behind the discarded queue.
	start := s.Enqueue(segment(50 * time.Millisecond))
	if start != clock.Now() {
		t.Errorf("Expected post-interrupt segment at %v, got %v", clock.Now(), start)
	}
}

func TestScheduler_VolumeZeroWhenIdle(t *testing.T) {
	clock := newFakeClock()
	s := NewScheduler(clock, &playedSink{}, nil, zerolog.Nop())

	if v := s.Volume(); v != 0 {
		t.Errorf("Expected volume 0 when idle, got %v", v)
	}

	seg := segment(100 * time.Millisecond)
	for i := range seg.Samples {
		seg.Samples[i] = 0.5
	}
	s.Enqueue(seg)
	clock.advance(0)
	if v := s.Volume(); v <= 0 {
		t.Errorf("Expected positive volume while playing, got %v", v)
	}

	clock.advance(100 * time.Millisecond)
	if v := s.Volume(); v != 0 {
		t.Errorf("Expected volume 0 after playback finished, got %v", v)
	}
}

func TestScheduler_CloseDropsSegments(t *testing.T) {
	clock := newFakeClock()
	sink := &playedSink{}
	s := NewScheduler(clock, sink, nil, zerolog.Nop())

	s.Enqueue(segment(100 * time.Millisecond))
	s.Close()
	s.Close()

	clock.advance(time.Second)
	if sink.count() != 0 {
		t.Errorf("Expected no emissions after Close, got %d", sink.count())
	}
	if s.Depth() != 0 {
		t.Errorf("Expected depth 0 after Close, got %d", s.Depth())
	}
}
