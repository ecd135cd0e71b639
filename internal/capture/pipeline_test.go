package capture

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *recordingSink) SendFrame(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, data)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func newTestPipeline(source Source, sink FrameSink, busy func() bool) *Pipeline {
	return NewPipeline(source, sink, busy, nil, zerolog.Nop())
}

func TestPushSource_DeliversAfterStart(t *testing.T) {
	src := NewPushSource()
	var got [][]float32
	if err := src.Start(func(samples []float32) {
		got = append(got, samples)
	}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	src.Push([]float32{0.1, 0.2})
	if len(got) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(got))
	}

	src.Stop()
	src.Push([]float32{0.3})
	if len(got) != 1 {
		t.Errorf("Expected pushes after Stop to be dropped, got %d deliveries", len(got))
	}
}

func TestPushSource_DoubleStartFails(t *testing.T) {
	src := NewPushSource()
	noop := func([]float32) {}
	if err := src.Start(noop); err != nil {
		t.Fatalf("First Start failed: %v", err)
	}
	if err := src.Start(noop); err == nil {
		t.Error("Expected second Start to fail")
	}
}

func TestBufferedSource_FixedBlocks(t *testing.T) {
	inner := NewPushSource()
	src := NewBufferedSource(inner, 4, 64)

	var blocks [][]float32
	if err := src.Start(func(samples []float32) {
		blocks = append(blocks, samples)
	}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// 3 samples: below block size, nothing delivered yet.
	inner.Push([]float32{1, 2, 3})
	if len(blocks) != 0 {
		t.Fatalf("Expected no blocks yet, got %d", len(blocks))
	}

	// 6 more: 9 total, two full blocks of 4, one sample remains.
	inner.Push([]float32{4, 5, 6, 7, 8, 9})
	if len(blocks) != 2 {
		t.Fatalf("Expected 2 blocks, got %d", len(blocks))
	}
	for i, block := range blocks {
		if len(block) != 4 {
			t.Errorf("Block %d has %d samples, expected 4", i, len(block))
		}
	}
	if blocks[0][0] != 1 || blocks[1][0] != 5 {
		t.Errorf("Blocks out of order: %v %v", blocks[0], blocks[1])
	}

	// 3 more complete the pending block.
	inner.Push([]float32{10, 11, 12})
	if len(blocks) != 3 {
		t.Fatalf("Expected 3 blocks after completing partial, got %d", len(blocks))
	}
	if blocks[2][0] != 9 {
		t.Errorf("Expected third block to start at 9, got %v", blocks[2][0])
	}
}

func TestBufferedSource_StopClearsPartial(t *testing.T) {
	inner := NewPushSource()
	src := NewBufferedSource(inner, 4, 64)

	var blocks int
	src.Start(func([]float32) { blocks++ })
	inner.Push([]float32{1, 2})
	src.Stop()

	// Restart: the old partial must not leak into the first block.
	got := make(chan []float32, 1)
	src.Start(func(samples []float32) { got <- samples })
	inner.Push([]float32{5, 6, 7, 8})
	select {
	case block := <-got:
		if block[0] != 5 {
			t.Errorf("Expected block to start at 5, got %v", block)
		}
	default:
		t.Fatal("Expected a full block after restart")
	}
}

func TestPipeline_ForwardsFrames(t *testing.T) {
	src := NewPushSource()
	sink := &recordingSink{}
	p := newTestPipeline(src, sink, nil)

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	src.Push([]float32{0.5, -0.5})

	if sink.count() != 1 {
		t.Fatalf("Expected 1 frame, got %d", sink.count())
	}
	if len(sink.frames[0]) != 4 {
		t.Errorf("Expected 4-byte frame for 2 samples, got %d bytes", len(sink.frames[0]))
	}
}

func TestPipeline_MuteSuppressesFrames(t *testing.T) {
	src := NewPushSource()
	sink := &recordingSink{}
	p := newTestPipeline(src, sink, nil)
	p.Start()

	p.SetMuted(true)
	src.Push([]float32{0.1})
	if sink.count() != 0 {
		t.Errorf("Expected no frames while muted, got %d", sink.count())
	}

	p.SetMuted(false)
	src.Push([]float32{0.1})
	if sink.count() != 1 {
		t.Errorf("Expected frame after unmute, got %d", sink.count())
	}
}

func TestPipeline_PlaybackGatesFrames(t *testing.T) {
	src := NewPushSource()
	sink := &recordingSink{}
	busy := true
	p := newTestPipeline(src, sink, func() bool { return busy })
	p.Start()

	src.Push([]float32{0.1})
	if sink.count() != 0 {
		t.Errorf("Expected no frames while playback busy, got %d", sink.count())
	}

	busy = false
	src.Push([]float32{0.1})
	if sink.count() != 1 {
		t.Errorf("Expected frame once playback idle, got %d", sink.count())
	}
}

func TestPipeline_SendFailureIsSwallowed(t *testing.T) {
	src := NewPushSource()
	sink := &recordingSink{err: errors.New("transport gone")}
	p := newTestPipeline(src, sink, nil)
	p.Start()

	// Must not panic and must keep the pipeline usable.
	src.Push([]float32{0.1})
	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	src.Push([]float32{0.2})
	if sink.count() != 1 {
		t.Errorf("Expected pipeline to recover after a dropped frame, got %d frames", sink.count())
	}
}

func TestPipeline_CloseIsIdempotent(t *testing.T) {
	src := NewPushSource()
	sink := &recordingSink{}
	p := newTestPipeline(src, sink, nil)
	p.Start()

	if err := p.Close(); err != nil {
		t.Errorf("First Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}

	src.Push([]float32{0.1})
	if sink.count() != 0 {
		t.Errorf("Expected no frames after Close, got %d", sink.count())
	}
}

func TestPipeline_StartAfterCloseFails(t *testing.T) {
	src := NewPushSource()
	p := newTestPipeline(src, &recordingSink{}, nil)
	p.Close()
	if err := p.Start(); err == nil {
		t.Error("Expected Start after Close to fail")
	}
}
