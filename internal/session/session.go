package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/speaklab/practice-gateway/internal/audio"
	"github.com/speaklab/practice-gateway/internal/capture"
	"github.com/speaklab/practice-gateway/internal/config"
	"github.com/speaklab/practice-gateway/internal/credential"
	"github.com/speaklab/practice-gateway/internal/observability"
	"github.com/speaklab/practice-gateway/internal/playback"
	"github.com/speaklab/practice-gateway/internal/topics"
	"github.com/speaklab/practice-gateway/internal/transport"
)

const (
	// kickoffText nudges the model to open the discussion instead of
	// waiting for the learner to speak first.
	kickoffText = "Sam, please start the discussion now by greeting me and introducing the task."

	// feedbackInstruction switches the model from roleplay into its
	// evaluation persona.
	feedbackInstruction = "[REQUEST_FEEDBACK] That's all for our discussion. Please give me oral feedback now. Tell me if I used target expressions, gave reasons and examples, and how I can improve."

	// endMarker is appended by the model at the very end of its final
	// feedback response. It is stripped from captions.
	endMarker = "[SESSION_FINISHED]"

	// minTurnsForFeedback is how many completed model turns must pass
	// before feedback is worth requesting.
	minTurnsForFeedback = 3

	// keepaliveSamples is 10ms of silence at the capture rate, enough
	// to keep the provider connection from idling out.
	keepaliveSamples = 160
)

// Callbacks notify the presentation layer of session changes. Both may
// be nil. They are invoked without session locks held but from internal
// goroutines, so implementations must be safe for concurrent use.
type Callbacks struct {
	OnState   func(state State)
	OnCaption func(text string)
}

// Session runs one practice conversation end to end.
type Session struct {
	id      string
	cfg     *config.Config
	creds   credential.Fetcher
	dial    transport.Dialer
	source  capture.Source
	sink    playback.Sink
	clockFn func() playback.Clock
	cb      Callbacks
	logger  zerolog.Logger
	metrics *observability.Metrics

	mu         sync.Mutex
	state      State
	gen        uint64
	stream     transport.Stream
	pipeline   *capture.Pipeline
	scheduler  *playback.Scheduler
	stopKeep   chan struct{}
	stopKick   func() bool
	closing    bool
	transcript string
	turnSealed bool
	turnCount  int
}

// New builds an idle session. source supplies microphone samples, sink
// renders model audio. dial may be nil to use the default provider
// transport.
func New(cfg *config.Config, creds credential.Fetcher, dial transport.Dialer, source capture.Source, sink playback.Sink, cb Callbacks) *Session {
	if dial == nil {
		dial = transport.Dial
	}
	id := observability.NewSessionID()
	return &Session{
		id:      id,
		cfg:     cfg,
		creds:   creds,
		dial:    dial,
		source:  source,
		sink:    sink,
		clockFn: playback.NewClock,
		cb:      cb,
		logger:  observability.WithSessionID(id),
		metrics: observability.NewSessionMetrics(id),
		state:   StateDisconnected,
	}
}

// ID returns the session identifier used in logs and metrics.
func (s *Session) ID() string { return s.id }

// Connect starts a conversation on the given topic. Any previous
// conversation is torn down first. The microphone is only acquired once
// the credential fetch and provider dial both succeed.
func (s *Session) Connect(ctx context.Context, topicID string) error {
	s.teardown(StateDisconnected)

	topic, ok := topics.Lookup(topicID)
	if !ok {
		return fmt.Errorf("session: unknown topic %q", topicID)
	}

	// Teardowns bump the generation. Any teardown landing while the
	// credential fetch or dial is in flight invalidates this attempt.
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	s.setState(StateConnecting)
	s.logger.Info().Str("topic", topicID).Msg("Session connecting")

	s.metrics.RecordCredentialStart()
	cred, err := s.creds.Fetch(ctx)
	s.metrics.RecordCredentialEnd(err == nil)
	if s.staleGen(gen) {
		return fmt.Errorf("session: closed during connect")
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Credential fetch failed")
		s.setState(StateError)
		return err
	}

	setup := transport.Setup{
		Model:             s.cfg.ModelID,
		SystemInstruction: topics.SystemInstruction(topic),
		VoiceName:         s.cfg.VoiceName,
	}
	stream, err := s.dial(ctx, s.cfg, cred.Key, setup)
	if err != nil {
		if s.staleGen(gen) {
			return fmt.Errorf("session: closed during connect")
		}
		s.logger.Error().Err(err).Msg("Provider dial failed")
		s.metrics.RecordError("dial", "session")
		s.setState(StateError)
		return err
	}

	scheduler := playback.NewScheduler(s.clockFn(), s.sink, s.metrics, s.logger)
	pipeline := capture.NewPipeline(s.source, frameSink{s}, scheduler.Busy, s.metrics, s.logger)

	s.mu.Lock()
	if s.gen != gen {
		// Torn down while dialing. The teardown already settled the
		// final state; the fresh stream must not outlive this attempt.
		s.mu.Unlock()
		stream.Close()
		s.logger.Info().Msg("Connect aborted by teardown")
		return fmt.Errorf("session: closed during connect")
	}
	s.stream = stream
	s.scheduler = scheduler
	s.pipeline = pipeline
	s.closing = false
	s.transcript = ""
	s.turnSealed = false
	s.turnCount = 0
	s.stopKeep = make(chan struct{})
	s.mu.Unlock()

	s.metrics.RecordSessionStart()
	go s.readLoop(stream)
	go s.keepaliveLoop(stream, s.stopKeep)

	// The model receives the opening nudge shortly after setup so its
	// greeting is the first thing the learner hears; the microphone
	// opens right behind it.
	kick := time.AfterFunc(time.Duration(s.cfg.KickoffDelayMs)*time.Millisecond, func() {
		if err := stream.SendText("user", kickoffText); err != nil {
			s.logger.Warn().Err(err).Msg("Kickoff send failed")
			s.metrics.RecordError("kickoff", "session")
		}
		if err := pipeline.Start(); err != nil {
			s.logger.Error().Err(err).Msg("Capture start failed")
			s.metrics.RecordError("capture_start", "session")
		}
	})
	s.mu.Lock()
	s.stopKick = kick.Stop
	s.mu.Unlock()

	s.setState(StateConnected)
	s.logger.Info().Msg("Session connected")
	return nil
}

// staleGen reports whether a teardown has run since the generation was
// captured.
func (s *Session) staleGen(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != gen
}

// frameSink adapts the session's outbound media path to the capture
// pipeline.
type frameSink struct{ s *Session }

func (f frameSink) SendFrame(data []byte) error {
	f.s.mu.Lock()
	stream := f.s.stream
	rate := f.s.cfg.CaptureSampleRate
	f.s.mu.Unlock()
	if stream == nil {
		return transport.ErrTransport
	}
	return stream.SendMedia(fmt.Sprintf("audio/pcm;rate=%d", rate), data)
}

func (s *Session) readLoop(stream transport.Stream) {
	for msg := range stream.Messages() {
		s.handleMessage(msg)
	}

	s.mu.Lock()
	closing := s.closing || s.stream != stream
	s.mu.Unlock()
	if closing {
		return
	}

	// The provider hung up on us. Terminal; the learner reconnects by
	// starting a new session.
	err := stream.Err()
	if err != nil {
		s.logger.Error().Err(err).Msg("Provider stream failed")
		s.metrics.RecordError("stream", "session")
		s.teardown(StateError)
		return
	}
	s.logger.Info().Msg("Provider stream closed")
	s.teardown(StateDisconnected)
}

func (s *Session) handleMessage(msg *transport.ServerMessage) {
	sc := msg.ServerContent
	if sc == nil {
		return
	}

	if text := msg.TranscriptText(); text != "" {
		s.appendCaption(text)
	}

	if sc.TurnComplete {
		s.mu.Lock()
		s.turnCount++
		s.turnSealed = true
		count := s.turnCount
		s.mu.Unlock()
		s.metrics.RecordTurn()
		s.logger.Debug().Int("turn", count).Msg("Turn complete")
	}

	if sc.Interrupted {
		s.handleInterrupted()
	}

	if data := msg.AudioData(); data != "" {
		s.enqueueAudio(data)
	}
}

// handleInterrupted reacts to the user barging in over the model: queued
// playback is discarded and the half-spoken caption is wiped so the next
// reply starts a fresh one.
func (s *Session) handleInterrupted() {
	s.mu.Lock()
	scheduler := s.scheduler
	s.transcript = ""
	s.turnSealed = false
	s.mu.Unlock()

	if scheduler != nil {
		scheduler.Interrupt()
	}
	if s.cb.OnCaption != nil {
		s.cb.OnCaption("")
	}
}

// appendCaption grows the caption for the current model turn. The first
// fragment after a completed turn replaces the previous caption instead
// of extending it.
func (s *Session) appendCaption(text string) {
	s.mu.Lock()
	if s.turnSealed {
		s.transcript = ""
		s.turnSealed = false
	}
	s.transcript += text

	finished := strings.Contains(s.transcript, endMarker)
	if finished {
		s.transcript = strings.TrimSpace(strings.ReplaceAll(s.transcript, endMarker, ""))
	}
	caption := s.transcript
	s.mu.Unlock()

	if s.cb.OnCaption != nil {
		s.cb.OnCaption(caption)
	}
	if finished {
		s.logger.Info().Msg("Session finished by model")
		s.teardown(StateFinished)
	}
}

func (s *Session) enqueueAudio(b64 string) {
	raw, err := audio.DecodeBase64(b64)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Dropping undecodable audio payload")
		s.metrics.RecordError("decode", "session")
		return
	}
	seg, err := audio.DecodeSegment(raw, s.cfg.RenderSampleRate)
	if err != nil {
		// One bad segment is dropped; the conversation goes on.
		s.logger.Warn().Err(err).Msg("Dropping malformed audio segment")
		s.metrics.RecordError("decode", "session")
		return
	}

	s.mu.Lock()
	scheduler := s.scheduler
	s.mu.Unlock()
	if scheduler != nil {
		scheduler.Enqueue(seg)
		s.metrics.RecordAudioBytes("playback", int64(len(raw)))
	}
}

func (s *Session) keepaliveLoop(stream transport.Stream, stop <-chan struct{}) {
	interval := time.Duration(s.cfg.KeepaliveIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	frame := audio.SilenceFrame(keepaliveSamples)
	mime := fmt.Sprintf("audio/pcm;rate=%d", s.cfg.CaptureSampleRate)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := stream.SendMedia(mime, frame)
			s.metrics.RecordKeepalive(err == nil)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Keepalive send failed")
			}
		}
	}
}

// SetMuted suppresses or resumes microphone forwarding.
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	pipeline := s.pipeline
	s.mu.Unlock()
	if pipeline != nil {
		pipeline.SetMuted(muted)
	}
}

// Muted reports whether the microphone is suppressed.
func (s *Session) Muted() bool {
	s.mu.Lock()
	pipeline := s.pipeline
	s.mu.Unlock()
	return pipeline != nil && pipeline.Muted()
}

// RequestFeedback asks the model to stop the roleplay and grade the
// learner. Only valid once enough turns have completed.
func (s *Session) RequestFeedback() error {
	s.mu.Lock()
	ready := s.state == StateConnected && s.turnCount >= minTurnsForFeedback
	stream := s.stream
	s.mu.Unlock()
	if !ready || stream == nil {
		return fmt.Errorf("session: feedback not available yet")
	}

	if err := stream.SendText("user", feedbackInstruction); err != nil {
		s.logger.Error().Err(err).Msg("Feedback request failed")
		s.metrics.RecordError("feedback", "session")
		return err
	}
	s.setState(StateGrading)
	s.logger.Info().Msg("Feedback requested")
	return nil
}

// FeedbackReady reports whether RequestFeedback would be accepted.
func (s *Session) FeedbackReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected && s.turnCount >= minTurnsForFeedback
}

// Disconnect ends the conversation and releases all resources.
func (s *Session) Disconnect() {
	s.logger.Info().Msg("Session disconnect requested")
	s.teardown(StateDisconnected)
}

// Close is Disconnect under another name, for defer chains.
func (s *Session) Close() error {
	s.teardown(StateDisconnected)
	return nil
}

// teardown releases the stream, capture and playback resources exactly
// once and moves the session to final. Safe to call repeatedly and from
// any goroutine.
func (s *Session) teardown(final State) {
	s.mu.Lock()
	stream := s.stream
	pipeline := s.pipeline
	scheduler := s.scheduler
	stopKeep := s.stopKeep
	stopKick := s.stopKick
	hadResources := stream != nil || pipeline != nil || scheduler != nil
	s.gen++
	s.closing = true
	s.stream = nil
	s.pipeline = nil
	s.scheduler = nil
	s.stopKeep = nil
	s.stopKick = nil
	// The caption resets with the conversation, except when the model
	// finished cleanly: the final feedback text stays on screen.
	clearedCaption := false
	if final != StateFinished && s.transcript != "" {
		s.transcript = ""
		s.turnSealed = false
		clearedCaption = true
	}
	s.mu.Unlock()

	if stopKick != nil {
		stopKick()
	}
	if stopKeep != nil {
		close(stopKeep)
	}
	if pipeline != nil {
		pipeline.Close()
	}
	if scheduler != nil {
		scheduler.Close()
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Stream close reported error")
		}
	}
	if hadResources {
		s.metrics.RecordSessionEnd()
	}
	if clearedCaption && s.cb.OnCaption != nil {
		s.cb.OnCaption("")
	}

	s.setState(final)
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = next
	s.mu.Unlock()

	s.logger.Debug().
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("State changed")
	if s.cb.OnState != nil {
		s.cb.OnState(next)
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns the caption for the current model turn.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// TurnCount returns the number of completed model turns.
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

// Speaking reports whether model audio is queued or playing.
func (s *Session) Speaking() bool {
	s.mu.Lock()
	scheduler := s.scheduler
	s.mu.Unlock()
	return scheduler != nil && scheduler.Busy()
}

// Volume returns the current playback loudness in [0,1].
func (s *Session) Volume() float64 {
	s.mu.Lock()
	scheduler := s.scheduler
	s.mu.Unlock()
	if scheduler == nil {
		return 0
	}
	return scheduler.Volume()
}
