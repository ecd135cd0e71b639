package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/speaklab/practice-gateway/internal/audio"
	"github.com/speaklab/practice-gateway/internal/capture"
	"github.com/speaklab/practice-gateway/internal/config"
	"github.com/speaklab/practice-gateway/internal/credential"
	"github.com/speaklab/practice-gateway/internal/observability"
	"github.com/speaklab/practice-gateway/internal/playback"
	"github.com/speaklab/practice-gateway/internal/session"
	"github.com/speaklab/practice-gateway/internal/topics"
	"github.com/speaklab/practice-gateway/internal/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin against the app's allowed hosts.
		// For now, allow all origins (development only)
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ClientSession bridges one browser websocket to one practice session.
// The browser is both the microphone source and the playback sink.
type ClientSession struct {
	conn    *websocket.Conn
	cfg     *config.Config
	session *session.Session
	mic     *capture.PushSource

	mu       sync.RWMutex
	isActive bool

	// Outbound messages go through a single writer goroutine.
	outbound chan *ServerEvent

	logger zerolog.Logger

	done chan struct{}
}

// NewClientSession wires a fresh session to the given browser
// connection.
func NewClientSession(conn *websocket.Conn, cfg *config.Config, creds credential.Fetcher, dial transport.Dialer, logger zerolog.Logger) *ClientSession {
	cs := &ClientSession{
		conn:     conn,
		cfg:      cfg,
		mic:      capture.NewPushSource(),
		outbound: make(chan *ServerEvent, 64),
		done:     make(chan struct{}),
		isActive: true,
	}

	source := capture.NewBufferedSource(cs.mic, cfg.CaptureBlockSize, cfg.SampleBufferSize)
	cs.session = session.New(cfg, creds, dial, source, cs, session.Callbacks{
		OnState:   cs.onState,
		OnCaption: cs.onCaption,
	})
	cs.logger = logger.With().Str("session_id", cs.session.ID()).Logger()
	return cs
}

// Handler is the websocket entry point for browser clients.
func Handler(cfg *config.Config, creds credential.Fetcher, dial transport.Dialer) http.HandlerFunc {
	logger := observability.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		cs := NewClientSession(conn, cfg, creds, dial, logger)
		cs.logger.Info().Str("remote", r.RemoteAddr).Msg("Client connected")

		go cs.writePump()
		go cs.animationLoop()
		cs.send(&ServerEvent{Event: EventTopics, Topics: topics.All()})

		cs.readLoop()
		cs.close()
		cs.logger.Info().Msg("Client disconnected")
	}
}

// readLoop processes messages from the browser until the socket closes.
func (cs *ClientSession) readLoop() {
	for {
		cs.mu.RLock()
		active := cs.isActive
		cs.mu.RUnlock()
		if !active {
			return
		}

		var msg ClientMessage
		if err := cs.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cs.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
		cs.handleMessage(&msg)
	}
}

func (cs *ClientSession) handleMessage(msg *ClientMessage) {
	switch msg.Event {
	case EventConnect:
		go func() {
			// The credential fetch and provider dial can take a while;
			// keep reading client messages meanwhile.
			ctx, cancel := contextWithTimeout()
			defer cancel()
			if err := cs.session.Connect(ctx, msg.TopicID); err != nil {
				cs.logger.Error().Err(err).Str("topic", msg.TopicID).Msg("Connect failed")
				cs.send(&ServerEvent{Event: EventError, Message: "could not start session"})
			}
		}()

	case EventAudio:
		raw, err := audio.DecodeBase64(msg.Data)
		if err != nil {
			cs.logger.Warn().Err(err).Msg("Dropping undecodable microphone payload")
			return
		}
		samples, err := audio.DecodeSamples(raw)
		if err != nil {
			cs.logger.Warn().Err(err).Msg("Dropping malformed microphone payload")
			return
		}
		cs.mic.Push(samples)

	case EventMute:
		cs.session.SetMuted(msg.Muted)

	case EventFeedback:
		if err := cs.session.RequestFeedback(); err != nil {
			cs.send(&ServerEvent{Event: EventError, Message: "feedback not available yet"})
		}

	case EventDisconnect:
		cs.session.Disconnect()

	default:
		cs.logger.Debug().Str("event", msg.Event).Msg("Ignoring unknown client event")
	}
}

// PlaySegment forwards a scheduled model segment to the browser.
func (cs *ClientSession) PlaySegment(seg *audio.Segment) {
	cs.send(&ServerEvent{
		Event:      EventAudio,
		Data:       audio.EncodeBase64(audio.EncodeFrame(seg.Samples)),
		SampleRate: seg.SampleRate,
	})
}

var _ playback.Sink = (*ClientSession)(nil)

func (cs *ClientSession) onState(state session.State) {
	cs.send(&ServerEvent{
		Event:         EventState,
		State:         state.String(),
		TurnCount:     cs.session.TurnCount(),
		FeedbackReady: cs.session.FeedbackReady(),
	})
}

func (cs *ClientSession) onCaption(text string) {
	cs.send(&ServerEvent{Event: EventCaption, Text: text})
}

// animationLoop streams playback volume and turn progress to the client
// at a fixed cadence so the UI can animate the speaking avatar.
func (cs *ClientSession) animationLoop() {
	ticker := time.NewTicker(time.Duration(cs.cfg.TickIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-cs.done:
			return
		case <-ticker.C:
			if !cs.session.State().Active() {
				continue
			}
			cs.send(&ServerEvent{
				Event:         EventTick,
				Volume:        cs.session.Volume(),
				Speaking:      cs.session.Speaking(),
				TurnCount:     cs.session.TurnCount(),
				FeedbackReady: cs.session.FeedbackReady(),
			})
		}
	}
}

// writePump serializes all outbound writes onto the socket.
func (cs *ClientSession) writePump() {
	for {
		select {
		case <-cs.done:
			return
		case evt := <-cs.outbound:
			if err := cs.conn.WriteJSON(evt); err != nil {
				cs.logger.Warn().Err(err).Msg("WebSocket write failed")
				return
			}
		}
	}
}

// send queues an event for the client, dropping it if the outbound
// queue is full or the session is closing. Ticks are disposable and
// everything else is retried by state resync on the next event.
func (cs *ClientSession) send(evt *ServerEvent) {
	select {
	case cs.outbound <- evt:
	case <-cs.done:
	default:
		cs.logger.Debug().Str("event", evt.Event).Msg("Dropping outbound event, queue full")
	}
}

// connectTimeout bounds the credential fetch plus provider dial.
const connectTimeout = 30 * time.Second

func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), connectTimeout)
}

func (cs *ClientSession) close() {
	cs.mu.Lock()
	if !cs.isActive {
		cs.mu.Unlock()
		return
	}
	cs.isActive = false
	cs.mu.Unlock()

	cs.session.Close()
	close(cs.done)
}
