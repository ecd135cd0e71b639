package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/speaklab/practice-gateway/internal/audio"
	"github.com/speaklab/practice-gateway/internal/config"
	"github.com/speaklab/practice-gateway/internal/observability"
)

// ErrTransport wraps stream-level failures. A transport error is terminal
// for the session that owns the stream; there is no automatic reconnect.
var ErrTransport = errors.New("transport error")

// Stream is the opaque duplex connection to the remote conversational
// model. Sends are fire-and-forget from the caller's point of view;
// failures surface through the message channel closing and Err.
type Stream interface {
	// SendMedia relays one base64-wrapped audio chunk.
	SendMedia(mimeType string, data []byte) error

	// SendText relays one role-tagged text instruction.
	SendText(role, text string) error

	// Messages yields inbound messages until the stream closes.
	Messages() <-chan *ServerMessage

	// Err reports why the stream closed, or nil for a clean remote close.
	Err() error

	// Close shuts the stream down. Safe to call more than once.
	Close() error
}

// Dialer opens a stream to the provider. The session holds a Dialer so
// tests can substitute a fake stream.
type Dialer func(ctx context.Context, cfg *config.Config, key string, setup Setup) (Stream, error)

type wsStream struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex // gorilla allows one concurrent writer

	messages chan *ServerMessage

	mu     sync.Mutex
	err    error
	closed bool
}

// Dial opens the provider websocket, sends the setup payload, and starts
// the inbound read loop.
func Dial(ctx context.Context, cfg *config.Config, key string, setup Setup) (Stream, error) {
	endpoint, err := url.Parse(cfg.ProviderURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid provider url: %v", ErrTransport, err)
	}
	q := endpoint.Query()
	q.Set("key", key)
	endpoint.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", ErrTransport, err)
	}

	s := &wsStream{
		conn:     conn,
		logger:   observability.GetLogger().With().Str("component", "transport").Logger(),
		messages: make(chan *ServerMessage, 64),
	}

	if err := s.writeJSON(setupPayload{Setup: setupConfig{
		Model: setup.Model,
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: setup.VoiceName},
				},
			},
		},
		SystemInstruction: &Content{
			Parts: []Part{{Text: setup.SystemInstruction}},
		},
		OutputAudioTranscription: &struct{}{},
	}}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: setup: %v", ErrTransport, err)
	}

	go s.readLoop()
	return s, nil
}

func (s *wsStream) readLoop() {
	defer close(s.messages)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.err = fmt.Errorf("%w: %v", ErrTransport, err)
			}
			s.mu.Unlock()
			if !closed {
				s.logger.Warn().Err(err).Msg("Provider stream closed")
			}
			return
		}

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Error().Err(err).Msg("Failed to parse provider message")
			continue
		}
		s.messages <- &msg
	}
}

func (s *wsStream) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *wsStream) SendMedia(mimeType string, data []byte) error {
	return s.writeJSON(clientPayload{RealtimeInput: &realtimeInput{
		Media: &Media{MimeType: mimeType, Data: audio.EncodeBase64(data)},
	}})
}

func (s *wsStream) SendText(role, text string) error {
	return s.writeJSON(clientPayload{RealtimeInput: &realtimeInput{
		Content: &Content{Role: role, Parts: []Part{{Text: text}}},
	}})
}

func (s *wsStream) Messages() <-chan *ServerMessage {
	return s.messages
}

func (s *wsStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Best effort: the remote may already be gone.
	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return s.conn.Close()
}
