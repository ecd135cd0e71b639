// Package gateway exposes the practice session to browsers over a
// websocket. The client streams microphone audio up and receives model
// audio, captions and state changes back on the same connection.
package gateway

import "github.com/speaklab/practice-gateway/internal/topics"

// ClientMessage is a message from the browser.
type ClientMessage struct {
	Event   string `json:"event"`
	TopicID string `json:"topicId,omitempty"`
	Data    string `json:"data,omitempty"` // base64 PCM16 microphone audio
	Muted   bool   `json:"muted,omitempty"`
}

// Client event names.
const (
	EventConnect    = "connect"
	EventAudio      = "audio"
	EventMute       = "mute"
	EventFeedback   = "feedback"
	EventDisconnect = "disconnect"
)

// ServerEvent is a message to the browser.
type ServerEvent struct {
	Event         string         `json:"event"`
	State         string         `json:"state,omitempty"`
	Text          string         `json:"text,omitempty"`
	Data          string         `json:"data,omitempty"` // base64 PCM16 model audio
	SampleRate    int            `json:"sampleRate,omitempty"`
	Volume        float64        `json:"volume,omitempty"`
	Speaking      bool           `json:"speaking,omitempty"`
	TurnCount     int            `json:"turnCount,omitempty"`
	FeedbackReady bool           `json:"feedbackReady,omitempty"`
	Message       string         `json:"message,omitempty"`
	Topics        []topics.Topic `json:"topics,omitempty"`
}

// Server event names.
const (
	EventState   = "state"
	EventCaption = "caption"
	EventTick    = "tick"
	EventError   = "error"
	EventTopics  = "topics"
)
