package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/speaklab/practice-gateway/internal/config"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeProvider runs a websocket server that records the setup payload and
// outbound frames, and can push server messages.
type fakeProvider struct {
	t        *testing.T
	received chan map[string]interface{}
	send     chan interface{}
	server   *httptest.Server
}

func newFakeProvider(t *testing.T) *fakeProvider {
	fp := &fakeProvider{
		t:        t,
		received: make(chan map[string]interface{}, 16),
		send:     make(chan interface{}, 16),
	}
	fp.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		go func() {
			for msg := range fp.send {
				conn.WriteJSON(msg)
			}
		}()
		for {
			var raw map[string]interface{}
			if err := conn.ReadJSON(&raw); err != nil {
				return
			}
			fp.received <- raw
		}
	}))
	return fp
}

func (fp *fakeProvider) config() *config.Config {
	return &config.Config{
		ProviderURL:       "ws" + strings.TrimPrefix(fp.server.URL, "http"),
		ModelID:           "test-model",
		VoiceName:         "Puck",
		CaptureSampleRate: 16000,
		RenderSampleRate:  24000,
	}
}

func (fp *fakeProvider) next() map[string]interface{} {
	select {
	case msg := <-fp.received:
		return msg
	case <-time.After(2 * time.Second):
		fp.t.Fatal("Timed out waiting for frame")
		return nil
	}
}

func (fp *fakeProvider) close() {
	fp.server.Close()
}

func TestDial_SendsSetupPayload(t *testing.T) {
	fp := newFakeProvider(t)
	defer fp.close()

	stream, err := Dial(context.Background(), fp.config(), "secret-key", Setup{
		Model:             "test-model",
		SystemInstruction: "You are Sam.",
		VoiceName:         "Puck",
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer stream.Close()

	frame := fp.next()
	setup, ok := frame["setup"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected setup payload, got %v", frame)
	}
	if setup["model"] != "test-model" {
		t.Errorf("Expected model 'test-model', got %v", setup["model"])
	}
	gen, ok := setup["generationConfig"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected generationConfig in setup")
	}
	modalities, _ := gen["responseModalities"].([]interface{})
	if len(modalities) != 1 || modalities[0] != "AUDIO" {
		t.Errorf("Expected responseModalities [AUDIO], got %v", modalities)
	}
	if _, ok := setup["outputAudioTranscription"]; !ok {
		t.Error("Expected outputAudioTranscription request in setup")
	}
}

func TestStream_SendMedia(t *testing.T) {
	fp := newFakeProvider(t)
	defer fp.close()

	stream, err := Dial(context.Background(), fp.config(), "secret-key", Setup{Model: "m"})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer stream.Close()
	fp.next() // setup

	if err := stream.SendMedia("audio/pcm;rate=16000", []byte{0x01, 0x02}); err != nil {
		t.Fatalf("SendMedia failed: %v", err)
	}

	frame := fp.next()
	input, ok := frame["realtimeInput"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected realtimeInput, got %v", frame)
	}
	media, ok := input["media"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected media in realtimeInput")
	}
	if media["mimeType"] != "audio/pcm;rate=16000" {
		t.Errorf("Expected mimeType 'audio/pcm;rate=16000', got %v", media["mimeType"])
	}
	if media["data"] != "AQI=" {
		t.Errorf("Expected base64 data 'AQI=', got %v", media["data"])
	}
}

func TestStream_SendText(t *testing.T) {
	fp := newFakeProvider(t)
	defer fp.close()

	stream, err := Dial(context.Background(), fp.config(), "secret-key", Setup{Model: "m"})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer stream.Close()
	fp.next() // setup

	if err := stream.SendText("user", "hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	frame := fp.next()
	input := frame["realtimeInput"].(map[string]interface{})
	content, ok := input["content"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected content in realtimeInput")
	}
	if content["role"] != "user" {
		t.Errorf("Expected role 'user', got %v", content["role"])
	}
	parts := content["parts"].([]interface{})
	if len(parts) != 1 || parts[0].(map[string]interface{})["text"] != "hello" {
		t.Errorf("Unexpected parts: %v", parts)
	}
}

func TestStream_ReceivesServerMessages(t *testing.T) {
	fp := newFakeProvider(t)
	defer fp.close()

	stream, err := Dial(context.Background(), fp.config(), "secret-key", Setup{Model: "m"})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer stream.Close()

	fp.send <- map[string]interface{}{
		"serverContent": map[string]interface{}{
			"outputTranscription": map[string]interface{}{"text": "hi there"},
			"turnComplete":        true,
		},
	}

	select {
	case msg := <-stream.Messages():
		if msg.TranscriptText() != "hi there" {
			t.Errorf("Expected transcript 'hi there', got '%s'", msg.TranscriptText())
		}
		if !msg.ServerContent.TurnComplete {
			t.Error("Expected turnComplete true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for server message")
	}
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	fp := newFakeProvider(t)
	defer fp.close()

	stream, err := Dial(context.Background(), fp.config(), "secret-key", Setup{Model: "m"})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Errorf("First Close failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestServerMessage_AudioData(t *testing.T) {
	raw := `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AAA="}}]}}}`
	var msg ServerMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if msg.AudioData() != "AAA=" {
		t.Errorf("Expected audio data 'AAA=', got '%s'", msg.AudioData())
	}
}

func TestServerMessage_EmptyFields(t *testing.T) {
	var msg ServerMessage
	if msg.AudioData() != "" {
		t.Error("Expected empty audio data for empty message")
	}
	if msg.TranscriptText() != "" {
		t.Error("Expected empty transcript for empty message")
	}
}
