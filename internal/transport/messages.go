package transport

// Wire shapes for the provider's duplex stream. The first frame after
// dialing is the setup payload; every later outbound frame is a realtime
// input carrying either a media chunk or a text instruction.

// Setup describes the session configuration sent on stream open.
type Setup struct {
	Model             string
	SystemInstruction string
	VoiceName         string
}

type setupPayload struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string            `json:"model"`
	GenerationConfig         *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *Content          `json:"systemInstruction,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type clientPayload struct {
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
}

type realtimeInput struct {
	Media   *Media   `json:"media,omitempty"`
	Content *Content `json:"content,omitempty"`
}

// Media is a base64-wrapped audio chunk.
type Media struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Content is a role-tagged text instruction.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one element of a content message.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData carries base64-encoded audio in a model turn.
type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data"`
}

// ServerMessage is one inbound message. Its fields are independent
// conditions, not mutually exclusive branches: a single message may carry
// a transcript fragment and a turn-complete flag, or an interruption and
// no audio.
type ServerMessage struct {
	ServerContent *ServerContent `json:"serverContent,omitempty"`
}

// ServerContent is the demultiplexed payload of a server message.
type ServerContent struct {
	OutputTranscription *OutputTranscription `json:"outputTranscription,omitempty"`
	TurnComplete        bool                 `json:"turnComplete,omitempty"`
	Interrupted         bool                 `json:"interrupted,omitempty"`
	ModelTurn           *Content             `json:"modelTurn,omitempty"`
}

// OutputTranscription is a fragment of the model's spoken output as text.
type OutputTranscription struct {
	Text string `json:"text"`
}

// AudioData returns the first inline audio payload in the message, or
// empty if the message carries none.
func (m *ServerMessage) AudioData() string {
	if m.ServerContent == nil || m.ServerContent.ModelTurn == nil {
		return ""
	}
	for _, part := range m.ServerContent.ModelTurn.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			return part.InlineData.Data
		}
	}
	return ""
}

// TranscriptText returns the transcript fragment in the message, or empty.
func (m *ServerMessage) TranscriptText() string {
	if m.ServerContent == nil || m.ServerContent.OutputTranscription == nil {
		return ""
	}
	return m.ServerContent.OutputTranscription.Text
}
