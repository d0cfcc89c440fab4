package realtime

// ClientEvent is an event the session core sends toward the remote
// service. Implementations are plain structs that marshal directly to
// the wire payload, with the wire type pre-filled by their constructor.
type ClientEvent interface {
	ClientEventType() string
}

// TurnDetection describes a server-side voice-activity detector. A nil
// *TurnDetection in a session update disables detection entirely and
// hands turn boundaries to the client.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
}

// ServerVAD returns the fixed detector configuration used in automatic
// turn-taking mode. The threshold is deliberately high to reduce false
// triggers on ambient noise.
func ServerVAD() *TurnDetection {
	return &TurnDetection{
		Type:              "server_vad",
		Threshold:         0.9,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 500,
		CreateResponse:    true,
	}
}

type SessionConfig struct {
	// TurnDetection must serialize as an explicit null when unset; the
	// remote side treats a missing field as "keep current detector".
	TurnDetection *TurnDetection `json:"turn_detection"`
}

type SessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

func NewSessionUpdateEvent(turnDetection *TurnDetection) SessionUpdateEvent {
	return SessionUpdateEvent{
		Type:    "session.update",
		Session: SessionConfig{TurnDetection: turnDetection},
	}
}

func (e SessionUpdateEvent) ClientEventType() string { return e.Type }

type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ConversationItem struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

type ConversationItemCreateEvent struct {
	Type string           `json:"type"`
	Item ConversationItem `json:"item"`
}

func NewUserTextItemEvent(id string, text string) ConversationItemCreateEvent {
	return ConversationItemCreateEvent{
		Type: "conversation.item.create",
		Item: ConversationItem{
			ID:      id,
			Type:    "message",
			Role:    "user",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

func (e ConversationItemCreateEvent) ClientEventType() string { return e.Type }

type ResponseCreateEvent struct {
	Type string `json:"type"`
}

func NewResponseCreateEvent() ResponseCreateEvent {
	return ResponseCreateEvent{Type: "response.create"}
}

func (e ResponseCreateEvent) ClientEventType() string { return e.Type }

type InputAudioBufferClearEvent struct {
	Type string `json:"type"`
}

func NewInputAudioBufferClearEvent() InputAudioBufferClearEvent {
	return InputAudioBufferClearEvent{Type: "input_audio_buffer.clear"}
}

func (e InputAudioBufferClearEvent) ClientEventType() string { return e.Type }

type InputAudioBufferCommitEvent struct {
	Type string `json:"type"`
}

func NewInputAudioBufferCommitEvent() InputAudioBufferCommitEvent {
	return InputAudioBufferCommitEvent{Type: "input_audio_buffer.commit"}
}

func (e InputAudioBufferCommitEvent) ClientEventType() string { return e.Type }
