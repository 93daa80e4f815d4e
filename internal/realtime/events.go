package realtime

import (
	"encoding/json"
	"fmt"
)

// Inbound event types sent by the realtime voice endpoint
const (
	EventSpeechStarted          = "input_audio_buffer.speech_started"
	EventSpeechStopped          = "input_audio_buffer.speech_stopped"
	EventAudioBufferCommitted   = "input_audio_buffer.committed"
	EventInputTranscription     = "conversation.item.input_audio_transcription"
	EventInputTranscriptionPart = "conversation.item.input_audio_transcription.delta"
	EventInputTranscriptionDone = "conversation.item.input_audio_transcription.completed"
	EventAudioTranscriptDelta   = "response.audio_transcript.delta"
	EventAudioTranscriptDone    = "response.audio_transcript.done"
	EventOutputTranscriptDelta  = "response.output_audio_transcript.delta"
	EventOutputTranscriptDone   = "response.output_audio_transcript.done"
	EventFunctionCallArgsDone   = "response.function_call_arguments.done"
	EventError                  = "error"
)

// Outbound event types
const (
	EventSessionUpdate      = "session.update"
	EventConversationCreate = "conversation.item.create"
	EventResponseCreate     = "response.create"
)

// Event is an inbound protocol event. Only the fields the dispatcher reads are
// decoded; Raw keeps the original payload for the event log.
type Event struct {
	Type       string  `json:"type"`
	EventID    string  `json:"event_id,omitempty"`
	ItemID     string  `json:"item_id,omitempty"`
	Transcript *string `json:"transcript,omitempty"`
	Text       *string `json:"text,omitempty"`
	Delta      string  `json:"delta,omitempty"`
	Name       string  `json:"name,omitempty"`
	Arguments  string  `json:"arguments,omitempty"`
	CallID     string  `json:"call_id,omitempty"`
	Error      *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// DecodeEvent parses a data channel message
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("event has no type")
	}
	ev.Raw = append(json.RawMessage(nil), data...)
	return ev, nil
}

const placeholderSpeaking = "User is speaking..."

// PartialTranscript returns the in-progress user transcript carried by ev
func (ev Event) PartialTranscript() string {
	if ev.Transcript != nil {
		return *ev.Transcript
	}
	if ev.Text != nil {
		return *ev.Text
	}
	return placeholderSpeaking
}

// FinalTranscript returns the completed user transcript carried by ev
func (ev Event) FinalTranscript() string {
	if ev.Transcript != nil {
		return *ev.Transcript
	}
	return ""
}

// SessionConfig is the body of a session.update event
type SessionConfig struct {
	Modalities              []string         `json:"modalities"`
	Tools                   []ToolDefinition `json:"tools"`
	InputAudioTranscription *Transcription   `json:"input_audio_transcription,omitempty"`
}

// Transcription selects the model that transcribes the user's audio
type Transcription struct {
	Model string `json:"model"`
}

// SessionUpdate configures the remote session once the data channel opens
type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// NewSessionUpdate builds the session.update sent on channel open
func NewSessionUpdate(tools []ToolDefinition) SessionUpdate {
	if tools == nil {
		tools = []ToolDefinition{}
	}
	return SessionUpdate{
		Type: EventSessionUpdate,
		Session: SessionConfig{
			Modalities:              []string{"text", "audio"},
			Tools:                   tools,
			InputAudioTranscription: &Transcription{Model: "whisper-1"},
		},
	}
}

// ContentPart is one part of a conversation message
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ConversationItem is the item of a conversation.item.create event
type ConversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
}

// ConversationItemCreate adds an item to the remote conversation
type ConversationItemCreate struct {
	Type string           `json:"type"`
	Item ConversationItem `json:"item"`
}

// NewUserTextMessage builds a typed user message
func NewUserTextMessage(text string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: EventConversationCreate,
		Item: ConversationItem{
			Type:    "message",
			Role:    "user",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

// NewFunctionCallOutput reports a tool result back to the model
func NewFunctionCallOutput(callID, output string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: EventConversationCreate,
		Item: ConversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}
}

// ResponseCreate asks the model to respond
type ResponseCreate struct {
	Type string `json:"type"`
}

// NewResponseCreate builds a response.create event
func NewResponseCreate() ResponseCreate {
	return ResponseCreate{Type: EventResponseCreate}
}
