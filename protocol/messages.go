package protocol

import (
	"encoding/base64"
	"encoding/json"

	"pizzachat/core"
)

// MessageType enumerates all session protocol message types.
type MessageType string

const (
	// Client -> server
	MsgUserMessage MessageType = "user_message"
	MsgSetSpeech   MessageType = "set_speech"

	// Server -> client
	MsgAppend MessageType = "append"
	MsgPlay   MessageType = "play"
	MsgState  MessageType = "state"
	MsgError  MessageType = "error"
)

// Envelope is the outer JSON wrapper for all WebSocket session messages.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ChatMessage is the wire form of a core.Message; audio travels base64.
type ChatMessage struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
	Audio   string `json:"audio,omitempty"`
}

// FromCore converts a core.Message to its wire form.
func FromCore(msg core.Message) ChatMessage {
	out := ChatMessage{
		ID:      msg.ID,
		Role:    string(msg.Role),
		Content: msg.Content,
	}
	if len(msg.Audio) > 0 {
		out.Audio = base64.StdEncoding.EncodeToString(msg.Audio)
	}
	return out
}

// ToCore converts a wire message back to a core.Message. The audio field is
// ignored: clients never send audio, and completion input never carries it.
func (m ChatMessage) ToCore() core.Message {
	return core.Message{
		ID:      m.ID,
		Role:    core.Role(m.Role),
		Content: m.Content,
	}
}

// --- Client -> server payloads ---

type UserMessagePayload struct {
	Content string `json:"content"`
}

type SetSpeechPayload struct {
	Enabled bool `json:"enabled"`
}

// --- Server -> client payloads ---

// AppendPayload carries one message appended to the transcript.
type AppendPayload struct {
	Message ChatMessage `json:"message"`
}

// PlayPayload asks the client to play the audio of a transcript message
// exactly once.
type PlayPayload struct {
	MessageID string `json:"message_id"`
}

// StatePayload reports the controller's turn state.
type StatePayload struct {
	State string `json:"state"`
}

// ErrorPayload surfaces a failed turn so the client can render a visible
// error bubble.
type ErrorPayload struct {
	Gateway string `json:"gateway"`
	Detail  string `json:"detail"`
}

// --- HTTP API shapes ---

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// ChatResponse is the success envelope of POST /api/chat. The tagged
// {message: {role, content}} form is the one and only envelope; bare-string
// variants are not emitted or accepted.
type ChatResponse struct {
	Message ChatMessage `json:"message"`
	Audio   string      `json:"audio,omitempty"`
}

// SpeechRequest is the body of POST /api/speech.
type SpeechRequest struct {
	Text string `json:"text"`
}

// SpeechResponse is the success envelope of POST /api/speech and of
// GET /api/audio/greeting.
type SpeechResponse struct {
	Audio string `json:"audio"`
}

// ErrorResponse is the failure envelope for non-2xx API responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AssetErrorResponse is the failure envelope of the greeting clip endpoint.
type AssetErrorResponse struct {
	Message string `json:"message"`
}
