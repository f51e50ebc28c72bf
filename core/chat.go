package core

import "github.com/google/uuid"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one conversational turn. A Message is immutable after creation
// except for the one-time attachment of Audio on assistant messages, which
// happens before the message is appended to a transcript.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Audio is the speech-synthesized rendering of Content. Present only on
	// assistant messages and only when speech is enabled. Absence means "no
	// audio available", never "audio pending".
	Audio []byte `json:"audio,omitempty"`
}

// NewMessage creates a Message with a fresh ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
	}
}

// WithAudio returns a copy of m with audio attached.
func (m Message) WithAudio(audio []byte) Message {
	m.Audio = audio
	return m
}
