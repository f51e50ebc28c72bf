package conversation

import (
	"sync"

	"pizzachat/core"
)

// Transcript is the append-only log of messages for one session. Order is
// exchange order: a user message always precedes the assistant message that
// answers it, and nothing is ever reordered or removed. The controller is
// the single writer; readers take snapshots.
type Transcript struct {
	mu       sync.RWMutex
	messages []core.Message
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds one message to the end of the transcript. The system role is
// rejected: the preamble belongs to gateway payloads, never to the visible
// transcript.
func (t *Transcript) Append(msg core.Message) error {
	if !msg.Role.Valid() {
		return core.NewValidationError("unknown role %q", msg.Role)
	}
	if msg.Role == core.RoleSystem {
		return core.NewValidationError("system messages are not stored in the transcript")
	}
	if msg.Content == "" {
		return core.NewValidationError("message content must not be empty")
	}
	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current message sequence, safe to hold
// across later appends.
func (t *Transcript) Snapshot() []core.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]core.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of stored messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}
