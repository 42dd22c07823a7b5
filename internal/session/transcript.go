package session

import "time"

// Role tags who authored a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the chat transcript. It is never modified after it
// is appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Transcript is an append-only, ordered list of messages.
type Transcript struct {
	messages []Message
}

// Append records a message at the end of the transcript.
func (t *Transcript) Append(role Role, content string) Message {
	msg := Message{Role: role, Content: content, CreatedAt: time.Now().UTC()}
	t.messages = append(t.messages, msg)
	return msg
}

// Messages returns a copy of the transcript in order.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) Len() int {
	return len(t.messages)
}

// Reset drops every message.
func (t *Transcript) Reset() {
	t.messages = nil
}
