package domain

import "time"

// Message senders, also used as chat roles when building prompts.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
	SenderSystem    = "system"
)

// Message is one entry in a session's conversation log.
type Message struct {
	Sender    string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"-"`
}
