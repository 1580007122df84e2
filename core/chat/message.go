package chat

import "time"

// Message represents a text message received from the chat service.
type Message struct {
	UpdateID int64
	ChatID   int64
	UserID   int64
	Text     string
	SentAt   time.Time
}

// Update is one entry of a getUpdates batch. Message is nil for update
// kinds the agent does not handle (edits, callbacks, non-text messages).
type Update struct {
	ID      int64
	Message *Message
}

// Keyboard describes a reply keyboard: rows of button labels.
type Keyboard struct {
	Rows       [][]string
	Resize     bool
	OneTime    bool
	Persistent bool
}
