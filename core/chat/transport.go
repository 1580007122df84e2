package chat

import (
	"context"
	"errors"
	"time"
)

// MaxAttachmentBytes is the largest attachment the agent will upload.
// Larger payloads are replaced by a text notice.
const MaxAttachmentBytes = 50 * 1024 * 1024

var (
	// ErrConflict means another consumer is polling updates with the same
	// credential. It is fatal for the current run.
	ErrConflict = errors.New("conflict: another instance is polling this bot")

	// ErrRateLimited means the service answered 429 Too Many Requests.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidCredential means the credential was rejected or is missing.
	ErrInvalidCredential = errors.New("invalid token")
)

// Transport is the chat service API surface used by the agent.
type Transport interface {
	ValidateCredential(ctx context.Context) bool
	FetchUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	Replier
}

// Replier sends outbound messages to a chat.
type Replier interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendTextWithKeyboard(ctx context.Context, chatID int64, text string, kb Keyboard) error
	SendAttachment(ctx context.Context, chatID int64, data []byte, caption string) error
}
