package core

import (
	"context"

	"github.com/jdelaire/hostctl/core/chat"
)

// MessageHandler processes one inbound message. It returns only after
// the message has been fully handled.
type MessageHandler func(ctx context.Context, msg chat.Message)
