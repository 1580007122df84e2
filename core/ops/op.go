package ops

import (
	"context"

	"github.com/jdelaire/hostctl/core/chat"
)

// Op is the action bound to one command.
type Op interface {
	Name() string
	Description() string
	Execute(ctx context.Context, cc *CommandContext) error
}

// CommandContext is built per message and lives for one dispatch.
type CommandContext struct {
	Message    chat.Message
	Authorized bool
	Reply      chat.Replier
}

// Text replies to the originating chat.
func (cc *CommandContext) Text(ctx context.Context, text string) error {
	return cc.Reply.SendText(ctx, cc.Message.ChatID, text)
}

// PrivilegeClassifier is an optional interface ops implement to declare
// that they may run for callers outside the allowlist.
type PrivilegeClassifier interface {
	Privileged() bool
}

// IsPrivileged reports whether op requires an authorized caller.
// Ops that don't implement PrivilegeClassifier are privileged.
func IsPrivileged(op Op) bool {
	if c, ok := op.(PrivilegeClassifier); ok {
		return c.Privileged()
	}
	return true
}
