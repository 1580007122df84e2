package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/jdelaire/hostctl/core/chat"
)

// MenuOp answers /start and unrecognized text with the welcome text,
// the command list and the reply keyboard.
type MenuOp struct {
	Registry *Registry
	Texts    Texts
}

func (m *MenuOp) Name() string        { return "start" }
func (m *MenuOp) Description() string { return "Show the control keyboard" }
func (m *MenuOp) Privileged() bool    { return false }

func (m *MenuOp) Execute(ctx context.Context, cc *CommandContext) error {
	return cc.Reply.SendTextWithKeyboard(ctx, cc.Message.ChatID, m.text(), m.Keyboard())
}

// Keyboard lays the action labels out two per row.
func (m *MenuOp) Keyboard() chat.Keyboard {
	l := m.Texts.Labels
	return chat.Keyboard{
		Rows: [][]string{
			{l.Status, l.Screenshot},
			{l.Sleep, l.Hibernate},
			{l.Shutdown, l.Restart},
		},
		Resize:     true,
		OneTime:    false,
		Persistent: true,
	}
}

func (m *MenuOp) text() string {
	var b strings.Builder
	b.WriteString(m.Texts.Welcome)
	if m.Registry == nil {
		return b.String()
	}
	b.WriteString("\n")
	for _, op := range m.Registry.List() {
		if op.Name() == m.Name() {
			continue
		}
		fmt.Fprintf(&b, "\n/%s: %s", op.Name(), op.Description())
	}
	return b.String()
}

// BindLabels makes every keyboard label resolve to its op.
func BindLabels(r *Registry, l Labels) error {
	bindings := []struct{ label, name string }{
		{l.Status, "status"},
		{l.Screenshot, "screenshot"},
		{l.Sleep, "sleep"},
		{l.Hibernate, "hibernate"},
		{l.Shutdown, "shutdown"},
		{l.Restart, "restart"},
	}
	for _, b := range bindings {
		if err := r.Label(b.label, b.name); err != nil {
			return err
		}
	}
	return nil
}
