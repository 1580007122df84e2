package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jdelaire/hostctl/core/chat"
	"github.com/jdelaire/hostctl/internal/sysinfo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// outbound is one send seen by spyReplier.
type outbound struct {
	kind    string
	chatID  int64
	text    string
	buttons int
}

type spyReplier struct {
	mu   sync.Mutex
	sent []outbound
}

func (s *spyReplier) add(o outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, o)
	return nil
}

func (s *spyReplier) SendText(_ context.Context, chatID int64, text string) error {
	return s.add(outbound{kind: "text", chatID: chatID, text: text})
}

func (s *spyReplier) SendTextWithKeyboard(_ context.Context, chatID int64, text string, kb chat.Keyboard) error {
	n := 0
	for _, row := range kb.Rows {
		n += len(row)
	}
	return s.add(outbound{kind: "keyboard", chatID: chatID, text: text, buttons: n})
}

func (s *spyReplier) SendAttachment(_ context.Context, chatID int64, _ []byte, caption string) error {
	return s.add(outbound{kind: "attachment", chatID: chatID, text: caption})
}

func (s *spyReplier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *spyReplier) all() []outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbound(nil), s.sent...)
}

func (s *spyReplier) last() outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return outbound{}
	}
	return s.sent[len(s.sent)-1]
}

type fixedInfo struct{}

func (fixedInfo) Collect(context.Context) (sysinfo.Info, error) {
	return sysinfo.Info{
		HostName:       "workstation",
		Processor:      "AMD Ryzen 7 5800X",
		Uptime:         3*time.Hour + 15*time.Second,
		UsedMemoryGiB:  11.3,
		TotalMemoryGiB: 31.9,
	}, nil
}

type countingRunner struct {
	mu         sync.Mutex
	directives []string
}

func (r *countingRunner) Run(_ context.Context, directive string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.directives = append(r.directives, directive)
	return nil
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.directives)
}

func noSleep(context.Context, time.Duration) error { return nil }
