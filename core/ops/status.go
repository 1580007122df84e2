package ops

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/jdelaire/hostctl/internal/sysinfo"
)

// InfoSource reports host metrics.
type InfoSource interface {
	Collect(ctx context.Context) (sysinfo.Info, error)
}

// StatusOp replies with host name, processor, uptime and memory use.
type StatusOp struct {
	Info  InfoSource
	Texts Texts
}

func (s *StatusOp) Name() string        { return "status" }
func (s *StatusOp) Description() string { return "Show host status" }

func (s *StatusOp) Execute(ctx context.Context, cc *CommandContext) error {
	info, err := s.Info.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collect system info: %w", err)
	}
	return cc.Text(ctx, s.format(info))
}

func (s *StatusOp) format(info sysinfo.Info) string {
	up := info.Uptime.Truncate(time.Second)
	days := int(up / (24 * time.Hour))
	hours := int(up/time.Hour) % 24
	minutes := int(up/time.Minute) % 60
	seconds := int(up/time.Second) % 60

	return fmt.Sprintf(s.Texts.Status,
		html.EscapeString(info.HostName),
		html.EscapeString(info.Processor),
		days, hours, minutes, seconds,
		info.UsedMemoryGiB, info.TotalMemoryGiB)
}
