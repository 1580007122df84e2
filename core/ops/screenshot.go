package ops

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jdelaire/hostctl/core/chat"
	"github.com/jdelaire/hostctl/core/retry"
)

// SendGap separates consecutive attachment sends.
const SendGap = 500 * time.Millisecond

// Screens captures one encoded image per display, left to right.
type Screens interface {
	Capture(ctx context.Context) ([][]byte, error)
}

// ScreenshotOp captures every display and sends each image back.
type ScreenshotOp struct {
	Screens Screens
	Texts   Texts
	Logger  *slog.Logger
	// Sleep waits between sends. Nil means retry.Sleep.
	Sleep retry.Sleeper
}

func (s *ScreenshotOp) Name() string        { return "screenshot" }
func (s *ScreenshotOp) Description() string { return "Capture every screen" }

func (s *ScreenshotOp) Execute(ctx context.Context, cc *CommandContext) error {
	if err := cc.Text(ctx, s.Texts.Executing); err != nil {
		return err
	}

	images, err := s.Screens.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capture screens: %w", err)
	}
	if len(images) == 0 {
		return cc.Text(ctx, s.Texts.NoScreens)
	}

	sleep := s.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}

	sent, skipped := 0, 0
	for i, img := range images {
		if i > 0 {
			if err := sleep(ctx, SendGap); err != nil {
				return err
			}
		}

		if len(img) > chat.MaxAttachmentBytes {
			skipped++
			s.Logger.Warn("screenshot too large", "screen", i+1, "bytes", len(img))
			notice := fmt.Sprintf(s.Texts.FileTooLarge, i+1, megabytes(len(img)), megabytes(chat.MaxAttachmentBytes))
			if err := cc.Text(ctx, notice); err != nil {
				return err
			}
			continue
		}

		if err := cc.Reply.SendAttachment(ctx, cc.Message.ChatID, img, s.caption(i, len(images))); err != nil {
			return fmt.Errorf("send screen %d: %w", i+1, err)
		}
		sent++
	}

	s.Logger.Info("screenshots sent", "screens", len(images), "sent", sent, "skipped", skipped)
	return nil
}

func (s *ScreenshotOp) caption(i, n int) string {
	if n == 1 {
		return s.Texts.ScreenshotTaken
	}
	return fmt.Sprintf(s.Texts.ScreenshotMonitor, i+1, n)
}

func megabytes(n int) float64 {
	return float64(n) / (1024 * 1024)
}
