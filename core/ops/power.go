package ops

import (
	"context"
	"log/slog"
	"time"

	"github.com/jdelaire/hostctl/core/retry"
)

// ConfirmDelay gives the remote user time to read the confirmation
// before the host becomes unreachable.
const ConfirmDelay = 2000 * time.Millisecond

// ActionRunner executes an OS power directive.
type ActionRunner interface {
	Run(ctx context.Context, directive string) error
}

// PowerOp acknowledges, confirms, waits ConfirmDelay and then runs its
// directive.
type PowerOp struct {
	Command   string
	Summary   string
	Confirm   string
	Directive string
	Runner    ActionRunner
	Texts     Texts
	Logger    *slog.Logger
	// Sleep waits out ConfirmDelay. Nil means retry.Sleep.
	Sleep retry.Sleeper
}

func (p *PowerOp) Name() string        { return p.Command }
func (p *PowerOp) Description() string { return p.Summary }

func (p *PowerOp) Execute(ctx context.Context, cc *CommandContext) error {
	if err := cc.Text(ctx, p.Texts.Executing); err != nil {
		return err
	}
	if err := cc.Text(ctx, p.Confirm); err != nil {
		return err
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}
	if err := sleep(ctx, ConfirmDelay); err != nil {
		return err
	}

	p.Logger.Info("executing power action", "command", p.Command, "user_id", cc.Message.UserID)
	return p.Runner.Run(ctx, p.Directive)
}

// PowerOps builds the sleep, hibernate, shutdown and restart ops.
// directives is keyed by command name.
func PowerOps(directives map[string]string, runner ActionRunner, texts Texts, logger *slog.Logger, sleep retry.Sleeper) []*PowerOp {
	specs := []struct {
		command, summary, confirm string
	}{
		{"sleep", "Put the computer to sleep", texts.Sleep},
		{"hibernate", "Hibernate the computer", texts.Hibernate},
		{"shutdown", "Shut down the computer", texts.Shutdown},
		{"restart", "Restart the computer", texts.Restart},
	}

	out := make([]*PowerOp, 0, len(specs))
	for _, s := range specs {
		out = append(out, &PowerOp{
			Command:   s.command,
			Summary:   s.summary,
			Confirm:   s.confirm,
			Directive: directives[s.command],
			Runner:    runner,
			Texts:     texts,
			Logger:    logger,
			Sleep:     sleep,
		})
	}
	return out
}
