// Package sysaction runs host power directives (suspend, hibernate,
// power-off, reboot) through the system shell.
package sysaction

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const (
	DefaultTimeout = 10 * time.Second
	waitDelay      = 500 * time.Millisecond
)

// ErrTimeout is returned when a directive was killed for running too long.
var ErrTimeout = errors.New("system action timed out")

// Action names understood by DefaultDirectives.
const (
	Sleep     = "sleep"
	Hibernate = "hibernate"
	Shutdown  = "shutdown"
	Restart   = "restart"
)

// DefaultDirectives returns the power directives for the running OS.
func DefaultDirectives() map[string]string {
	switch runtime.GOOS {
	case "windows":
		return map[string]string{
			Sleep:     "rundll32.exe powrprof.dll,SetSuspendState 0,1,0",
			Hibernate: "rundll32.exe powrprof.dll,SetSuspendState Hibernate",
			Shutdown:  "shutdown /s /t 0",
			Restart:   "shutdown /r /t 0",
		}
	case "darwin":
		return map[string]string{
			Sleep:     "pmset sleepnow",
			Hibernate: "pmset sleepnow",
			Shutdown:  "shutdown -h now",
			Restart:   "shutdown -r now",
		}
	default:
		return map[string]string{
			Sleep:     "systemctl suspend",
			Hibernate: "systemctl hibernate",
			Shutdown:  "systemctl poweroff",
			Restart:   "systemctl reboot",
		}
	}
}

// Runner executes directives with a bounded timeout. A directive that
// outlives the timeout is killed, logged and reported as ErrTimeout.
type Runner struct {
	logger  *slog.Logger
	timeout time.Duration
}

func New(logger *slog.Logger) *Runner {
	return &Runner{logger: logger, timeout: DefaultTimeout}
}

// WithTimeout overrides DefaultTimeout.
func (r *Runner) WithTimeout(d time.Duration) *Runner {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Run executes directive. Cancelling ctx does not interrupt a directive
// that has already started; only the timeout does.
func (r *Runner) Run(ctx context.Context, directive string) error {
	directive = strings.TrimSpace(directive)
	if directive == "" {
		return fmt.Errorf("empty directive")
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	cmd := shellCommand(runCtx, directive)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Info("running system action", "directive", directive, "timeout", r.timeout)
	err := cmd.Run()

	r.logLines("system action output", directive, &stdout)
	r.logLines("system action stderr", directive, &stderr)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		r.logger.Error("system action killed", "directive", directive, "timeout", r.timeout)
		return fmt.Errorf("%s: %w", directive, ErrTimeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.logger.Error("system action failed",
			"directive", directive,
			"exit_code", exitErr.ExitCode(),
			"stderr", strings.TrimSpace(stderr.String()))
		return fmt.Errorf("%s: exit code %d", directive, exitErr.ExitCode())
	}
	if err != nil {
		r.logger.Error("system action failed", "directive", directive, "error", err)
		return fmt.Errorf("%s: %w", directive, err)
	}

	r.logger.Info("system action executed", "directive", directive)
	return nil
}

func (r *Runner) logLines(msg, directive string, buf *bytes.Buffer) {
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			r.logger.Info(msg, "directive", directive, "line", line)
		}
	}
}

func shellCommand(ctx context.Context, directive string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd.exe", "/C", directive)
	}
	return exec.CommandContext(ctx, "sh", "-c", directive)
}
