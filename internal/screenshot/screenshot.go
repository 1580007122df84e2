// Package screenshot captures one image per display by running a
// capture command that writes the encoded image to stdout.
package screenshot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"
)

const captureTimeout = 15 * time.Second

// Display is one screen and the command that captures it. X is the
// display's horizontal position; captures are ordered by it.
type Display struct {
	Name    string
	X       int
	Command string
}

// Capturer captures every configured display, left to right.
type Capturer struct {
	displays []Display
	logger   *slog.Logger
	timeout  time.Duration
}

func New(displays []Display, logger *slog.Logger) *Capturer {
	sorted := make([]Display, len(displays))
	copy(sorted, displays)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	return &Capturer{
		displays: sorted,
		logger:   logger,
		timeout:  captureTimeout,
	}
}

// Displays returns the configured displays in capture order.
func (c *Capturer) Displays() []Display {
	out := make([]Display, len(c.displays))
	copy(out, c.displays)
	return out
}

// Capture returns one encoded image per display. Any failing display
// fails the whole capture.
func (c *Capturer) Capture(ctx context.Context) ([][]byte, error) {
	images := make([][]byte, 0, len(c.displays))
	for _, d := range c.displays {
		img, err := c.captureOne(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("capture %s: %w", d.Name, err)
		}
		c.logger.Info("screenshot taken", "display", d.Name, "bytes", len(img))
		images = append(images, img)
	}
	return images, nil
}

func (c *Capturer) captureOne(ctx context.Context, d Display) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := shellCommand(ctx, d.Command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("command produced no image")
	}
	return stdout.Bytes(), nil
}

// DefaultDisplays guesses a single-display capture command from the
// tools installed on the host. It returns nil when none is found.
func DefaultDisplays() []Display {
	type candidate struct {
		tool    string
		command string
		when    func() bool
	}
	always := func() bool { return true }

	var candidates []candidate
	switch runtime.GOOS {
	case "darwin":
		candidates = []candidate{{"screencapture", "screencapture -x -t png /dev/stdout", always}}
	case "linux", "freebsd", "openbsd":
		candidates = []candidate{
			{"grim", "grim -", func() bool { return os.Getenv("WAYLAND_DISPLAY") != "" }},
			{"import", "import -window root png:-", func() bool { return os.Getenv("DISPLAY") != "" }},
		}
	}

	for _, c := range candidates {
		if !c.when() {
			continue
		}
		if _, err := exec.LookPath(c.tool); err == nil {
			return []Display{{Name: "primary", X: 0, Command: c.command}}
		}
	}
	return nil
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd.exe", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}
