package core

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Reconfigurer accepts new session settings.
type Reconfigurer interface {
	Reconfigure(ctx context.Context, settings Settings) bool
}

// SettingsLoader reads session settings from a config file.
type SettingsLoader func(path string) (Settings, error)

// Reloader re-reads the config file when it changes and hands changed
// settings to the service.
type Reloader struct {
	target Reconfigurer
	load   SettingsLoader
	logger *slog.Logger

	mu      sync.Mutex
	current Settings
}

// NewReloader creates a reloader. initial is the settings the service
// was built with.
func NewReloader(target Reconfigurer, load SettingsLoader, initial Settings, logger *slog.Logger) *Reloader {
	return &Reloader{
		target:  target,
		load:    load,
		logger:  logger,
		current: cloneSettings(initial),
	}
}

// Reload loads path and reconfigures the service if the token or the
// allow-list changed. A file that fails to load leaves the running
// session untouched.
func (r *Reloader) Reload(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := r.load(path)
	if err != nil {
		r.logger.Error("reload config failed", "path", path, "error", err)
		return
	}

	if next.Token == r.current.Token && slices.Equal(next.AuthorizedUsers, r.current.AuthorizedUsers) {
		r.logger.Info("config reloaded, settings unchanged", "path", path)
		return
	}

	r.current = cloneSettings(next)
	running := r.target.Reconfigure(context.Background(), next)
	r.logger.Info("settings reloaded",
		"path", path,
		"authorized_users", len(next.AuthorizedUsers),
		"running", running)
}
