package core

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jdelaire/hostctl/core/chat"
	"github.com/jdelaire/hostctl/core/events"
	"github.com/jdelaire/hostctl/core/ops"
	"github.com/jdelaire/hostctl/core/policy"
	"github.com/jdelaire/hostctl/core/retry"
	"github.com/jdelaire/hostctl/internal/metrics"
)

const (
	stopGrace    = 100 * time.Millisecond
	closeTimeout = 5 * time.Second
)

// RunState is the lifecycle state of a Service.
type RunState int

const (
	Idle RunState = iota
	Starting
	Running
)

func (s RunState) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	}
	return "idle"
}

// Settings is the per-session configuration. It is read when a session
// starts and stays fixed until the next Start.
type Settings struct {
	Token           string
	AuthorizedUsers []int64
}

// TransportFactory builds the chat transport for a credential.
type TransportFactory func(token string) chat.Transport

// Status is a snapshot of the service state.
type Status struct {
	State           RunState
	Since           time.Time
	AuthorizedUsers int
}

// Service owns the polling session: credential check, poller goroutine,
// cancellation and run-state events.
type Service struct {
	newTransport TransportFactory
	ops          *ops.Registry
	texts        ops.Texts
	logger       *slog.Logger
	metrics      *metrics.Metrics
	stream       *events.Stream
	sleep        retry.Sleeper

	mu       sync.Mutex
	settings Settings
	state    RunState
	attempt  uint64
	since    time.Time
	cancel   context.CancelFunc
	done     chan struct{}
	ended    chan error

	// session is the transport and settings of the running session.
	session        chat.Transport
	sessionSetting Settings
}

// ErrNotRunning is returned by operations that need an active session.
var ErrNotRunning = errors.New("bot is not running")

// NewService creates an idle Service.
func NewService(newTransport TransportFactory, opsReg *ops.Registry, texts ops.Texts, settings Settings, logger *slog.Logger) *Service {
	return &Service{
		newTransport: newTransport,
		ops:          opsReg,
		texts:        texts,
		logger:       logger,
		sleep:        retry.Sleep,
		settings:     cloneSettings(settings),
		ended:        make(chan error, 1),
	}
}

// WithMetrics records the run state and passes m to each session.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// WithEvents publishes status changes to stream.
func (s *Service) WithEvents(stream *events.Stream) *Service {
	s.stream = stream
	return s
}

// WithSleeper replaces the poller's error backoff wait.
func (s *Service) WithSleeper(sleep retry.Sleeper) *Service {
	if sleep != nil {
		s.sleep = sleep
	}
	return s
}

// Start validates the credential and begins polling. It returns false
// when already running or starting, when the credential is rejected, or
// when Stop is called while the credential is being checked. The lock
// is not held during validation.
func (s *Service) Start(ctx context.Context) bool {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		s.logger.Info("bot already running")
		return false
	}
	s.state = Starting
	s.attempt++
	attempt := s.attempt
	settings := cloneSettings(s.settings)
	s.mu.Unlock()

	transport := s.newTransport(settings.Token)
	valid := transport.ValidateCredential(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Starting || s.attempt != attempt {
		s.logger.Info("start aborted")
		return false
	}
	if !valid {
		s.state = Idle
		s.logger.Error("invalid token, bot not started")
		return false
	}

	runCtx, cancel := context.WithCancel(context.Background())
	prev := s.done
	done := make(chan struct{})

	s.state = Running
	s.since = time.Now()
	s.cancel = cancel
	s.done = done
	s.session = transport
	s.sessionSetting = settings
	s.metrics.SetRunning(true)
	s.stream.Status(true)

	go s.run(runCtx, prev, done, transport, settings)
	return true
}

func (s *Service) run(ctx context.Context, prev <-chan struct{}, done chan struct{}, transport chat.Transport, settings Settings) {
	defer close(done)

	// A session that outlived its stop grace period may still hold the
	// update stream; polling alongside it would conflict.
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}

	pol := policy.New(settings.AuthorizedUsers)
	dispatcher := NewDispatcher(pol, s.ops, transport, s.texts, s.logger).WithMetrics(s.metrics)
	poller := NewPoller(transport, dispatcher.Dispatch, s.logger).WithMetrics(s.metrics).WithSleeper(s.sleep)

	s.logger.Info("bot started", "authorized_users", len(settings.AuthorizedUsers))
	err := poller.Run(ctx)
	if err == nil {
		return
	}

	s.logger.Error("polling session ended", "error", err)
	s.mu.Lock()
	selfEnded := s.done == done && s.state == Running
	if selfEnded {
		s.state = Idle
		s.cancel()
		s.cancel = nil
		s.session = nil
	}
	s.mu.Unlock()

	if selfEnded {
		s.metrics.SetRunning(false)
		s.stream.Status(false)
		select {
		case s.ended <- err:
		default:
		}
	}
}

// Stop cancels the session and waits briefly for the poller to exit.
// A Start still validating its credential is aborted. Calling Stop on
// an idle service does nothing.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.state == Starting {
		s.state = Idle
		s.mu.Unlock()
		return
	}
	if s.state != Running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.state = Idle
	s.cancel = nil
	s.session = nil
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.logger.Debug("poller still draining after stop")
	}

	s.logger.Info("bot stopped")
	s.metrics.SetRunning(false)
	s.stream.Status(false)
}

// Reconfigure replaces the settings. A running session is restarted
// with the new settings; it reports whether the service is running
// afterwards.
func (s *Service) Reconfigure(ctx context.Context, settings Settings) bool {
	s.mu.Lock()
	s.settings = cloneSettings(settings)
	running := s.state != Idle
	s.mu.Unlock()

	if !running {
		return false
	}
	s.logger.Info("restarting bot with new settings")
	s.Stop()
	return s.Start(ctx)
}

// Close stops the service and waits for the last session to finish.
func (s *Service) Close() error {
	s.Stop()

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-time.After(closeTimeout):
		return errors.New("timed out waiting for poller to exit")
	}
}

// Notify sends text to the private chat of every authorized user of
// the running session and returns how many sends succeeded. The text is
// sent literally; markup characters are escaped.
func (s *Service) Notify(ctx context.Context, text string) (int, error) {
	s.mu.Lock()
	transport, users := s.session, s.sessionSetting.AuthorizedUsers
	s.mu.Unlock()
	if transport == nil {
		return 0, ErrNotRunning
	}

	text = html.EscapeString(text)
	sent := 0
	var errs []error
	for _, id := range users {
		if err := transport.SendText(ctx, id, text); err != nil {
			s.logger.Error("notify failed", "user_id", id, "error", err)
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// Status returns the current state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state, AuthorizedUsers: len(s.settings.AuthorizedUsers)}
	if s.state == Running {
		st.Since = s.since
	}
	return st
}

// Ended delivers the error of a session that stopped on its own, such
// as on a polling conflict. Sessions ended by Stop are not reported.
func (s *Service) Ended() <-chan error {
	return s.ended
}

func cloneSettings(in Settings) Settings {
	return Settings{Token: in.Token, AuthorizedUsers: slices.Clone(in.AuthorizedUsers)}
}
