package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jdelaire/hostctl/core/chat"
	"github.com/jdelaire/hostctl/core/ops"
	"github.com/jdelaire/hostctl/core/policy"
	"github.com/jdelaire/hostctl/internal/metrics"
)

const (
	opTimeout   = 5 * time.Minute
	menuCommand = "start"
)

// Dispatcher gates inbound messages and runs the matching op. At most
// one message is handled at a time; a second Dispatch blocks until the
// first returns.
type Dispatcher struct {
	policy  *policy.Policy
	ops     *ops.Registry
	reply   chat.Replier
	texts   ops.Texts
	logger  *slog.Logger
	metrics *metrics.Metrics
	gate    chan struct{}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(pol *policy.Policy, opsReg *ops.Registry, reply chat.Replier, texts ops.Texts, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		policy: pol,
		ops:    opsReg,
		reply:  reply,
		texts:  texts,
		logger: logger,
		gate:   make(chan struct{}, 1),
	}
}

// WithMetrics records one sample per dispatch.
func (d *Dispatcher) WithMetrics(m *metrics.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// Dispatch handles msg: dedup, freshness, resolve, authorize, execute.
// It never panics and never returns an error; failures become a reply
// and a log line.
func (d *Dispatcher) Dispatch(ctx context.Context, msg chat.Message) {
	select {
	case d.gate <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-d.gate }()

	start := time.Now()
	logger := d.logger.With("dispatch_id", uuid.NewString(), "chat_id", msg.ChatID, "user_id", msg.UserID)
	command, outcome := d.handle(ctx, logger, msg)
	d.metrics.Dispatched(command, outcome, time.Since(start).Seconds())
}

func (d *Dispatcher) handle(ctx context.Context, logger *slog.Logger, msg chat.Message) (command, outcome string) {
	if !d.policy.FirstSeen(msg.UpdateID) {
		logger.Debug("duplicate update ignored", "update_id", msg.UpdateID)
		return "", "duplicate"
	}

	if d.policy.Stale(msg.SentAt) {
		logger.Info("stale message ignored", "age", d.policy.Age(msg.SentAt))
		d.respond(ctx, logger, msg.ChatID, d.texts.RetryRequest)
		return "", "stale"
	}

	logger.Info("message received", "text", msg.Text)

	op := d.ops.Resolve(msg.Text)
	outcome = "ok"
	if op == nil {
		op = d.ops.Get(menuCommand)
		outcome = "unknown"
		if op == nil {
			logger.Debug("unrecognized text without menu", "text", msg.Text)
			return "", outcome
		}
	}
	command = op.Name()
	logger = logger.With("command", command)

	authorized := d.policy.Authorized(msg.UserID)
	if ops.IsPrivileged(op) && !authorized {
		logger.Warn("unauthorized command rejected")
		d.respond(ctx, logger, msg.ChatID, fmt.Sprintf(d.texts.Unauthorized, msg.UserID))
		return command, "unauthorized"
	}

	cc := &ops.CommandContext{Message: msg, Authorized: authorized, Reply: d.reply}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	logger.Info("executing command")
	if err := d.execute(opCtx, op, cc); err != nil {
		if ctx.Err() != nil {
			logger.Info("command interrupted by shutdown", "error", err)
			return command, "cancelled"
		}
		logger.Error("command failed", "error", err)
		d.respond(ctx, logger, msg.ChatID, d.texts.Error)
		return command, "error"
	}
	return command, outcome
}

// execute runs op and turns a panic into an error.
func (d *Dispatcher) execute(ctx context.Context, op ops.Op, cc *ops.CommandContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", op.Name(), r)
		}
	}()
	return op.Execute(ctx, cc)
}

func (d *Dispatcher) respond(ctx context.Context, logger *slog.Logger, chatID int64, text string) {
	if err := d.reply.SendText(ctx, chatID, text); err != nil {
		logger.Error("failed to send response", "error", err)
	}
}
