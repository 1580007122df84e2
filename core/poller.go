package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jdelaire/hostctl/core/chat"
	"github.com/jdelaire/hostctl/core/retry"
	"github.com/jdelaire/hostctl/internal/metrics"
)

const (
	// LongPollTimeout is how long the server may hold a fetch open.
	LongPollTimeout = 30 * time.Second
	errorBackoff    = 1 * time.Second
)

// UpdateSource fetches batches of updates starting at offset.
type UpdateSource interface {
	FetchUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]chat.Update, error)
}

// Poller long-polls an UpdateSource and hands each message to a
// MessageHandler, one at a time and in delivery order.
type Poller struct {
	source  UpdateSource
	handler MessageHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
	sleep   retry.Sleeper
	timeout time.Duration
	cursor  int64
}

func NewPoller(source UpdateSource, handler MessageHandler, logger *slog.Logger) *Poller {
	return &Poller{
		source:  source,
		handler: handler,
		logger:  logger,
		sleep:   retry.Sleep,
		timeout: LongPollTimeout,
	}
}

// WithMetrics records fetched updates and poll errors.
func (p *Poller) WithMetrics(m *metrics.Metrics) *Poller {
	p.metrics = m
	return p
}

// WithSleeper replaces the wait used for the error backoff.
func (p *Poller) WithSleeper(s retry.Sleeper) *Poller {
	if s != nil {
		p.sleep = s
	}
	return p
}

// Cursor returns the offset of the next fetch. Only safe to call while
// Run is not executing.
func (p *Poller) Cursor() int64 {
	return p.cursor
}

// Run polls until ctx is cancelled or the source reports a conflict.
// It returns nil on cancellation and an error wrapping chat.ErrConflict
// on conflict. Any other fetch error is logged and retried.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "offset", p.cursor)
	for {
		if ctx.Err() != nil {
			p.logger.Info("poller stopped")
			return nil
		}

		updates, err := p.source.FetchUpdates(ctx, p.cursor, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("poller stopped")
				return nil
			}
			if errors.Is(err, chat.ErrConflict) {
				p.metrics.PollError("conflict")
				p.logger.Error("another instance is polling this bot, stopping", "error", err)
				return err
			}

			p.metrics.PollError("transport")
			p.logger.Error("poll error", "error", err, "retry_in", errorBackoff)
			if err := p.sleep(ctx, errorBackoff); err != nil {
				p.logger.Info("poller stopped")
				return nil
			}
			continue
		}

		for _, u := range updates {
			p.metrics.UpdateReceived()
			// Advance before handling so a failure mid-handling never
			// refetches this id.
			if next := u.ID + 1; next > p.cursor {
				p.cursor = next
			}
			if u.Message == nil {
				continue
			}
			p.handler(ctx, *u.Message)
		}
	}
}
