package events_test

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelaire/hostctl/core/events"
)

func TestPublishDropsWhenFull(t *testing.T) {
	s := events.NewStream(2)

	assert.True(t, s.Status(true))
	assert.True(t, s.Status(false))
	assert.False(t, s.Status(true))
	assert.Equal(t, uint64(1), s.Dropped())

	first := <-s.Events()
	assert.Equal(t, events.KindStatus, first.Kind)
	assert.True(t, first.Running)
	assert.False(t, first.Time.IsZero())
}

func TestNilStreamIsNoop(t *testing.T) {
	var s *events.Stream
	assert.False(t, s.Status(true))
	assert.Zero(t, s.Dropped())
}

func TestConcurrentPublish(t *testing.T) {
	s := events.NewStream(1000)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Status(j%2 == 0)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, s.Events(), 500)
}

func TestHandlerForwardsAndPublishes(t *testing.T) {
	var buf bytes.Buffer
	s := events.NewStream(10)
	logger := slog.New(events.NewHandler(slog.NewTextHandler(&buf, nil), s))

	logger.With("component", "poller").WithGroup("req").Warn("fetch failed", "error", errors.New("bad gateway"), "attempt", 2)

	assert.Contains(t, buf.String(), "fetch failed")

	require.Len(t, s.Events(), 1)
	e := <-s.Events()
	assert.Equal(t, events.KindLog, e.Kind)
	assert.Equal(t, slog.LevelWarn, e.Level)
	assert.Equal(t, `fetch failed component=poller req.error="bad gateway" req.attempt=2`, e.Message)
}

func TestHandlerHonorsInnerLevel(t *testing.T) {
	var buf bytes.Buffer
	s := events.NewStream(10)
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(events.NewHandler(inner, s))

	logger.Info("quiet")
	logger.Debug("quieter")

	assert.Empty(t, buf.String())
	assert.Len(t, s.Events(), 0)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "log", events.KindLog.String())
	assert.Equal(t, "status", events.KindStatus.String())
}
