//go:build !windows

package sysaction_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelaire/hostctl/internal/sysaction"
)

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestRunSuccessLogsOutput(t *testing.T) {
	logger, buf := bufferLogger()

	err := sysaction.New(logger).Run(context.Background(), "echo suspended")

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "line=suspended")
	assert.Contains(t, buf.String(), "system action executed")
}

func TestRunNonZeroExit(t *testing.T) {
	logger, buf := bufferLogger()

	err := sysaction.New(logger).Run(context.Background(), "echo denied >&2; exit 3")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code 3")
	assert.Contains(t, buf.String(), "stderr=denied")
}

func TestRunTimeoutKills(t *testing.T) {
	logger, buf := bufferLogger()
	r := sysaction.New(logger).WithTimeout(100 * time.Millisecond)

	start := time.Now()
	err := r.Run(context.Background(), "sleep 5")

	assert.ErrorIs(t, err, sysaction.ErrTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Contains(t, buf.String(), "system action killed")
}

func TestRunIgnoresCallerCancellation(t *testing.T) {
	logger, _ := bufferLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sysaction.New(logger).Run(ctx, "true")
	assert.NoError(t, err)
}

func TestRunEmptyDirective(t *testing.T) {
	logger, _ := bufferLogger()
	assert.Error(t, sysaction.New(logger).Run(context.Background(), "  "))
}

func TestDefaultDirectivesCoverAllActions(t *testing.T) {
	d := sysaction.DefaultDirectives()
	for _, name := range []string{sysaction.Sleep, sysaction.Hibernate, sysaction.Shutdown, sysaction.Restart} {
		assert.NotEmpty(t, d[name], name)
	}
}
