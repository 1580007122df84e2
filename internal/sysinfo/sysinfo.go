// Package sysinfo reports host identity, uptime and memory usage.
package sysinfo

import (
	"context"
	"log/slog"
	"math"
	"os"
	"time"
)

const unknown = "Unknown"

// Info is a snapshot of host metrics. Memory figures are GiB rounded to
// one decimal place.
type Info struct {
	HostName       string
	Processor      string
	Uptime         time.Duration
	UsedMemoryGiB  float64
	TotalMemoryGiB float64
}

// Collector gathers Info from the running host.
type Collector struct {
	logger      *slog.Logger
	cpuinfoPath string
}

func New(logger *slog.Logger) *Collector {
	return &Collector{logger: logger, cpuinfoPath: "/proc/cpuinfo"}
}

// Collect never fails because of a missing metric: unavailable fields
// are zeroed or labeled with the error. It only returns ctx.Err().
func (c *Collector) Collect(ctx context.Context) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}

	info := Info{HostName: unknown, Processor: unknown}
	if name, err := os.Hostname(); err == nil {
		info.HostName = name
	} else {
		c.logger.Warn("host name unavailable", "error", err)
	}

	c.collectPlatform(&info)

	info.UsedMemoryGiB = round1(info.UsedMemoryGiB)
	info.TotalMemoryGiB = round1(info.TotalMemoryGiB)
	return info, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func gib(bytes uint64) float64 {
	return float64(bytes) / 1024 / 1024 / 1024
}
