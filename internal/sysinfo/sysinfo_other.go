//go:build !linux

package sysinfo

import "runtime"

func (c *Collector) collectPlatform(info *Info) {
	c.logger.Debug("uptime and memory not supported on this platform", "os", runtime.GOOS)
	info.Processor = runtime.GOARCH
}
