//go:build linux

package sysinfo

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

func (c *Collector) collectPlatform(info *Info) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		c.logger.Warn("sysinfo failed", "error", err)
		info.Processor = fmt.Sprintf("Error: %v", err)
		return
	}

	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	total := uint64(si.Totalram) * unit
	free := (uint64(si.Freeram) + uint64(si.Bufferram)) * unit
	info.Uptime = time.Duration(si.Uptime) * time.Second
	info.TotalMemoryGiB = gib(total)
	if total > free {
		info.UsedMemoryGiB = gib(total - free)
	}

	info.Processor = c.processorName()
}

func (c *Collector) processorName() string {
	f, err := os.Open(c.cpuinfoPath)
	if err == nil {
		defer f.Close()
		if name := parseModelName(f); name != "" {
			return name
		}
	} else {
		c.logger.Debug("cpuinfo unavailable", "path", c.cpuinfoPath, "error", err)
	}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return string(bytes.TrimRight(uts.Machine[:], "\x00"))
}

// parseModelName returns the first "model name" (x86) or "Hardware" /
// "Processor" (arm) value from /proc/cpuinfo content.
func parseModelName(r io.Reader) string {
	var fallback string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch key {
		case "model name":
			return value
		case "Hardware", "Processor":
			if fallback == "" {
				fallback = value
			}
		}
	}
	return fallback
}
