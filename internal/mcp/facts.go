package mcp

import (
	"context"
	"runtime"
	"time"

	gohost "github.com/shirou/gopsutil/v4/host"
	goload "github.com/shirou/gopsutil/v4/load"
	gomem "github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/errgroup"
)

// System call wrappers for testing
var (
	hostInfo      = gohost.InfoWithContext
	loadAvg       = goload.AvgWithContext
	virtualMemory = gomem.VirtualMemoryWithContext
)

// HostFacts is the snapshot served by the host facts resource. It gives MCP
// clients the same orientation a human would get from a quick uname/free/
// uptime pass before asking for an investigation.
type HostFacts struct {
	Hostname        string  `json:"hostname"`
	OS              string  `json:"os"`
	Platform        string  `json:"platform"`
	PlatformVersion string  `json:"platformVersion"`
	KernelVersion   string  `json:"kernelVersion"`
	UptimeSeconds   uint64  `json:"uptimeSeconds"`
	CPUCores        int     `json:"cpuCores"`
	MemoryTotal     uint64  `json:"memoryTotalBytes"`
	MemoryUsedPct   float64 `json:"memoryUsedPercent"`
	Load1           float64 `json:"load1"`
	Load5           float64 `json:"load5"`
	Load15          float64 `json:"load15"`
}

// CollectHostFacts gathers a point-in-time host snapshot. The probes run
// concurrently; individual failures leave their fields zeroed rather than
// failing the whole read.
func CollectHostFacts(ctx context.Context) HostFacts {
	collectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	facts := HostFacts{
		OS:       runtime.GOOS,
		CPUCores: runtime.NumCPU(),
	}

	// Each probe writes its own fields, so no lock is needed.
	var g errgroup.Group

	g.Go(func() error {
		if info, err := hostInfo(collectCtx); err == nil && info != nil {
			facts.Hostname = info.Hostname
			facts.Platform = info.Platform
			facts.PlatformVersion = info.PlatformVersion
			facts.KernelVersion = info.KernelVersion
			facts.UptimeSeconds = info.Uptime
		}
		return nil
	})

	g.Go(func() error {
		if mem, err := virtualMemory(collectCtx); err == nil && mem != nil {
			facts.MemoryTotal = mem.Total
			facts.MemoryUsedPct = mem.UsedPercent
		}
		return nil
	})

	g.Go(func() error {
		if avg, err := loadAvg(collectCtx); err == nil && avg != nil {
			facts.Load1 = avg.Load1
			facts.Load5 = avg.Load5
			facts.Load15 = avg.Load15
		}
		return nil
	})

	_ = g.Wait()

	return facts
}
