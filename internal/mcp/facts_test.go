package mcp

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	gohost "github.com/shirou/gopsutil/v4/host"
	goload "github.com/shirou/gopsutil/v4/load"
	gomem "github.com/shirou/gopsutil/v4/mem"
)

func stubProbes(t *testing.T, host func(context.Context) (*gohost.InfoStat, error), mem func(context.Context) (*gomem.VirtualMemoryStat, error), load func(context.Context) (*goload.AvgStat, error)) {
	t.Helper()
	origHost, origMem, origLoad := hostInfo, virtualMemory, loadAvg
	hostInfo, virtualMemory, loadAvg = host, mem, load
	t.Cleanup(func() {
		hostInfo, virtualMemory, loadAvg = origHost, origMem, origLoad
	})
}

func TestCollectHostFacts(t *testing.T) {
	stubProbes(t,
		func(ctx context.Context) (*gohost.InfoStat, error) {
			return &gohost.InfoStat{
				Hostname:        "web-1",
				Platform:        "ubuntu",
				PlatformVersion: "22.04",
				KernelVersion:   "5.15.0-91-generic",
				Uptime:          86400,
			}, nil
		},
		func(ctx context.Context) (*gomem.VirtualMemoryStat, error) {
			return &gomem.VirtualMemoryStat{Total: 16 << 30, UsedPercent: 42.5}, nil
		},
		func(ctx context.Context) (*goload.AvgStat, error) {
			return &goload.AvgStat{Load1: 0.5, Load5: 0.4, Load15: 0.3}, nil
		},
	)

	facts := CollectHostFacts(context.Background())

	assert.Equal(t, "web-1", facts.Hostname)
	assert.Equal(t, runtime.GOOS, facts.OS)
	assert.Equal(t, "ubuntu", facts.Platform)
	assert.Equal(t, "22.04", facts.PlatformVersion)
	assert.Equal(t, "5.15.0-91-generic", facts.KernelVersion)
	assert.Equal(t, uint64(86400), facts.UptimeSeconds)
	assert.Equal(t, runtime.NumCPU(), facts.CPUCores)
	assert.Equal(t, uint64(16<<30), facts.MemoryTotal)
	assert.Equal(t, 42.5, facts.MemoryUsedPct)
	assert.Equal(t, 0.5, facts.Load1)
	assert.Equal(t, 0.4, facts.Load5)
	assert.Equal(t, 0.3, facts.Load15)
}

func TestCollectHostFactsSurvivesProbeFailures(t *testing.T) {
	probeErr := errors.New("probe unavailable")
	stubProbes(t,
		func(ctx context.Context) (*gohost.InfoStat, error) { return nil, probeErr },
		func(ctx context.Context) (*gomem.VirtualMemoryStat, error) { return nil, probeErr },
		func(ctx context.Context) (*goload.AvgStat, error) { return nil, probeErr },
	)

	facts := CollectHostFacts(context.Background())

	assert.Equal(t, runtime.GOOS, facts.OS)
	assert.Equal(t, runtime.NumCPU(), facts.CPUCores)
	assert.Empty(t, facts.Hostname)
	assert.Zero(t, facts.MemoryTotal)
	assert.Zero(t, facts.Load1)
}
