package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sleuth/internal/config"
	"sleuth/internal/logging"
	"sleuth/internal/mcp"
	"sleuth/internal/providers"
	"sleuth/internal/safety"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check host visibility, the command policy, and engine connectivity",
	Run: func(cmd *cobra.Command, args []string) {
		runDoctor()
	},
}

type modelLister interface {
	ListModels(ctx context.Context) ([]providers.ModelInfo, error)
}

func runDoctor() {
	// Keep log output out of the report, errors still surface
	logging.Init(logging.Config{
		Format:    "console",
		Level:     "error",
		Component: "sleuth",
	})

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("Sleuth doctor")
	fmt.Println()

	facts := mcp.CollectHostFacts(ctx)
	fmt.Println("Host")
	fmt.Printf("  hostname:   %s\n", facts.Hostname)
	fmt.Printf("  os:         %s (%s %s)\n", facts.OS, facts.Platform, facts.PlatformVersion)
	fmt.Printf("  kernel:     %s\n", facts.KernelVersion)
	fmt.Printf("  cpu:        %d cores\n", facts.CPUCores)
	if facts.MemoryTotal > 0 {
		fmt.Printf("  memory:     %.1f%% of %s used\n", facts.MemoryUsedPct, formatBytes(facts.MemoryTotal))
	}
	fmt.Printf("  load:       %.2f %.2f %.2f\n", facts.Load1, facts.Load5, facts.Load15)
	if facts.UptimeSeconds > 0 {
		fmt.Printf("  uptime:     %s\n", formatUptime(facts.UptimeSeconds))
	}
	fmt.Println()

	fmt.Println("Safety gate")
	gate := safety.NewGate()
	if cfg.PolicyFile != "" {
		policy, err := safety.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			fmt.Printf("  policy:     failed to load %s: %v\n", cfg.PolicyFile, err)
		} else {
			gate.SetPolicy(policy)
			literals, globs := gate.PatternCount()
			fmt.Printf("  policy:     %s (%d literals, %d globs)\n", cfg.PolicyFile, literals, globs)
		}
	} else {
		literals, globs := gate.PatternCount()
		fmt.Printf("  policy:     built-in deny list (%d literals, %d globs)\n", literals, globs)
	}
	fmt.Println()

	fmt.Println("Reasoning engine")
	fmt.Printf("  provider:   %s\n", cfg.Provider)
	fmt.Printf("  model:      %s\n", cfg.Model)
	if cfg.BaseURL != "" {
		fmt.Printf("  endpoint:   %s\n", cfg.BaseURL)
	}

	provider, err := providers.New(providers.Config{
		Provider:    cfg.Provider,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.GetLLMTimeout(),
		InsecureTLS: cfg.InsecureTLS,
		DNSCacheTTL: cfg.GetDNSCacheTTL(),
	})
	if err != nil {
		fmt.Printf("  connection: failed: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	if err := provider.TestConnection(ctx); err != nil {
		fmt.Printf("  connection: failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  connection: ok (%s)\n", time.Since(start).Round(time.Millisecond))

	if lister, ok := provider.(modelLister); ok {
		if models, err := lister.ListModels(ctx); err == nil && len(models) > 0 {
			shown := len(models)
			if shown > 5 {
				shown = 5
			}
			for i := 0; i < shown; i++ {
				fmt.Printf("  model[%d]:   %s\n", i, models[i].Name)
			}
			if len(models) > shown {
				fmt.Printf("  ... and %d more\n", len(models)-shown)
			}
		}
	}
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatUptime(seconds uint64) string {
	d := time.Duration(seconds) * time.Second
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
