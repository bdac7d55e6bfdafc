package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"sleuth/internal/agent"
	"sleuth/internal/config"
	"sleuth/internal/events"
	"sleuth/internal/executor"
	"sleuth/internal/logging"
	"sleuth/internal/mcp"
	"sleuth/internal/providers"
	"sleuth/internal/report"
	"sleuth/internal/safety"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "sleuth",
	Short:   "Sleuth - autonomous Linux diagnostic agent",
	Long:    `Sleuth runs bounded diagnostic investigations on this host. A reasoning engine picks shell commands, a safety gate filters them, and the findings come back as an MCP tool result.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(doctorCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Sleuth %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logger for early startup logs
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "sleuth",
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Re-initialize logging with configuration-driven settings
	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "sleuth",
	})

	log.Info().Str("version", Version).Msg("Starting Sleuth agent")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsListen != "" {
		startMetricsServer(ctx, cfg.MetricsListen)
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
		log.Fatal().Err(err).Msg("Failed to initialize reasoning engine provider")
	}
	log.Info().Str("provider", provider.Name()).Str("model", cfg.Model).Msg("Reasoning engine ready")

	gate := safety.NewGate()
	var policyWatcher *safety.PolicyWatcher
	if cfg.PolicyFile != "" {
		pw, err := safety.NewPolicyWatcher(gate, cfg.PolicyFile)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.PolicyFile).Msg("Policy watcher unavailable, using built-in deny list")
		} else if err := pw.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start policy watcher")
			pw.Stop()
		} else {
			policyWatcher = pw
			defer policyWatcher.Stop()
		}
	}

	registry := agent.NewRegistry()
	hub := events.NewHub(registry.Recent)
	go hub.Run()

	investigator := agent.New(provider, executor.New(gate, cfg.GetExecTimeout()), registry, hub, agent.Config{
		MaxSteps:              cfg.GetMaxSteps(),
		PromptStdoutLimit:     cfg.GetPromptStdoutLimit(),
		PromptStderrLimit:     cfg.GetPromptStderrLimit(),
		TranscriptOutputLimit: cfg.GetTranscriptOutputLimit(),
	})

	srv := mcp.NewServer(mcp.Config{
		Addr:     cfg.Listen,
		APIToken: cfg.APIToken,
	}, investigator, registry, hub, report.NewGenerator())

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start MCP server")
		}
	}()

	// SIGTERM and SIGINT for shutdown, SIGHUP for policy reload
	sigChan := make(chan os.Signal, 1)
	reloadChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	signal.Notify(reloadChan, syscall.SIGHUP)

	for {
		select {
		case <-reloadChan:
			log.Info().Msg("Received SIGHUP, reloading command policy...")
			if policyWatcher != nil {
				policyWatcher.Reload()
			} else {
				log.Info().Msg("No policy file configured, nothing to reload")
			}

		case <-sigChan:
			log.Info().Msg("Shutting down...")
			goto shutdown
		}
	}

shutdown:

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	hub.Stop()
	cancel()

	log.Info().Msg("Sleuth stopped")
}
