package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"sleuth/internal/executor"
	"sleuth/internal/metrics"
	"sleuth/internal/providers"
)

// Defaults for investigation bounds. The model is instructed to batch
// diagnostics, so three rounds cover most incidents.
const (
	DefaultMaxSteps              = 3
	DefaultPromptStdoutLimit     = 1500
	DefaultPromptStderrLimit     = 1000
	DefaultTranscriptOutputLimit = 800
)

// CommandRunner executes one shell command and reports its outcome.
// Satisfied by *executor.Executor.
type CommandRunner interface {
	Run(ctx context.Context, command string) executor.Result
}

// Sink receives run lifecycle notifications as an investigation unfolds. The
// websocket hub implements it; a nil sink disables streaming.
type Sink interface {
	RunStarted(run Run)
	StepCompleted(run Run, step Step)
	RunCompleted(run Run)
}

// Config bounds one investigation.
type Config struct {
	MaxSteps              int
	PromptStdoutLimit     int
	PromptStderrLimit     int
	TranscriptOutputLimit int
}

func (c Config) withDefaults() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.PromptStdoutLimit <= 0 {
		c.PromptStdoutLimit = DefaultPromptStdoutLimit
	}
	if c.PromptStderrLimit <= 0 {
		c.PromptStderrLimit = DefaultPromptStderrLimit
	}
	if c.TranscriptOutputLimit <= 0 {
		c.TranscriptOutputLimit = DefaultTranscriptOutputLimit
	}
	return c
}

// Investigator drives the decide, execute, observe cycle for one instruction
// at a time. Concurrent Run calls are independent; each owns its transcript
// and history, so no coordination is needed between them.
type Investigator struct {
	thinker  *Thinker
	runner   CommandRunner
	registry *Registry
	sink     Sink
	cfg      Config
}

// New builds an Investigator. Registry and sink may be nil when run tracking
// or streaming is not wanted.
func New(provider providers.Provider, runner CommandRunner, registry *Registry, sink Sink, cfg Config) *Investigator {
	cfg = cfg.withDefaults()
	return &Investigator{
		thinker:  NewThinker(provider, cfg.PromptStdoutLimit, cfg.PromptStderrLimit),
		runner:   runner,
		registry: registry,
		sink:     sink,
		cfg:      cfg,
	}
}

// Run drives one bounded investigation and returns the rendered report.
// Every path yields a usable transcript; faults surface inside it as prose
// rather than as errors.
func (inv *Investigator) Run(ctx context.Context, instruction string) string {
	run := Run{
		ID:          uuid.New().String(),
		Instruction: instruction,
		StartedAt:   time.Now(),
	}

	metrics.RecordInvestigationStarted()
	log.Info().Str("runId", run.ID).Str("instruction", instruction).Msg("Investigation started")
	if inv.sink != nil {
		inv.sink.RunStarted(run)
	}

	tr := newTranscript(instruction)

	for stepNum := 1; stepNum <= inv.cfg.MaxSteps; stepNum++ {
		decision := inv.thinker.Think(ctx, instruction, run.Steps)
		log.Info().Str("runId", run.ID).Int("step", stepNum).Str("thought", decision.Thought).Msg("Decision received")

		if decision.IsFinal {
			outcome := metrics.OutcomeFinal
			if decision.fault {
				outcome = metrics.OutcomeFault
				log.Error().Str("runId", run.ID).Str("report", decision.FinalReport).Msg("Investigation ended by fault")
			}
			return inv.complete(&run, outcome, tr.concluded(decision.FinalReport))
		}

		if decision.Command == "" {
			log.Warn().Str("runId", run.ID).Int("step", stepNum).Msg("Model sent neither a command nor a final report, stopping")
			break
		}

		tr.addStep(stepNum, decision.Thought, decision.Command)
		res := inv.runner.Run(ctx, decision.Command)
		tr.addOutput(res, inv.cfg.TranscriptOutputLimit)

		step := Step{
			ID:       ulid.Make().String(),
			Thought:  decision.Thought,
			Command:  decision.Command,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
		run.Steps = append(run.Steps, step)
		metrics.RecordStepExecuted()
		if inv.sink != nil {
			inv.sink.StepCompleted(run, step)
		}
	}

	return inv.complete(&run, metrics.OutcomeLimit, tr.exhausted())
}

func (inv *Investigator) complete(run *Run, outcome, report string) string {
	run.CompletedAt = time.Now()
	run.Outcome = outcome
	run.Report = report
	duration := run.CompletedAt.Sub(run.StartedAt)

	metrics.RecordInvestigationCompleted(outcome, duration)
	if inv.registry != nil {
		inv.registry.Add(*run)
	}
	if inv.sink != nil {
		inv.sink.RunCompleted(*run)
	}
	log.Info().
		Str("runId", run.ID).
		Str("outcome", outcome).
		Int("steps", len(run.Steps)).
		Dur("duration", duration).
		Msg("Investigation completed")
	return report
}
