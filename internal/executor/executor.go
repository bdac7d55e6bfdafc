package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"sleuth/internal/metrics"
)

// BlockedMessage is the fixed stderr text returned for gate-rejected commands.
const BlockedMessage = "Blocked: High-risk command."

// DefaultTimeout bounds a single batched command. Batch diagnostics chain
// many sub-commands, so the budget is generous.
const DefaultTimeout = 120 * time.Second

// waitDelay stops Wait from blocking on output pipes that orphaned
// grandchildren of the killed shell still hold open.
const waitDelay = time.Second

// Result is the outcome of one command execution. ExitCode -1 is the local
// failure sentinel (blocked, spawn error, or timeout) as opposed to the
// command's own exit status.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// SafetyGate is the slice of the safety package the executor needs.
type SafetyGate interface {
	IsSafe(command string) bool
}

// Executor runs shell command strings under a gate check and a hard
// wall-clock timeout. Run never returns an error and never panics: every
// failure mode is folded into the Result.
//
// Commands run through `sh -c` with the privileges of this process. That is
// the whole point of the service and its single most consequential side
// effect; deployment docs, not this package, decide who may reach it.
type Executor struct {
	gate    SafetyGate
	timeout time.Duration
}

// New returns an Executor. A zero or negative timeout falls back to
// DefaultTimeout.
func New(gate SafetyGate, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{gate: gate, timeout: timeout}
}

// Run executes one batched shell command. Operators like `;`, `|` and `&&`
// inside the string work as in any shell; batching sub-commands into one
// string is the expected usage.
func (e *Executor) Run(ctx context.Context, command string) Result {
	if e.gate != nil && !e.gate.IsSafe(command) {
		log.Warn().Str("command", logHead(command)).Msg("Command rejected by safety gate")
		metrics.RecordCommandBlocked()
		return Result{ExitCode: -1, Stdout: "", Stderr: BlockedMessage}
	}

	log.Info().Str("command", logHead(command)).Msg("Executing batch command")

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)

	result := Result{
		Stdout: decode(stdout.Bytes()),
		Stderr: decode(stderr.Bytes()),
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		result.ExitCode = -1
		result.Stderr = fmt.Sprintf("Error: command timed out after %s", e.timeout)
	case err == nil:
		result.ExitCode = cmd.ProcessState.ExitCode()
	case errors.Is(err, exec.ErrWaitDelay):
		// The command exited but a background child kept the pipes open;
		// the exit status is still valid.
		result.ExitCode = cmd.ProcessState.ExitCode()
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Spawn failure: shell missing, fork failure, canceled context
			result.ExitCode = -1
			result.Stderr = fmt.Sprintf("Error: %s", err)
		}
	}

	metrics.RecordCommandExecuted(elapsed, result.ExitCode)
	log.Debug().
		Int("exit_code", result.ExitCode).
		Dur("elapsed", elapsed).
		Int("stdout_bytes", len(result.Stdout)).
		Int("stderr_bytes", len(result.Stderr)).
		Msg("Command finished")

	return result
}

// Timeout returns the configured wall-clock budget.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// decode converts captured bytes to valid UTF-8, substituting the
// replacement character for undecodable sequences.
func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

// logHead picks the interesting part of a command for log lines: for ssh
// batches the single-quoted remote command, otherwise the command itself,
// capped to 100 runes.
func logHead(command string) string {
	head := command
	if strings.Contains(command, "'") {
		parts := strings.Split(command, "'")
		if len(parts) >= 2 {
			head = parts[len(parts)-2]
		}
	}
	runes := []rune(head)
	if len(runes) > 100 {
		return string(runes[:100]) + "..."
	}
	return head
}
