package agent

import (
	"context"

	"sleuth/internal/providers"
)

// thinkTemperature keeps decisions near-deterministic across retries of the
// same investigation.
const thinkTemperature = 0.1

// Thinker produces the next Decision from the investigation so far. It never
// returns an error: provider and parse failures both become a terminal fault
// Decision, so the loop always has something to act on.
type Thinker struct {
	provider    providers.Provider
	stdoutLimit int
	stderrLimit int
}

// NewThinker wraps a provider with the prompt truncation budgets. Zero or
// negative budgets fall back to the defaults.
func NewThinker(provider providers.Provider, stdoutLimit, stderrLimit int) *Thinker {
	if stdoutLimit <= 0 {
		stdoutLimit = DefaultPromptStdoutLimit
	}
	if stderrLimit <= 0 {
		stderrLimit = DefaultPromptStderrLimit
	}
	return &Thinker{provider: provider, stdoutLimit: stdoutLimit, stderrLimit: stderrLimit}
}

// Think asks the model for its next move given the steps taken so far.
func (t *Thinker) Think(ctx context.Context, instruction string, history []Step) Decision {
	resp, err := t.provider.Chat(ctx, providers.ChatRequest{
		System:      systemPrompt,
		Messages:    BuildMessages(instruction, history, t.stdoutLimit, t.stderrLimit),
		Temperature: thinkTemperature,
		JSONMode:    true,
	})
	if err != nil {
		return faultDecision(err)
	}
	dec, err := DecodeDecision(resp.Content)
	if err != nil {
		return faultDecision(err)
	}
	return dec
}

// faultDecision folds any failure into a terminal Decision carrying the error
// text as its report. Transport and parse failures are indistinguishable to
// the loop; both end the investigation with an explanation.
func faultDecision(err error) Decision {
	return Decision{
		Thought:     "JSON Error",
		IsFinal:     true,
		FinalReport: "Brain Fault: " + err.Error(),
		fault:       true,
	}
}
