package agent

import (
	"fmt"
	"strings"

	"sleuth/internal/executor"
)

// Transcript fragments. The investigation report is markdown assembled from
// these, with sections joined by single newlines at render time.
const (
	transcriptHeader    = "🚀 **SRE Agent**: Processing \"%s\"\n"
	transcriptStep      = "**Step %d**: %s\n> `%s`"
	transcriptOutput    = "```\n%s\n```\n"
	transcriptRootCause = "\n✅ **Root Cause**:\n%s"
	transcriptLimit     = "\n⏳ **Analysis Limit**: Showing partial findings."
	noOutputPlaceholder = "(No Output)"
)

// transcript accumulates the user-facing narrative of one run.
type transcript struct {
	parts []string
}

func newTranscript(instruction string) *transcript {
	return &transcript{parts: []string{fmt.Sprintf(transcriptHeader, instruction)}}
}

func (t *transcript) addStep(num int, thought, command string) {
	t.parts = append(t.parts, fmt.Sprintf(transcriptStep, num, thought, command))
}

// addOutput renders a command result. Stdout wins when present, stderr is the
// fallback, and a placeholder keeps silent commands visible in the report.
func (t *transcript) addOutput(res executor.Result, limit int) {
	display := strings.TrimSpace(res.Stdout)
	if display == "" {
		display = strings.TrimSpace(res.Stderr)
	}
	if display == "" {
		display = noOutputPlaceholder
	}
	t.parts = append(t.parts, fmt.Sprintf(transcriptOutput, truncateRunes(display, limit)))
}

// concluded renders the transcript with the model's root cause appended.
func (t *transcript) concluded(report string) string {
	parts := append(t.parts, fmt.Sprintf(transcriptRootCause, report))
	return strings.Join(parts, "\n")
}

// exhausted renders the transcript with the partial-findings notice used when
// the step budget ran out or the model stopped without a verdict.
func (t *transcript) exhausted() string {
	return strings.Join(t.parts, "\n") + transcriptLimit
}
