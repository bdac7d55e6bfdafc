package agent

import (
	"fmt"
	"unicode/utf8"

	"sleuth/internal/providers"
)

// systemPrompt steers the model toward batched diagnostics so a whole
// investigation fits inside the step budget.
const systemPrompt = `
# Role
You are an Elite SRE Agent using SSH Key Auth.
Your goal is to diagnose issues within **3 STEPS** to avoid timeouts.

# ⚡ EFFICIENCY STRATEGY: BATCH COMMANDS
Do NOT run single commands. You must "Gather All Evidence" in one go.
- **Bad**: ` + "`ls /etc`" + ` -> wait -> ` + "`cat /etc/issue`" + `
- **Good (Batch)**: ` + "`echo \"--- OS ---\"; cat /etc/os-release; echo \"--- MEM ---\"; free -h; echo \"--- SERVICE ---\"; systemctl status nginx`" + `

# Execution Logic
- **Remote**: ` + "`ssh -o ControlMaster=auto -o ControlPath=/tmp/ssh-%r@%h:%p -o ControlPersist=600 -o StrictHostKeyChecking=no <USER>@<HOST> '<COMMAND>'`" + `
- **Local**: Direct shell command.
- **Network Scan**: Use ` + "`nmap`" + ` if available, or ` + "`ping`" + ` loops.

# OODA Loop (Compressed)
1. **Initial Broad Check**: Check process, ports, logs, and config in ONE COMMAND using ` + "`;`" + `.
2. **Deep Dive**: Only if the first step is inconclusive.
3. **Report**: Stop immediately once the root cause is visible.

# Output Format (JSON ONLY)
{
  "thought": "I will run a batch diagnostic...",
  "command": "cmd1; echo split; cmd2",
  "is_final": boolean,
  "final_report": "Summary"
}
`

// BuildMessages assembles the conversation for the next model turn: the task
// statement followed by one assistant/user pair per executed step. Captured
// output is truncated so context growth stays constant per step instead of
// accumulating raw output without bound.
func BuildMessages(instruction string, history []Step, stdoutLimit, stderrLimit int) []providers.Message {
	msgs := make([]providers.Message, 0, 1+2*len(history))
	msgs = append(msgs, providers.Message{Role: "user", Content: "Task: " + instruction})
	for _, step := range history {
		msgs = append(msgs, providers.Message{Role: "assistant", Content: "Cmd: " + step.Command})
		msgs = append(msgs, providers.Message{
			Role: "user",
			Content: fmt.Sprintf("Result: %d\nOut: %s\nErr: %s",
				step.ExitCode,
				truncateRunes(step.Stdout, stdoutLimit),
				truncateRunes(step.Stderr, stderrLimit)),
		})
	}
	return msgs
}

// truncateRunes caps s at limit runes. Counting runes rather than bytes keeps
// multi-byte characters intact at the cut point.
func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
