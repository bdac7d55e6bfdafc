package safety

import (
	"strings"
	"sync"

	"github.com/IGLOU-EU/go-wildcard/v2"
)

// BlockedCommands is the built-in list of catastrophic command patterns that
// must never reach a shell. It is a last-resort tripwire based on substring
// containment, not a sandbox: it cannot catch obfuscated or semantically
// equivalent destructive commands. Policy files may extend it, never shrink it.
var BlockedCommands = []string{
	// Recursive root deletion
	"rm -rf /",
	// Filesystem format
	"mkfs",
	// Disk device truncation
	"> /dev/sda",
	// Fork bomb
	":(){:|:&};:",
}

// Gate decides whether a candidate shell command is safe to execute.
// The zero value is not usable; construct with NewGate.
type Gate struct {
	mu       sync.RWMutex
	literals []string // lowercase literal substrings, built-ins first
	globs    []string // lowercase wildcard patterns from policy
}

// NewGate returns a Gate carrying only the built-in deny-list.
func NewGate() *Gate {
	g := &Gate{}
	g.SetPolicy(Policy{})
	return g
}

// SetPolicy replaces the policy-supplied patterns in one atomic swap.
// Built-in patterns are always retained.
func (g *Gate) SetPolicy(p Policy) {
	literals := make([]string, 0, len(BlockedCommands)+len(p.Deny))
	for _, pattern := range BlockedCommands {
		literals = append(literals, strings.ToLower(pattern))
	}
	for _, pattern := range p.Deny {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern != "" {
			literals = append(literals, pattern)
		}
	}

	globs := make([]string, 0, len(p.DenyGlobs))
	for _, pattern := range p.DenyGlobs {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern != "" {
			globs = append(globs, pattern)
		}
	}

	g.mu.Lock()
	g.literals = literals
	g.globs = globs
	g.mu.Unlock()
}

// PatternCount returns how many literal and wildcard patterns are active.
func (g *Gate) PatternCount() (literals, globs int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.literals), len(g.globs)
}

// IsSafe reports whether the command may be executed. An empty command is a
// no-op and therefore safe. Matching is case-insensitive and runs against both
// the raw command and a normalized form with shell quoting stripped, so
// trivially quoted variants like `'rm' -rf /` are still caught.
func (g *Gate) IsSafe(command string) bool {
	if command == "" {
		return true
	}

	rawLower := strings.ToLower(command)
	normLower := strings.ToLower(normalizeCommand(command))

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, pattern := range g.literals {
		if strings.Contains(rawLower, pattern) || strings.Contains(normLower, pattern) {
			return false
		}
	}
	for _, pattern := range g.globs {
		if wildcard.Match(pattern, rawLower) || wildcard.Match(pattern, normLower) {
			return false
		}
	}
	return true
}

// normalizeCommand strips shell quoting and escape characters and collapses
// whitespace so that `'rm' -rf`, `\rm -rf`, or `rm\t-rf` still match the
// deny-list.
func normalizeCommand(cmd string) string {
	replacer := strings.NewReplacer(
		"\\", "",
		"'", "",
		"\"", "",
		"`", "",
	)
	result := replacer.Replace(cmd)

	fields := strings.Fields(result)
	return strings.Join(fields, " ")
}
