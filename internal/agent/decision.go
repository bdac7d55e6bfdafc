package agent

import (
	"encoding/json"
	"strings"
)

// Decision is one reply from the model: what it concluded, the next shell
// command it wants run, and whether the investigation is finished.
type Decision struct {
	Thought     string `json:"thought"`
	Command     string `json:"command"`
	IsFinal     bool   `json:"is_final"`
	FinalReport string `json:"final_report"`

	// fault marks decisions synthesized from a provider or parse failure
	// rather than returned by the model.
	fault bool
}

// Field defaults applied when the model omits a key.
const (
	defaultThought     = "Thinking..."
	defaultFinalReport = "Task done."
)

// DecodeDecision parses a model reply into a Decision. Replies wrapped in
// markdown code fences are reduced to the outermost brace span first.
// Missing fields get their defaults; a null command decodes as empty.
func DecodeDecision(raw string) (Decision, error) {
	dec := Decision{
		Thought:     defaultThought,
		FinalReport: defaultFinalReport,
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &dec); err != nil {
		return Decision{}, err
	}
	return dec, nil
}

// extractJSON undoes the code-fence wrapping some models insist on. When
// fences are present it returns the span from the first "{" to the last "}",
// which survives both leading prose and trailing fence markers. Without
// fences, or when no brace pair exists, the trimmed input is returned as is.
func extractJSON(s string) string {
	if strings.Contains(s, "```") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start >= 0 && end > start {
			return s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}
