package safety

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the operator-supplied extension of the built-in deny-list.
// Literal entries match by case-insensitive substring containment; glob
// entries match the whole command with `*` and `?` wildcards.
type Policy struct {
	Deny      []string `yaml:"deny"`
	DenyGlobs []string `yaml:"deny_globs"`
}

// LoadPolicy reads a YAML policy file. A missing path is not an error so the
// service can start before the operator has written a policy.
func LoadPolicy(path string) (Policy, error) {
	var policy Policy

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return policy, nil
		}
		return policy, fmt.Errorf("read policy file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return policy, nil
}
