// Package prompts loads the operator-provided list of fallback journaling
// prompts.
package prompts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Required is the exact number of prompts a fallback file must define.
const Required = 8

// Loader handles loading and parsing of the fallback prompts file
type Loader struct {
	filePath string
}

// NewLoader creates a new fallback prompts loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads the file and returns its prompts, trimmed. The file must hold
// exactly Required non-empty prompts.
func (l *Loader) Load() ([]string, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var config FallbackConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse prompts yaml: %w", err)
	}

	out := make([]string, 0, len(config.Prompts))
	for i, p := range config.Prompts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("prompt %d is empty", i+1)
		}
		out = append(out, p)
	}

	if len(out) != Required {
		return nil, fmt.Errorf("prompts file must define exactly %d prompts, got %d", Required, len(out))
	}

	return out, nil
}
