package compiler

import (
	"fmt"
	"strings"

	"github.com/lakeglass/lakeglass/pkg/compiler/prompts"
)

// Prompts contains the compiler prompt templates loaded from embedded files.
type Prompts struct {
	Compile   string // plan generation
	Overview  string // first-look dashboard generation
	Repair    string // SQL repair after execution failure
	Explain   string // plain-language failure explanation
	Summarize string // executive summary of executed results
}

// LoadPrompts loads all prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Compile, err = loadPrompt("COMPILE.md"); err != nil {
		return nil, fmt.Errorf("failed to load COMPILE: %w", err)
	}
	if p.Overview, err = loadPrompt("OVERVIEW.md"); err != nil {
		return nil, fmt.Errorf("failed to load OVERVIEW: %w", err)
	}
	if p.Repair, err = loadPrompt("REPAIR.md"); err != nil {
		return nil, fmt.Errorf("failed to load REPAIR: %w", err)
	}
	if p.Explain, err = loadPrompt("EXPLAIN.md"); err != nil {
		return nil, fmt.Errorf("failed to load EXPLAIN: %w", err)
	}
	if p.Summarize, err = loadPrompt("SUMMARIZE.md"); err != nil {
		return nil, fmt.Errorf("failed to load SUMMARIZE: %w", err)
	}
	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := prompts.PromptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func fill(template string, vars map[string]string) string {
	out := template
	for key, val := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", val)
	}
	return out
}
