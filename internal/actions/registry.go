package actions

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"odoomcp/pkg/logging"
)

// Action describes one invocable workflow method.
type Action struct {
	Method        string   `json:"method"`
	Label         string   `json:"label"`
	Description   string   `json:"description,omitempty"`
	Icon          string   `json:"icon,omitempty"`
	Tooltip       string   `json:"tooltip,omitempty"`
	Preconditions []string `json:"preconditions,omitempty"`
	Category      string   `json:"category"`
}

// registryEntry is the YAML shape of one curated action.
type registryEntry struct {
	Label         string   `yaml:"label"`
	Description   string   `yaml:"description"`
	Icon          string   `yaml:"icon"`
	Tooltip       string   `yaml:"tooltip"`
	Preconditions []string `yaml:"preconditions"`
	Category      string   `yaml:"category"`
}

// Registry holds curated per-model action metadata loaded from YAML.
// Deployments use it to label and annotate the actions their users care
// about; discovery falls back to heuristics for everything else.
type Registry struct {
	actions map[string]map[string]Action
}

// LoadRegistry reads the registry file at path. An empty path or a missing
// file yields an empty registry; a malformed file is an error.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{actions: make(map[string]map[string]Action)}
	if path == "" {
		return r, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Info("Actions", "No actions registry at %s, heuristic discovery only", path)
			return r, nil
		}
		return nil, fmt.Errorf("reading actions registry: %w", err)
	}

	var doc map[string]map[string]registryEntry
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing actions registry %s: %w", path, err)
	}

	for model, entries := range doc {
		r.actions[model] = make(map[string]Action, len(entries))
		for method, entry := range entries {
			action := Action{
				Method:        method,
				Label:         entry.Label,
				Description:   entry.Description,
				Icon:          entry.Icon,
				Tooltip:       entry.Tooltip,
				Preconditions: entry.Preconditions,
				Category:      entry.Category,
			}
			if action.Label == "" {
				action.Label = labelFor(method)
			}
			if action.Category == "" {
				action.Category = "action"
			}
			r.actions[model][method] = action
		}
	}
	logging.Info("Actions", "Loaded actions registry from %s (%d models)", path, len(r.actions))
	return r, nil
}

// Actions returns the curated actions for model, sorted by method name.
func (r *Registry) Actions(model string) []Action {
	entries := r.actions[model]
	if len(entries) == 0 {
		return nil
	}
	out := make([]Action, 0, len(entries))
	for _, a := range entries {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}
