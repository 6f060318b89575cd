package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ExternalToolset is the seam to every specialist agent's domain tools,
// treated as external collaborators reached through this interface. The
// concrete implementations live outside this module; a loaded specialist's
// tool handlers do nothing but forward here.
type ExternalToolset interface {
	Handle(ctx context.Context, agentName, toolName string, args json.RawMessage) (string, error)
}

// yamlFile is the top-level shape of agents.yaml, unmarshaled into a typed
// struct rather than a generic map so validation can run per field.
type yamlFile struct {
	Agents []yamlAgent `yaml:"agents"`
}

type yamlAgent struct {
	Name           string     `yaml:"name" validate:"required"`
	DisplayName    string     `yaml:"display_name" validate:"required"`
	Description    string     `yaml:"description"`
	Keywords       []string   `yaml:"keywords"`
	PreferredModel string     `yaml:"preferred_model" validate:"omitempty,oneof=mini premium"`
	Greeting       string     `yaml:"greeting"`
	Voice          string     `yaml:"voice"`
	Instructions   string     `yaml:"instructions" validate:"required"`
	Tools          []yamlTool `yaml:"tools"`
}

type yamlTool struct {
	Name        string         `yaml:"name" validate:"required"`
	Description string         `yaml:"description"`
	Parameters  map[string]any `yaml:"parameters"`
}

// LoadSpecialists reads path (agents.yaml) and returns one Descriptor per
// entry, with every tool's handler wired to toolset. Returns an empty slice,
// not an error, if path does not exist -- a deployment with no specialists
// configured is valid (security gate + main agent still work).
func LoadSpecialists(path string, toolset ExternalToolset, logger *slog.Logger) ([]Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("no agents file found, starting with no specialists", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("reading agents file %s: %w", path, err)
	}

	var file yamlFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing agents file %s: %w", path, err)
	}

	validate := validator.New()
	descriptors := make([]Descriptor, 0, len(file.Agents))
	seen := make(map[string]bool, len(file.Agents))
	for _, a := range file.Agents {
		if err := validate.Struct(a); err != nil {
			return nil, fmt.Errorf("agent %q: %w", a.Name, err)
		}
		if a.Name == GateAgentName || a.Name == MainAgentName {
			return nil, fmt.Errorf("agent %q: name is reserved for a built-in agent", a.Name)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("agent %q: duplicate name in agents file", a.Name)
		}
		seen[a.Name] = true

		d := Descriptor{
			Name:           a.Name,
			DisplayName:    a.DisplayName,
			Description:    a.Description,
			Keywords:       a.Keywords,
			PreferredModel: ModelTier(a.PreferredModel),
			Greeting:       a.Greeting,
			Voice:          a.Voice,
			Instructions:   a.Instructions,
		}
		for _, t := range a.Tools {
			schema, err := json.Marshal(map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			})
			if err != nil {
				return nil, fmt.Errorf("agent %q tool %q: marshaling schema: %w", a.Name, t.Name, err)
			}
			d.Tools = append(d.Tools, Tool{
				Name:    t.Name,
				Schema:  schema,
				Handler: externalToolHandler(a.Name, t.Name, toolset),
			})
		}
		descriptors = append(descriptors, d)
		logger.Info("loaded specialist agent", "name", a.Name, "tools", len(a.Tools))
	}
	return descriptors, nil
}

func externalToolHandler(agentName, toolName string, toolset ExternalToolset) ToolHandler {
	return func(ctx context.Context, call *CallContext, args json.RawMessage) (string, error) {
		if toolset == nil {
			return "", fmt.Errorf("tool %q on agent %q: no external toolset configured", toolName, agentName)
		}
		return toolset.Handle(ctx, agentName, toolName, args)
	}
}
