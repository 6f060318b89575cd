package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// switchModelSchemaFmt describes the main agent's model hot-swap tool, exposed
// to the AI as an ordinary tool call so a caller can say "switch me to the
// premium model" mid-conversation.
const switchModelSchemaFmt = `{
  "name": "switch_model",
  "description": "Switch the realtime voice model tier for the rest of the call. Use 'premium' for complex requests, 'mini' for simple ones.",
  "parameters": {
    "type": "object",
    "properties": {
      "model": {"type": "string", "enum": %s}
    },
    "required": ["model"]
  }
}`

const hangupToolSchema = `{
  "name": "hangup",
  "description": "End the call immediately. Use only when the caller explicitly asks to hang up or end the call.",
  "parameters": {"type": "object", "properties": {}}
}`

// sentinelModelPrefix marks a main-agent switch_model tool result; parsed
// by Manager.ExecuteTool into DirectiveModelSwitch alongside the
// __SWITCH__/__BEEP__/__HANGUP__ family already defined in directive.go.
// It reuses the same AI-tool-boundary sentinel idiom rather than inventing
// a separate wire mechanism for model hot-swap requests.
const sentinelModelPrefix = "__MODEL__:"

func sentinelModel(tier ModelTier) string { return sentinelModelPrefix + string(tier) }

// NewMainAgent builds the main dispatcher: one transfer_to_<name> tool per
// specialist already in the registry, plus hangup and switch_model. It must be
// built after every specialist is registered and registered into the
// registry itself last, so its tool list can see the full specialist set.
func NewMainAgent(registry *Registry, logger *slog.Logger) Descriptor {
	logger = logger.With("agent", MainAgentName)

	tools := []Tool{
		{Name: "hangup", Schema: json.RawMessage(hangupToolSchema), Handler: hangupHandler(logger)},
		{Name: "switch_model", Schema: json.RawMessage(switchModelSchema()), Handler: switchModelHandler(logger)},
	}

	for _, d := range registry.List() {
		if d.Name == GateAgentName || d.Name == MainAgentName {
			continue
		}
		tools = append(tools, transferTool(d, logger))
	}

	return Descriptor{
		Name:        MainAgentName,
		DisplayName: "Main Dispatcher",
		Description: "Default unlocked agent; routes the caller to a specialist or handles general requests directly.",
		Greeting:    "Willkommen zurueck",
		Instructions: "You are the main assistant for an unlocked caller. Handle general requests yourself. If the " +
			"caller's request matches a specialist, call that specialist's transfer tool. Call hangup only if the " +
			"caller explicitly asks to end the call.",
		Tools: tools,
	}
}

func switchModelSchema() string {
	enum, _ := json.Marshal([]string{string(ModelMini), string(ModelPremium)})
	return fmt.Sprintf(switchModelSchemaFmt, enum)
}

func hangupHandler(logger *slog.Logger) ToolHandler {
	return func(ctx context.Context, call *CallContext, args json.RawMessage) (string, error) {
		logger.Info("hangup tool invoked", "call_id", call.CallID)
		return SentinelHangup, nil
	}
}

func switchModelHandler(logger *slog.Logger) ToolHandler {
	return func(ctx context.Context, call *CallContext, args json.RawMessage) (string, error) {
		var req struct {
			Model string `json:"model"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return "", fmt.Errorf("switch_model: invalid arguments: %w", err)
		}
		tier := ModelTier(req.Model)
		if tier != ModelMini && tier != ModelPremium {
			return "", fmt.Errorf("switch_model: unknown model tier %q", req.Model)
		}
		logger.Info("switch_model tool invoked", "call_id", call.CallID, "tier", tier)
		return sentinelModel(tier), nil
	}
}

// transferTool builds the transfer_to_<name> tool for one specialist
// descriptor.
func transferTool(target Descriptor, logger *slog.Logger) Tool {
	name := "transfer_to_" + target.Name
	desc := target.Description
	if desc == "" {
		desc = fmt.Sprintf("Transfer the call to %s.", target.DisplayName)
	}
	schema, _ := json.Marshal(map[string]any{
		"name":        name,
		"description": desc,
		"parameters":  map[string]any{"type": "object", "properties": map[string]any{}},
	})
	return Tool{
		Name:   name,
		Schema: schema,
		Handler: func(ctx context.Context, call *CallContext, args json.RawMessage) (string, error) {
			logger.Info("transfer tool invoked", "call_id", call.CallID, "target", target.Name)
			return SentinelSwitch(target.Name), nil
		},
	}
}
