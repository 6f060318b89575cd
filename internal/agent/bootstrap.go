package agent

import "log/slog"

// Bootstrap builds the full registry for one process: the security gate,
// every specialist agents.yaml describes, and the main dispatcher (built
// last so its transfer_to_<name> tools can see every specialist).
func Bootstrap(agentsFile, unlockCode string, failures unlockFailureRecorder, toolset ExternalToolset, logger *slog.Logger) (*Registry, error) {
	registry := NewRegistry()

	if err := registry.Register(NewSecurityGate(unlockCode, failures, logger)); err != nil {
		return nil, err
	}

	specialists, err := LoadSpecialists(agentsFile, toolset, logger)
	if err != nil {
		return nil, err
	}
	for _, d := range specialists {
		if err := registry.Register(d); err != nil {
			return nil, err
		}
	}

	if err := registry.Register(NewMainAgent(registry, logger)); err != nil {
		return nil, err
	}

	return registry, nil
}
