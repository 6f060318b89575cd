package callsup

import (
	"log/slog"
	"os"
	"testing"

	"github.com/callgate/callgate/internal/agent"
	"github.com/callgate/callgate/internal/config"
	"github.com/callgate/callgate/internal/dashboard"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSupervisor() *Supervisor {
	cfg := &config.Config{AIMainModel: "rt-premium", AIMiniModel: "rt-mini"}
	return NewSupervisor(Options{
		CallID:      "call-1",
		CallerIDNum: "+4915901969502",
		Config:      cfg,
		Hub:         dashboard.NewHub(testLogger()),
	}, testLogger())
}

func TestForcedCauseFirstWriteWins(t *testing.T) {
	s := testSupervisor()

	s.setForcedCause("gate_timeout")
	s.setForcedCause("dashboard_hangup")

	if got := s.readForcedCause("caller_hangup"); got != "gate_timeout" {
		t.Errorf("readForcedCause = %q, want gate_timeout", got)
	}
}

func TestReadForcedCauseFallsBack(t *testing.T) {
	s := testSupervisor()
	if got := s.readForcedCause("caller_hangup"); got != "caller_hangup" {
		t.Errorf("readForcedCause = %q, want fallback caller_hangup", got)
	}
}

func TestResolveModelByTier(t *testing.T) {
	s := testSupervisor()

	premium := agent.Descriptor{Name: "research", PreferredModel: agent.ModelPremium}
	if got := s.resolveModel(premium); got != "rt-premium" {
		t.Errorf("premium tier resolved to %q, want rt-premium", got)
	}

	mini := agent.Descriptor{Name: "gate"}
	if got := s.resolveModel(mini); got != "rt-mini" {
		t.Errorf("no-preference tier resolved to %q, want rt-mini", got)
	}
}

func TestBuildConfigProjectsDescriptor(t *testing.T) {
	s := testSupervisor()
	d := agent.Descriptor{Name: "main_agent", Voice: "alloy", Instructions: "be helpful"}

	cfg := s.buildConfig(d)
	if cfg.Voice != "alloy" || cfg.Instructions != "be helpful" {
		t.Errorf("buildConfig = %+v", cfg)
	}
	if len(cfg.Tools) != 0 {
		t.Errorf("expected no tool schemas for a tool-less descriptor, got %d", len(cfg.Tools))
	}
}

func TestCostAccumulates(t *testing.T) {
	s := testSupervisor()
	s.addCost(0.5)
	s.addCost(1.25)
	if got := s.CostCents(); got != 1.75 {
		t.Errorf("CostCents = %v, want 1.75", got)
	}
}
