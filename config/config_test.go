package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Agent.MaxIterations != 15 {
		t.Errorf("expected 15 max iterations, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Scheduler.MaxConcurrent != 3 {
		t.Errorf("expected concurrency ceiling 3, got %d", cfg.Scheduler.MaxConcurrent)
	}
	if cfg.EscalationWindow != 2*time.Second {
		t.Errorf("expected 2s escalation window, got %v", cfg.EscalationWindow)
	}
	if len(cfg.FilesystemAccess.AllowedRoots) == 0 {
		t.Error("expected the working directory as default allowed root")
	}
}

func TestApplyFloors(t *testing.T) {
	cfg := &Config{}
	cfg.applyFloors()
	if cfg.Agent.MaxIterations != 15 {
		t.Errorf("floors should restore max iterations, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.FilesystemAccess.MaxReadBytes != 1<<20 {
		t.Errorf("floors should restore max read bytes, got %d", cfg.FilesystemAccess.MaxReadBytes)
	}
}

func TestGetToolset(t *testing.T) {
	cfg := &Config{Toolsets: []Toolset{
		{Name: "default", Tools: []string{"read_file"}},
		{Name: "full", Tools: []string{"read_file", "execute_command"}},
	}}

	ts, err := cfg.GetToolset("full")
	if err != nil || ts == nil || ts.Name != "full" {
		t.Fatalf("expected the full toolset, got %v (%v)", ts, err)
	}

	ts, err = cfg.GetToolset("")
	if err != nil || ts == nil || ts.Name != "default" {
		t.Fatalf("empty name should fall back to default, got %v (%v)", ts, err)
	}

	ts, err = cfg.GetToolset("missing")
	if err != nil || ts == nil || ts.Name != "default" {
		t.Fatalf("unknown name should fall back to default, got %v (%v)", ts, err)
	}
}

func TestGetToolsetNoDefault(t *testing.T) {
	cfg := &Config{}
	ts, err := cfg.GetToolset("")
	if err != nil {
		t.Fatalf("missing default toolset should not be an error: %v", err)
	}
	if ts != nil {
		t.Errorf("expected implied all-tools toolset (nil), got %v", ts)
	}
}
