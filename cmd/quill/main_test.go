package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/quillagent/quill/cancel"
	"github.com/quillagent/quill/config"
)

func TestBuildRegistryBuiltins(t *testing.T) {
	cfg := config.Defaults()
	controller := cancel.NewController(cfg.EscalationWindow)

	registry, clients, err := buildRegistry(context.Background(), cfg, controller, newLogger(cfg))
	if err != nil {
		t.Fatalf("buildRegistry failed: %v", err)
	}
	if len(clients) != 0 {
		t.Errorf("Expected no MCP clients without configuration, got %d", len(clients))
	}

	for _, name := range []string{"read_file", "write_file", "list_dir", "search_files", "execute_command", "web_fetch"} {
		if _, ok := registry.Get(name); !ok {
			t.Errorf("Built-in tool %s not registered", name)
		}
	}
}

func TestDefaultSessionName(t *testing.T) {
	name := defaultSessionName()
	if name == "" {
		t.Fatal("Expected a generated session name")
	}
	year := time.Now().Format("2006")
	if !strings.Contains(name, year) {
		t.Errorf("Expected timestamp in session name, got %q", name)
	}
}
