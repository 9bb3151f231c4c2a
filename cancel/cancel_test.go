package cancel

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func TestTriggerEscalation(t *testing.T) {
	c := NewController(2 * time.Second)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	if level := c.Trigger("user interrupt"); level != LevelCommand {
		t.Fatalf("first trigger should be command level, got %s", level)
	}
	tok := c.Token()
	if !tok.Cancelled || tok.Level != LevelCommand || tok.Reason != "user interrupt" {
		t.Fatalf("unexpected token after first trigger: %+v", tok)
	}

	now = now.Add(time.Second)
	if level := c.Trigger("user interrupt"); level != LevelFull {
		t.Fatalf("second trigger inside the window should escalate, got %s", level)
	}
	if c.Token().Level != LevelFull {
		t.Errorf("token should be full level after escalation")
	}
}

func TestTriggerOutsideWindowDoesNotEscalate(t *testing.T) {
	c := NewController(2 * time.Second)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Trigger("first")
	now = now.Add(5 * time.Second)
	if level := c.Trigger("second"); level != LevelCommand {
		t.Errorf("trigger outside the window should stay at command level, got %s", level)
	}
}

func TestFullLevelPersistsUntilReset(t *testing.T) {
	c := NewController(2 * time.Second)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Trigger("first")
	now = now.Add(time.Second)
	if level := c.Trigger("second"); level != LevelFull {
		t.Fatalf("second trigger inside the window should escalate, got %s", level)
	}

	// A trigger long after the window must not downgrade the token.
	now = now.Add(time.Minute)
	if level := c.Trigger("late"); level != LevelFull {
		t.Errorf("trigger after full-level cancellation should stay full, got %s", level)
	}
	if c.Token().Level != LevelFull {
		t.Errorf("token downgraded from full level without a reset")
	}

	c.Reset()
	now = now.Add(time.Minute)
	if level := c.Trigger("fresh"); level != LevelCommand {
		t.Errorf("post-reset trigger should start at command level, got %s", level)
	}
}

func TestResetClearsToken(t *testing.T) {
	c := NewController(time.Second)
	c.Trigger("stop")
	c.Reset()
	tok := c.Token()
	if tok.Cancelled || tok.Level != LevelNone {
		t.Errorf("reset should clear the token, got %+v", tok)
	}
	if c.Err() != nil {
		t.Errorf("Err should be nil after reset")
	}

	// A fresh trigger after reset starts at command level again.
	if level := c.Trigger("again"); level != LevelCommand {
		t.Errorf("post-reset trigger should be command level, got %s", level)
	}
}

func TestContextCancelledOnTrigger(t *testing.T) {
	c := NewController(time.Second)
	ctx, stop := c.Context(context.Background())
	defer stop()

	c.Trigger("stop now")
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("derived context should be cancelled by a trigger")
	}
}

func TestContextAfterCancellationStartsCancelled(t *testing.T) {
	c := NewController(time.Second)
	c.Trigger("stop")
	ctx, stop := c.Context(context.Background())
	defer stop()
	select {
	case <-ctx.Done():
	default:
		t.Error("context derived from a cancelled controller should start cancelled")
	}
}

func TestFullLevelKillsRegisteredProcesses(t *testing.T) {
	c := NewController(10 * time.Second)

	cmd := exec.Command("sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start subprocess: %v", err)
	}
	id := c.RegisterProcess(cmd)
	defer c.UnregisterProcess(id)

	c.Trigger("esc")
	c.Trigger("esc") // escalate

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if err == nil {
			t.Error("expected the killed subprocess to exit with an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subprocess was not killed by full-level cancellation")
	}
}

func TestUnregisterStopsTracking(t *testing.T) {
	c := NewController(time.Second)
	cmd := exec.Command("sleep", "60")
	id := c.RegisterProcess(cmd)
	if c.TrackedProcesses() != 1 {
		t.Fatalf("expected 1 tracked process, got %d", c.TrackedProcesses())
	}
	c.UnregisterProcess(id)
	if c.TrackedProcesses() != 0 {
		t.Errorf("expected 0 tracked processes after unregister")
	}
}
