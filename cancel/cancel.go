// Package cancel implements the two-level cooperative cancellation used by the
// agent loop, the scheduler, and every spawned subprocess. A first trigger
// aborts the current step; a second trigger inside the escalation window
// aborts everything and kills tracked subprocesses.
package cancel

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/quillagent/quill/errors"
)

// Level is the cancellation severity.
type Level string

const (
	LevelNone    Level = ""
	LevelCommand Level = "command"
	LevelFull    Level = "full"
)

// Token is a snapshot of the controller state, read cooperatively at
// suspension points.
type Token struct {
	Cancelled bool
	Level     Level
	Reason    string
}

// Controller is an explicitly constructed, injected service; there is no
// package-level singleton. All methods are safe for concurrent use.
type Controller struct {
	mu          sync.Mutex
	token       Token
	lastTrigger time.Time
	window      time.Duration
	procs       map[int]*exec.Cmd
	nextProcID  int
	cancels     map[int]context.CancelFunc
	nextCtxID   int
	now         func() time.Time
}

// NewController builds a controller with the given escalation window (the
// time within which a second trigger escalates to a full abort).
func NewController(window time.Duration) *Controller {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &Controller{
		window:  window,
		procs:   make(map[int]*exec.Cmd),
		cancels: make(map[int]context.CancelFunc),
		now:     time.Now,
	}
}

// Trigger requests cancellation. The first call sets command level and cancels
// derived contexts. A second call within the escalation window (or any call
// while already at command level inside the window) escalates to full level
// and kills every registered subprocess. Returns the resulting level.
func (c *Controller) Trigger(reason string) Level {
	c.mu.Lock()
	now := c.now()
	// An un-reset full cancellation never downgrades, however late the
	// next trigger arrives.
	escalate := c.token.Level == LevelFull ||
		(c.token.Cancelled && now.Sub(c.lastTrigger) <= c.window)
	c.lastTrigger = now

	if escalate {
		c.token = Token{Cancelled: true, Level: LevelFull, Reason: reason}
	} else {
		c.token = Token{Cancelled: true, Level: LevelCommand, Reason: reason}
	}
	level := c.token.Level

	cancels := make([]context.CancelFunc, 0, len(c.cancels))
	for _, fn := range c.cancels {
		cancels = append(cancels, fn)
	}
	var victims []*exec.Cmd
	if level == LevelFull {
		victims = make([]*exec.Cmd, 0, len(c.procs))
		for _, cmd := range c.procs {
			victims = append(victims, cmd)
		}
	}
	c.mu.Unlock()

	for _, fn := range cancels {
		fn()
	}
	for _, cmd := range victims {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	return level
}

// Token returns a snapshot of the current cancellation state.
func (c *Controller) Token() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Err returns a descriptive error when the token is cancelled, nil otherwise.
// Long-running operations call this between steps.
func (c *Controller) Err() error {
	t := c.Token()
	if !t.Cancelled {
		return nil
	}
	if t.Reason != "" {
		return errors.New("cancelled (%s): %s", t.Level, t.Reason)
	}
	return errors.New("cancelled (%s)", t.Level)
}

// Reset clears the token before a new operation begins. Stale tokens must
// never carry over to a new invocation, so callers reset explicitly.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = Token{}
	c.lastTrigger = time.Time{}
}

// Context derives a context that is cancelled as soon as the controller
// triggers at any level. The returned stop function releases the registration
// and must be called when the operation finishes.
func (c *Controller) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	if c.token.Cancelled {
		c.mu.Unlock()
		cancel()
		return ctx, func() {}
	}
	id := c.nextCtxID
	c.nextCtxID++
	c.cancels[id] = cancel
	c.mu.Unlock()

	stop := func() {
		c.mu.Lock()
		delete(c.cancels, id)
		c.mu.Unlock()
		cancel()
	}
	return ctx, stop
}

// RegisterProcess tracks a subprocess for bulk termination on full-level
// cancellation. Returns a handle for UnregisterProcess.
func (c *Controller) RegisterProcess(cmd *exec.Cmd) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextProcID
	c.nextProcID++
	c.procs[id] = cmd
	return id
}

// UnregisterProcess stops tracking a finished subprocess.
func (c *Controller) UnregisterProcess(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.procs, id)
}

// TrackedProcesses reports how many subprocesses are currently registered.
func (c *Controller) TrackedProcesses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.procs)
}
