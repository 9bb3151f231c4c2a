// Package scheduler runs background tasks for the agent: priority dispatch
// under a fixed concurrency ceiling, per-task timeouts and cancellation, and
// event streams for progress reporting. Subagents ride on top of it as
// independent agent instances executed as tasks.
package scheduler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/quillagent/quill/cancel"
	"github.com/quillagent/quill/config"
)

type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// ParsePriority maps a config string to a Priority, defaulting to normal.
func ParsePriority(s string) Priority {
	switch strings.ToLower(s) {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type EventType string

const (
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventError    EventType = "error"
)

// Event is a typed output emitted by a running task. Events are the only
// externally observable channel before a task reaches a terminal status.
type Event struct {
	TaskID   string
	Type     EventType
	Payload  string
	Progress int
	Time     time.Time
}

// Executor is the work a task performs. It must honor ctx: cancellation and
// the per-task timeout arrive through it.
type Executor func(ctx context.Context, task *Task) (string, error)

// Task is one scheduled unit of background work. Fields are mutated only by
// the scheduler; callers read snapshots.
type Task struct {
	ID          string
	Name        string
	Description string
	ParentID    string
	Priority    Priority
	Status      Status
	Progress    int
	Result      string
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	seq      int64
	timeout  time.Duration
	executor Executor
	cancelFn context.CancelFunc
}

// TaskSpec describes a task to schedule. OnEvent, when set, is subscribed
// before the task can start, so no event is lost to a dispatch race.
type TaskSpec struct {
	Name        string
	Description string
	Priority    Priority
	ParentID    string
	Timeout     time.Duration // zero means the configured default
	Executor    Executor
	OnEvent     func(Event)
}

// Stats summarizes the scheduler's task population by status.
type Stats struct {
	Queued    int
	Running   int
	Completed int
	Failed    int
	Cancelled int
	Total     int
}

// Scheduler runs independent background tasks with bounded parallelism.
// Queued tasks dispatch in priority-then-arrival order; completion of any
// task immediately frees its slot and triggers the next dispatch.
type Scheduler struct {
	cfg        config.Scheduler
	controller *cancel.Controller
	slots      *semaphore.Weighted

	mu          sync.Mutex
	tasks       map[string]*Task
	queue       []*Task
	subscribers map[string][]func(Event)
	nextSeq     int64

	now func() time.Time
}

func New(cfg config.Scheduler, controller *cancel.Controller) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Scheduler{
		cfg:         cfg,
		controller:  controller,
		slots:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		tasks:       map[string]*Task{},
		subscribers: map[string][]func(Event){},
		now:         time.Now,
	}
}

// AddTask enqueues work and returns its task snapshot immediately; dispatch
// happens asynchronously.
func (s *Scheduler) AddTask(spec TaskSpec) *Task {
	timeout := spec.Timeout
	if timeout == 0 {
		timeout = s.cfg.DefaultTimeout
	}

	s.mu.Lock()
	s.nextSeq++
	task := &Task{
		ID:          uuid.NewString(),
		Name:        spec.Name,
		Description: spec.Description,
		ParentID:    spec.ParentID,
		Priority:    spec.Priority,
		Status:      StatusQueued,
		CreatedAt:   s.now(),
		seq:         s.nextSeq,
		timeout:     timeout,
		executor:    spec.Executor,
	}
	s.tasks[task.ID] = task
	s.queue = append(s.queue, task)
	if spec.OnEvent != nil {
		s.subscribers[task.ID] = append(s.subscribers[task.ID], spec.OnEvent)
	}
	s.evictExpiredLocked()
	snapshot := *task
	s.mu.Unlock()

	go s.dispatch()
	return &snapshot
}

// Subscribe attaches an event receiver to a task. Receivers attached after
// events have fired only see subsequent ones.
func (s *Scheduler) Subscribe(taskID string, fn func(Event)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return false
	}
	s.subscribers[taskID] = append(s.subscribers[taskID], fn)
	return true
}

// CancelTask cancels a queued or running task. Returns false when the task
// is unknown or already terminal.
func (s *Scheduler) CancelTask(id string) bool {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok || task.Status.Terminal() {
		s.mu.Unlock()
		return false
	}
	if task.Status == StatusQueued {
		s.removeFromQueueLocked(id)
		s.finishLocked(task, StatusCancelled, "", "cancelled before start")
		s.mu.Unlock()
		s.emit(task.ID, Event{TaskID: task.ID, Type: EventError, Payload: "cancelled before start", Time: s.now()})
		return true
	}
	// Running: signal through the task context, the runner records the
	// terminal status.
	cancelFn := task.cancelFn
	s.mu.Unlock()
	if cancelFn != nil {
		cancelFn()
	}
	return true
}

// UpdateProgress sets a running task's progress (clamped to 0..100) and
// emits a progress event.
func (s *Scheduler) UpdateProgress(id string, pct int) bool {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok || task.Status.Terminal() {
		s.mu.Unlock()
		return false
	}
	task.Progress = pct
	s.mu.Unlock()
	s.emit(id, Event{TaskID: id, Type: EventProgress, Progress: pct, Time: s.now()})
	return true
}

// Task returns a snapshot of one task.
func (s *Scheduler) Task(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// TasksByStatus returns snapshots of every task in the given status, oldest
// first.
func (s *Scheduler) TasksByStatus(status Status) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Task
	for _, task := range s.tasks {
		if task.Status == status {
			out = append(out, *task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Stats counts tasks by status.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, task := range s.tasks {
		switch task.Status {
		case StatusQueued:
			st.Queued++
		case StatusRunning:
			st.Running++
		case StatusCompleted:
			st.Completed++
		case StatusFailed:
			st.Failed++
		case StatusCancelled:
			st.Cancelled++
		}
		st.Total++
	}
	return st
}

// ClearFinished drops every terminal task from history and returns how many
// were removed.
func (s *Scheduler) ClearFinished() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, task := range s.tasks {
		if task.Status.Terminal() {
			delete(s.tasks, id)
			delete(s.subscribers, id)
			n++
		}
	}
	return n
}

// dispatch starts queued tasks while free slots remain. It is safe to call
// from any goroutine; the queue pop is serialized under the mutex.
func (s *Scheduler) dispatch() {
	for {
		if !s.slots.TryAcquire(1) {
			return
		}
		s.mu.Lock()
		task := s.popBestLocked()
		if task == nil {
			s.mu.Unlock()
			s.slots.Release(1)
			return
		}
		task.Status = StatusRunning
		started := s.now()
		task.StartedAt = &started

		base := context.Background()
		var taskCtx context.Context
		var cancelFns []context.CancelFunc
		if s.controller != nil {
			ctx, cancelFn := s.controller.Context(base)
			taskCtx = ctx
			cancelFns = append(cancelFns, cancelFn)
		} else {
			taskCtx = base
		}
		if task.timeout > 0 {
			ctx, cancelFn := context.WithTimeout(taskCtx, task.timeout)
			taskCtx = ctx
			cancelFns = append(cancelFns, cancelFn)
		}
		ctx, cancelFn := context.WithCancel(taskCtx)
		cancelFns = append(cancelFns, cancelFn)
		task.cancelFn = func() {
			for _, fn := range cancelFns {
				fn()
			}
		}
		s.mu.Unlock()

		go s.run(ctx, task)
	}
}

// popBestLocked removes and returns the queued task with the highest
// priority, breaking ties by arrival order.
func (s *Scheduler) popBestLocked() *Task {
	if len(s.queue) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(s.queue); i++ {
		if s.queue[i].Priority > s.queue[best].Priority ||
			(s.queue[i].Priority == s.queue[best].Priority && s.queue[i].seq < s.queue[best].seq) {
			best = i
		}
	}
	task := s.queue[best]
	s.queue = append(s.queue[:best], s.queue[best+1:]...)
	return task
}

func (s *Scheduler) removeFromQueueLocked(id string) {
	for i, task := range s.queue {
		if task.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// run executes one task, racing the executor against its context so a
// timeout or cancellation is observed even if the executor lags.
func (s *Scheduler) run(ctx context.Context, task *Task) {
	defer func() {
		if task.cancelFn != nil {
			task.cancelFn()
		}
		s.slots.Release(1)
		// Completion immediately frees a slot for the next queued task.
		s.dispatch()
	}()

	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := task.executor(ctx, task)
		done <- outcome{result, err}
	}()

	var status Status
	var result, errText string
	select {
	case out := <-done:
		switch {
		case out.err == nil:
			status, result = StatusCompleted, out.result
		case ctx.Err() == context.DeadlineExceeded:
			status, errText = StatusFailed, "timed out after "+task.timeout.String()
		case ctx.Err() != nil:
			status, errText = StatusCancelled, "cancelled: "+out.err.Error()
		default:
			status, errText = StatusFailed, out.err.Error()
		}
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			status, errText = StatusFailed, "timed out after "+task.timeout.String()
		} else {
			status, errText = StatusCancelled, "cancelled"
		}
	}

	s.mu.Lock()
	s.finishLocked(task, status, result, errText)
	s.mu.Unlock()

	switch status {
	case StatusCompleted:
		s.emit(task.ID, Event{TaskID: task.ID, Type: EventResult, Payload: result, Progress: 100, Time: s.now()})
	default:
		s.emit(task.ID, Event{TaskID: task.ID, Type: EventError, Payload: errText, Time: s.now()})
	}
}

func (s *Scheduler) finishLocked(task *Task, status Status, result, errText string) {
	if task.Status.Terminal() {
		return
	}
	task.Status = status
	task.Result = result
	task.Error = errText
	if status == StatusCompleted {
		task.Progress = 100
	}
	completed := s.now()
	task.CompletedAt = &completed
}

// evictExpiredLocked drops terminal tasks older than the retention window.
func (s *Scheduler) evictExpiredLocked() {
	if s.cfg.Retention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.cfg.Retention)
	for id, task := range s.tasks {
		if task.Status.Terminal() && task.CompletedAt != nil && task.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
			delete(s.subscribers, id)
		}
	}
}

// emit invokes a task's subscribers synchronously, outside the scheduler
// lock so a subscriber may call back into the scheduler.
func (s *Scheduler) emit(taskID string, ev Event) {
	s.mu.Lock()
	subs := make([]func(Event), len(s.subscribers[taskID]))
	copy(subs, s.subscribers[taskID])
	s.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}
