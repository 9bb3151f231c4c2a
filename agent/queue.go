package agent

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/quillagent/quill/errors"
)

type QueueStatus string

const (
	QueueStatusQueued     QueueStatus = "queued"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// QueuedMessage tracks one user submission through the queue.
type QueuedMessage struct {
	ID       string
	Message  string
	Status   QueueStatus
	Response string
	Err      error

	callbacks ProcessCallbacks
	done      chan struct{}
}

// MessageQueue serializes user messages against a single agent: submissions
// are accepted at any time, but exactly one is processing at any instant and
// they run in FIFO order.
type MessageQueue struct {
	agent *Agent

	mu    sync.Mutex
	items map[string]*QueuedMessage
	order []string

	pending chan *QueuedMessage
	stopped chan struct{}
	once    sync.Once
}

func NewMessageQueue(a *Agent) *MessageQueue {
	return &MessageQueue{
		agent:   a,
		items:   map[string]*QueuedMessage{},
		pending: make(chan *QueuedMessage, 64),
		stopped: make(chan struct{}),
	}
}

// Start launches the single worker. It returns when ctx is cancelled or the
// queue is stopped.
func (q *MessageQueue) Start(ctx context.Context) {
	go q.run(ctx)
}

// Stop prevents further processing. Queued-but-unstarted messages keep their
// queued status.
func (q *MessageQueue) Stop() {
	q.once.Do(func() { close(q.stopped) })
}

// Submit enqueues a message and returns immediately with its tracking entry.
func (q *MessageQueue) Submit(message string, callbacks ProcessCallbacks) (*QueuedMessage, error) {
	qm := &QueuedMessage{
		ID:        uuid.NewString(),
		Message:   message,
		Status:    QueueStatusQueued,
		callbacks: callbacks,
		done:      make(chan struct{}),
	}

	q.mu.Lock()
	q.items[qm.ID] = qm
	q.order = append(q.order, qm.ID)
	q.mu.Unlock()

	select {
	case q.pending <- qm:
		return qm, nil
	default:
		q.mu.Lock()
		qm.Status = QueueStatusFailed
		qm.Err = errors.New("message queue is full")
		q.mu.Unlock()
		close(qm.done)
		return qm, qm.Err
	}
}

// Wait blocks until the message reaches a terminal status or ctx expires.
func (q *MessageQueue) Wait(ctx context.Context, id string) (*QueuedMessage, error) {
	q.mu.Lock()
	qm, ok := q.items[id]
	q.mu.Unlock()
	if !ok {
		return nil, errors.New("no queued message with id '%s'", id)
	}
	select {
	case <-qm.done:
		return qm, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Snapshot returns the queue entries in submission order.
func (q *MessageQueue) Snapshot() []QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedMessage, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.items[id])
	}
	return out
}

func (q *MessageQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopped:
			return
		case qm := <-q.pending:
			q.process(ctx, qm)
		}
	}
}

func (q *MessageQueue) process(ctx context.Context, qm *QueuedMessage) {
	q.mu.Lock()
	qm.Status = QueueStatusProcessing
	q.mu.Unlock()

	// Capture the final assistant text as the queue-level response while
	// still forwarding every event to the submitter's callbacks.
	callbacks := qm.callbacks
	userOnMessage := callbacks.OnAssistantMessage
	var lastResponse string
	callbacks.OnAssistantMessage = func(message string) {
		lastResponse = message
		if userOnMessage != nil {
			userOnMessage(message)
		}
	}

	err := q.agent.ProcessUserInput(ctx, qm.Message, callbacks)

	q.mu.Lock()
	if err != nil {
		qm.Status = QueueStatusFailed
		qm.Err = err
	} else {
		qm.Status = QueueStatusCompleted
		qm.Response = lastResponse
	}
	q.mu.Unlock()
	close(qm.done)
}
