package driver

import (
	"sync"

	"github.com/roach88/fsmstack/internal/fsm"
)

// Command is a machine operation submitted from outside the runner
// goroutine.
type Command func(m *fsm.Machine)

// commandQueue is a thread-safe unbounded FIFO of commands.
//
// The signal channel has a buffer of one so that many submissions
// coalesce into a single wake-up of the run loop.
type commandQueue struct {
	mu       sync.Mutex
	commands []Command
	closed   bool
	signal   chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{
		commands: make([]Command, 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue appends cmd. Returns false once the queue is closed.
func (q *commandQueue) Enqueue(cmd Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.commands = append(q.commands, cmd)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front command without blocking.
func (q *commandQueue) TryDequeue() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return nil, false
	}

	cmd := q.commands[0]
	// Drop the reference so the closure can be collected.
	q.commands[0] = nil

	if len(q.commands) == 1 {
		q.commands = q.commands[:0]
	} else {
		q.commands = q.commands[1:]
	}

	return cmd, true
}

// Wait returns a channel that receives when commands may be available.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending commands.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Close rejects further commands. Pending ones stay dequeueable.
func (q *commandQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
}
