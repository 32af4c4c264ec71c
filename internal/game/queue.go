package game

import (
	"encoding/json"
	"sync"
)

// Command is one queued participant intent. Ephemeral: enqueued by a message
// handler, consumed at most once by the tick processor.
type Command struct {
	ParticipantID string
	Type          string
	Data          json.RawMessage
}

// CommandQueue is the ordered pending-intent list. Capacity is unbounded;
// the tick processor bounds work by draining at most N per tick. Strict FIFO,
// no priorities.
type CommandQueue struct {
	mu    sync.Mutex
	items []Command
}

// NewCommandQueue creates an empty queue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{}
}

// Enqueue appends a command in submission order.
func (q *CommandQueue) Enqueue(cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, cmd)
}

// Drain removes and returns up to max commands from the head. Remaining
// commands keep their order for the next tick.
func (q *CommandQueue) Drain(max int) []Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if n == 0 {
		return nil
	}
	if n > max {
		n = max
	}
	out := make([]Command, n)
	copy(out, q.items[:n])
	q.items = q.items[n:]
	return out
}

// Len returns the number of pending commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
