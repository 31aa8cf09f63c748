package gatt

import (
	"time"

	"github.com/sirupsen/logrus"
)

// CommandQueue serializes commands so at most one hardware operation is in
// flight per connection. Not safe for concurrent use; only the connection
// owner touches it.
//
// Every dispatched command must be followed by exactly one Completed call,
// either from its own dispatch closure on synchronous failure or from the
// completion demux. A suspended command stays at the head with the busy flag
// set until Resume or Completed.
type CommandQueue struct {
	items       []*Command
	busy        bool
	suspended   bool
	dispatching bool

	linkAlive func() bool
	onDrop    func(dropped []*Command)
	logger    *logrus.Entry
}

// NewCommandQueue creates an idle queue. linkAlive is probed before every
// dispatch; onDrop receives the commands discarded because the link was gone.
func NewCommandQueue(linkAlive func() bool, onDrop func([]*Command), logger *logrus.Entry) *CommandQueue {
	if linkAlive == nil {
		linkAlive = func() bool { return true }
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &CommandQueue{
		linkAlive: linkAlive,
		onDrop:    onDrop,
		logger:    logger,
	}
}

// Enqueue appends cmd and dispatches the head if the queue is idle
func (q *CommandQueue) Enqueue(cmd *Command) {
	cmd.enqueuedAt = time.Now()
	q.items = append(q.items, cmd)

	q.logger.WithFields(cmd.Fields()).WithField("queue_len", len(q.items)).Debug("Command enqueued")
	q.dispatch()
}

// Completed pops the in-flight head, clears the busy flag and dispatches the
// next command if any
func (q *CommandQueue) Completed() {
	if !q.busy || len(q.items) == 0 {
		q.logger.Warn("Completed called with no command in flight")
		return
	}

	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.busy = false
	q.suspended = false

	q.logger.WithFields(head.Fields()).
		WithField("elapsed", time.Since(head.enqueuedAt)).
		Debug("Command completed")

	q.dispatch()
}

// Suspend marks the in-flight head as waiting for an out-of-band event.
// The busy flag stays set so nothing behind it runs.
func (q *CommandQueue) Suspend() {
	if !q.busy {
		return
	}
	q.suspended = true
	q.logger.WithFields(q.items[0].Fields()).Info("Command suspended pending authentication")
}

// Resume re-runs the dispatch closure of a suspended head.
// Returns false if nothing was suspended.
func (q *CommandQueue) Resume() bool {
	if !q.suspended || len(q.items) == 0 {
		return false
	}
	q.suspended = false

	head := q.items[0]
	q.logger.WithFields(head.Fields()).Info("Resuming suspended command")
	head.run(head)
	return true
}

// Clear drops every queued command and resets the busy flag.
// Returns the dropped commands, in-flight head first.
func (q *CommandQueue) Clear() []*Command {
	dropped := q.items
	q.items = nil
	q.busy = false
	q.suspended = false
	if len(dropped) > 0 {
		q.logger.WithField("dropped", len(dropped)).Debug("Command queue cleared")
	}
	return dropped
}

// Len returns the number of commands queued, including the in-flight one
func (q *CommandQueue) Len() int {
	return len(q.items)
}

// Contains reports whether a command of kind is queued or in flight
func (q *CommandQueue) Contains(kind Kind) bool {
	for _, cmd := range q.items {
		if cmd.Kind == kind {
			return true
		}
	}
	return false
}

// Busy reports whether a command is in flight
func (q *CommandQueue) Busy() bool {
	return q.busy
}

// Suspended reports whether the in-flight command waits for authentication
func (q *CommandQueue) Suspended() bool {
	return q.suspended
}

// Head returns the in-flight command, or nil when idle
func (q *CommandQueue) Head() *Command {
	if !q.busy || len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// dispatch runs heads until one stays in flight. Synchronous completions from
// inside a dispatch closure re-enter through Completed and are picked up by
// the loop instead of recursing.
func (q *CommandQueue) dispatch() {
	if q.dispatching {
		return
	}
	q.dispatching = true
	defer func() { q.dispatching = false }()

	for !q.busy && len(q.items) > 0 {
		if !q.linkAlive() {
			dropped := q.Clear()
			q.logger.WithField("dropped", len(dropped)).Warn("Link handle absent at dispatch, queue cleared")
			if q.onDrop != nil {
				q.onDrop(dropped)
			}
			return
		}

		q.busy = true
		head := q.items[0]
		q.logger.WithFields(head.Fields()).Debug("Dispatching command")
		head.run(head)
	}
}
