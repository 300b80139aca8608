// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nlm

import (
	"sync"

	"grimm.is/usbwall/internal/errors"
)

// QueueCapacity is the fixed number of envelopes a Queue holds.
const QueueCapacity = 10

// Queue is a bounded FIFO of received envelopes. It absorbs the burst of a
// DMP or SYN stream between the receiver and the consumer draining it.
// All methods are safe for one producer and one consumer running
// concurrently. Add never blocks: a full queue is reported, not waited on.
type Queue struct {
	mu   sync.Mutex
	msgs [QueueCapacity]Envelope
	n    int
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Init resets the queue to empty. Calling it repeatedly is harmless.
func (q *Queue) Init() {
	q.Clear()
}

// Add appends env at the tail. When the queue is full env is discarded and
// ErrQueueFull is returned; existing entries are never overwritten.
func (q *Queue) Add(env Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == QueueCapacity {
		return errors.Attr(ErrQueueFull, "capacity", QueueCapacity)
	}
	q.msgs[q.n] = env
	q.n++
	return nil
}

// Count returns the number of queued envelopes.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Get returns the envelope at index in arrival order.
func (q *Queue) Get(index int) (Envelope, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= q.n {
		return Envelope{}, errors.Attr(errors.Wrapf(ErrIndexOutOfRange, errors.KindNotFound,
			"index %d, count %d", index, q.n), "index", index)
	}
	return q.msgs[index], nil
}

// Clear removes every entry.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reset()
}

// Drain removes and returns every entry in arrival order as one atomic step,
// so nothing added between a Count and a Clear is lost.
func (q *Queue) Drain() []Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == 0 {
		return nil
	}
	out := make([]Envelope, q.n)
	copy(out, q.msgs[:q.n])
	q.reset()
	return out
}

func (q *Queue) reset() {
	clear(q.msgs[:q.n])
	q.n = 0
}
