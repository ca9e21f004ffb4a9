package history

import (
	"slices"
	"sync"
)

// Queue serializes every access to one session file. Participants line up
// in arrival order; only the head of the queue touches the file, and it
// wakes the next participant when it leaves.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tickets []*Ticket
}

// Ticket is one participant's place in a Queue.
type Ticket struct {
	q *Queue
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a new participant at the tail.
func (q *Queue) Enqueue() *Ticket {
	t := &Ticket{q: q}
	q.mu.Lock()
	q.tickets = append(q.tickets, t)
	q.mu.Unlock()
	return t
}

// Len returns the number of participants waiting or running.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tickets)
}

// Do enqueues, waits for its turn, runs fn, and leaves the queue.
func (q *Queue) Do(fn func() error) error {
	t := q.Enqueue()
	t.Wait()
	defer t.Done()
	return fn()
}

// Wait blocks until t is the head of its queue.
func (t *Ticket) Wait() {
	q := t.q
	q.mu.Lock()
	for len(q.tickets) == 0 || q.tickets[0] != t {
		q.cond.Wait()
	}
	q.mu.Unlock()
}

// Done removes t from its queue and wakes the remaining participants.
// Calling Done twice is a no-op.
func (t *Ticket) Done() {
	q := t.q
	q.mu.Lock()
	for i, other := range q.tickets {
		if other == t {
			q.tickets = slices.Delete(q.tickets, i, i+1)
			break
		}
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}
