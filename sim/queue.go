package sim

import (
	"container/heap"
	"sort"
)

// eventHeap implements heap.Interface ordered by (Timestamp, Sequence).
type eventHeap []*Event

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return h[i].Before(h[j]) }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return item
}

// TimedQueue is a min-priority queue of events keyed by timestamp with the
// sequence number as tie-breaker. It backs input and output traces alike.
type TimedQueue struct {
	events eventHeap
}

// NewTimedQueue creates an empty queue.
func NewTimedQueue() *TimedQueue {
	q := &TimedQueue{events: make(eventHeap, 0)}
	heap.Init(&q.events)
	return q
}

// Len returns the number of queued events.
func (q *TimedQueue) Len() int {
	return len(q.events)
}

// Push adds an event to the queue.
func (q *TimedQueue) Push(e *Event) {
	if e == nil {
		panic("TimedQueue.Push: event must not be nil")
	}
	heap.Push(&q.events, e)
}

// Pop removes and returns the event with the smallest (Timestamp, Sequence).
// Callers check Len first; popping an empty queue is a logic error.
func (q *TimedQueue) Pop() *Event {
	if len(q.events) == 0 {
		panic("TimedQueue.Pop: queue is empty")
	}
	return heap.Pop(&q.events).(*Event)
}

// Peek returns the next event without removing it.
func (q *TimedQueue) Peek() *Event {
	if len(q.events) == 0 {
		panic("TimedQueue.Peek: queue is empty")
	}
	return q.events[0]
}

// Events returns the queued events in pop order without draining the queue.
// The returned slice is a copy; the events themselves are shared and must
// not be modified.
func (q *TimedQueue) Events() []*Event {
	out := make([]*Event, len(q.events))
	copy(out, q.events)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
