package main

import "sync"

// eventQueue is the unbounded FIFO between input producers (decoder, IPC) and
// the render goroutine. Push never blocks and never drops; TryPop never blocks.
type eventQueue struct {
	mu    sync.Mutex
	items []InputEvent
}

func newEventQueue() *eventQueue {
	return &eventQueue{items: make([]InputEvent, 0, 16)}
}

// Push appends ev to the tail of the queue.
func (q *eventQueue) Push(ev InputEvent) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
}

// TryPop removes and returns the head of the queue, if any.
func (q *eventQueue) TryPop() (InputEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return 0, false
	}
	ev := q.items[0]
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// Reset so the backing array does not grow without bound.
		q.items = q.items[:0:0]
	}
	return ev, true
}

// Len reports the number of pending events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
