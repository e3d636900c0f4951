package robot

import "sync"

// Queue is bounded FIFO of encoded telemetry, the oldest message is dropped
// when full
type Queue struct {
	mu      sync.Mutex
	items   [][]byte
	size    int
	dropped int
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 200
	}
	return &Queue{size: size}
}

func (q *Queue) Push(b []byte) {
	q.mu.Lock()
	if len(q.items) >= q.size {
		q.items = q.items[1:]
		q.dropped++
		queueDropped.Inc()
	}
	q.items = append(q.items, b)
	q.mu.Unlock()
}

// Drain returns all queued messages in order
func (q *Queue) Drain() [][]byte {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
