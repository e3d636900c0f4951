package session

import "sync"

// mailbox is unbounded FIFO of tasks, push never blocks
type mailbox struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1), done: make(chan struct{})}
}

// push returns false after close
func (m *mailbox) push(task func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.tasks = append(m.tasks, task)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

// run executes tasks one by one until close, queued tasks are drained
func (m *mailbox) run() {
	defer close(m.done)

	for {
		m.mu.Lock()
		tasks := m.tasks
		m.tasks = nil
		closed := m.closed
		m.mu.Unlock()

		for _, task := range tasks {
			task()
		}

		if len(tasks) > 0 {
			continue
		}
		if closed {
			return
		}

		<-m.wake
	}
}

// close waits for the run loop to finish
func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}

	<-m.done
}
