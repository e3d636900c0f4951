package core

import (
	"time"
)

// Worker runs f after d and again after every duration f returns,
// until f returns zero or Stop is called
type Worker struct {
	timer *time.Timer
	done  chan struct{}
}

func NewWorker(d time.Duration, f func() time.Duration) *Worker {
	timer := time.NewTimer(d)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-timer.C:
				if d = f(); d > 0 {
					timer.Reset(d)
					continue
				}
			case <-done:
				timer.Stop()
			}
			break
		}
	}()

	return &Worker{timer: timer, done: done}
}

func (w *Worker) Stop() {
	if w == nil {
		return
	}

	select {
	case w.done <- struct{}{}:
	default:
	}
}
