package core

import (
	"errors"
	"sync"
	"time"
)

var ErrTimeout = errors.New("core: wait timeout")

// Waiter support:
// - autostart on first Wait
// - block new waiters after last Done
// - safe Done after finish
type Waiter struct {
	sync.WaitGroup
	mu    sync.Mutex
	state int // state < 0 means finish
	err   error
}

func (w *Waiter) Wait() error {
	w.mu.Lock()
	// first wait auto start waiter
	if w.state == 0 {
		w.state++
		w.WaitGroup.Add(1)
	}
	w.mu.Unlock()

	w.WaitGroup.Wait()

	return w.err
}

func (w *Waiter) Done(err error) {
	w.mu.Lock()

	// safe run Done only when have tasks
	if w.state > 0 {
		w.state--
		w.WaitGroup.Done()
	}

	// block waiter for any operations after last done
	if w.state == 0 {
		w.state = -1
		w.err = err
	}

	w.mu.Unlock()
}

// WaitTimeout is Wait limited by timeout, the waiter itself is not finished
// on timeout.
func (w *Waiter) WaitTimeout(timeout time.Duration) error {
	ch := make(chan error, 1)
	go func() {
		ch <- w.Wait()
	}()

	select {
	case err := <-ch:
		return err
	case <-time.After(timeout):
		return ErrTimeout
	}
}
