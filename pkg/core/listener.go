package core

import "sync"

type EventFunc func(msg any)

// Listener base struct for all classes with support feedback
type Listener struct {
	mu     sync.Mutex
	events []*Subscription
}

// Subscription is a registered EventFunc. Release removes it from its
// Listener, after that the function is never called again.
type Subscription struct {
	l *Listener
	f EventFunc
}

func (l *Listener) Listen(f EventFunc) *Subscription {
	sub := &Subscription{l: l, f: f}
	l.mu.Lock()
	l.events = append(l.events, sub)
	l.mu.Unlock()
	return sub
}

func (l *Listener) Fire(msg any) {
	l.mu.Lock()
	events := l.events
	l.mu.Unlock()

	for _, sub := range events {
		sub.l.mu.Lock()
		f := sub.f
		sub.l.mu.Unlock()
		if f != nil {
			f(msg)
		}
	}
}

// ReleaseAll drops every subscription
func (l *Listener) ReleaseAll() {
	l.mu.Lock()
	for _, sub := range l.events {
		sub.f = nil
	}
	l.events = nil
	l.mu.Unlock()
}

func (s *Subscription) Release() {
	if s == nil {
		return
	}

	l := s.l
	l.mu.Lock()
	s.f = nil
	for i, sub := range l.events {
		if sub == s {
			// copy on write, Fire may iterate the old slice
			events := make([]*Subscription, 0, len(l.events)-1)
			events = append(events, l.events[:i]...)
			l.events = append(events, l.events[i+1:]...)
			break
		}
	}
	l.mu.Unlock()
}
