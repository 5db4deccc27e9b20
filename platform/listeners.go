package platform

import "sync"

type listenerSet[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(T)
}

func (l *listenerSet[T]) add(fn func(T)) Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	return &subscription{remove: func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}}
}

// emit calls every listener outside the lock so listeners may unsubscribe.
func (l *listenerSet[T]) emit(v T) {
	l.mu.Lock()
	fns := make([]func(T), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (l *listenerSet[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

type subscription struct {
	once   sync.Once
	remove func()
}

func (s *subscription) Remove() {
	s.once.Do(s.remove)
}
