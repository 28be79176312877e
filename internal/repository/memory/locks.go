package memoryrepo

import (
	"context"
	"sync"
)

// eventLocks hands out one mutex per event id. Entries are dropped once no
// transaction holds or waits for them.
type eventLocks struct {
	mu sync.Mutex
	m  map[int64]*eventLock
}

type eventLock struct {
	ch   chan struct{}
	refs int
}

func newEventLocks() *eventLocks {
	return &eventLocks{m: make(map[int64]*eventLock)}
}

func (l *eventLocks) acquire(ctx context.Context, id int64) error {
	l.mu.Lock()
	el, ok := l.m[id]
	if !ok {
		el = &eventLock{ch: make(chan struct{}, 1)}
		l.m[id] = el
	}
	el.refs++
	l.mu.Unlock()

	select {
	case el.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.unref(id, el)
		l.mu.Unlock()
		return ctx.Err()
	}
}

func (l *eventLocks) release(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.m[id]
	if !ok {
		return
	}
	<-el.ch
	l.unref(id, el)
}

func (l *eventLocks) unref(id int64, el *eventLock) {
	el.refs--
	if el.refs == 0 {
		delete(l.m, id)
	}
}
