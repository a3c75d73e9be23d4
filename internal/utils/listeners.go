package utils

import "sync"

// Listeners is an ordered list of callbacks. Emit invokes them synchronously
// in registration order on the calling goroutine.
type Listeners[T any] struct {
	mu    sync.RWMutex
	next  uint64
	funcs []listener[T]
}

type listener[T any] struct {
	id uint64
	fn func(T)
}

// Add registers fn and returns a func that removes it again.
func (l *Listeners[T]) Add(fn func(T)) (remove func()) {
	if fn == nil {
		return func() {}
	}

	l.mu.Lock()
	l.next++
	id := l.next
	l.funcs = append(l.funcs, listener[T]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *Listeners[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, entry := range l.funcs {
		if entry.id == id {
			// copy so a concurrent Emit keeps iterating its own snapshot
			funcs := make([]listener[T], 0, len(l.funcs)-1)
			funcs = append(funcs, l.funcs[:i]...)
			l.funcs = append(funcs, l.funcs[i+1:]...)
			return
		}
	}
}

// Emit calls every listener with v.
func (l *Listeners[T]) Emit(v T) {
	l.mu.RLock()
	funcs := l.funcs
	l.mu.RUnlock()

	for _, entry := range funcs {
		entry.fn(v)
	}
}

// Len reports the number of registered listeners.
func (l *Listeners[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.funcs)
}
