package sync_

import "sync"

// Event is an asynchronous boolean flag that goroutines can wait on, in the style of Python's `threading.Event`.
// The zero value is an unset Event.
type Event struct {
	mu    sync.Mutex
	ch    chan struct{}
	value bool
}

func NewEvent() *Event {
	return &Event{}
}

// IsSet returns the current state of the Event.
func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Set makes the Event true, waking every waiter. Returns true if the state changed.
func (e *Event) Set() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.value {
		return false
	}
	e.value = true
	close(e.channel())
	return true
}

// Clear makes the Event false. Returns true if the state changed.
func (e *Event) Clear() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.value {
		return false
	}
	e.value = false
	e.ch = nil
	return true
}

// Wait returns a channel that is closed once the Event is set (which may already be the case).
func (e *Event) Wait() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channel()
}

// channel must be called with e.mu held.
func (e *Event) channel() chan struct{} {
	if e.ch == nil {
		e.ch = make(chan struct{})
	}
	return e.ch
}
