package pubsub

import (
	"sync"
)

type Sender[T any] interface {
	Send(T) bool
}

type Receiver[T any] interface {
	Receive() <-chan T
}

type Closer interface {
	Close()
	// Closed returns a channel that is closed once Close has completed.
	Closed() <-chan struct{}
}

type SenderCloser[T any] interface {
	Sender[T]
	Closer
}

type ReceiverCloser[T any] interface {
	Receiver[T]
	Closer
}

type Channel[T any] interface {
	Sender[T]
	Receiver[T]
	Closer
	TrySend(T) bool
}

// channel wraps a primitive `chan` in some concurrency-safe state management.
type channel[T any] struct {
	mu       sync.RWMutex
	ch       chan T
	done     chan struct{}
	finished chan struct{}
	closed   bool
	waiting  sync.WaitGroup
}

// NewChannel creates a new channel of the specified type and buffer size.
func NewChannel[T any](bufSize int) Channel[T] {
	return &channel[T]{
		ch:       make(chan T, bufSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Receive returns a channel receiver for awaiting the next message.
func (c *channel[T]) Receive() <-chan T {
	return c.ch
}

// Send will attempt to send a message on the channel, returning true if successful, or false if the channel is closed.
func (c *channel[T]) Send(msg T) bool {
	// Atomically ensure that either the channel send is never attempted or that Close() can wait until no more channel
	// sends will occur
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	c.waiting.Add(1)
	defer c.waiting.Done()
	c.mu.RUnlock()

	// Now attempt to send the message, bailing out if Close() is called while waiting
	select {
	case c.ch <- msg:
		return true
	case <-c.done:
		return false
	}
}

// TrySend sends without blocking, dropping the message if the buffer is full. Returns false only if the channel is
// closed.
func (c *channel[T]) TrySend(msg T) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.ch <- msg:
	default:
	}
	return true
}

// Close idempotently ends the channel so that all current and future Send calls will fail.
func (c *channel[T]) Close() {
	// Stop any waiting senders before taking the write lock, otherwise a blocked sender holding the read lock would
	// deadlock us
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	// Wait for those senders to all exit, then notify receiver(s)
	c.waiting.Wait()
	close(c.ch)
	close(c.finished)
}

func (c *channel[T]) Closed() <-chan struct{} {
	return c.finished
}
