package sync_

import "sync"

// Mutexed guards a value with a sync.Mutex.
type Mutexed[T any] struct {
	mu    sync.Mutex
	value T
}

func NewMutexed[T any](value T) *Mutexed[T] {
	return &Mutexed[T]{value: value}
}

// Locked runs f with the lock held, passing a pointer to the guarded value.
func (m *Mutexed[T]) Locked(f func(*T) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f(&m.value)
}

// RWMutexed guards a value with a sync.RWMutex, so that many readers (e.g. status polling) can proceed while no
// writer holds the lock.
type RWMutexed[T any] struct {
	mu    sync.RWMutex
	value T
}

func NewRWMutexed[T any](value T) *RWMutexed[T] {
	return &RWMutexed[T]{value: value}
}

func (m *RWMutexed[T]) Locked(f func(*T) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f(&m.value)
}

// RLocked runs f with the read lock held. f must not modify the value.
func (m *RWMutexed[T]) RLocked(f func(*T) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return f(&m.value)
}

// Map is a mutex-guarded map, for registries keyed by job ID or client address.
type Map[K comparable, V any] struct {
	m Mutexed[map[K]V]
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{m: Mutexed[map[K]V]{value: make(map[K]V)}}
}

func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	_ = m.m.Locked(func(values *map[K]V) error {
		value, ok = (*values)[key]
		return nil
	})
	return
}

func (m *Map[K, V]) Store(key K, value V) {
	_ = m.m.Locked(func(values *map[K]V) error {
		(*values)[key] = value
		return nil
	})
}

// LoadOrCreate returns the value for key, calling create to make and store it if there is none. When the map already
// holds limit entries (and limit > 0) it is emptied first.
func (m *Map[K, V]) LoadOrCreate(key K, limit int, create func() V) (value V) {
	_ = m.m.Locked(func(values *map[K]V) error {
		var ok bool
		if value, ok = (*values)[key]; ok {
			return nil
		}
		if limit > 0 && len(*values) >= limit {
			*values = make(map[K]V)
		}
		value = create()
		(*values)[key] = value
		return nil
	})
	return
}

// DeleteIf removes key if f accepts its current value, reporting whether it did.
func (m *Map[K, V]) DeleteIf(key K, f func(V) bool) (deleted bool) {
	_ = m.m.Locked(func(values *map[K]V) error {
		if v, ok := (*values)[key]; ok && f(v) {
			delete(*values, key)
			deleted = true
		}
		return nil
	})
	return
}

func (m *Map[K, V]) Len() (n int) {
	_ = m.m.Locked(func(values *map[K]V) error {
		n = len(*values)
		return nil
	})
	return
}
