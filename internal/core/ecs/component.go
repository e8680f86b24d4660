package ecs

import "sync"

// Removable is implemented by all component stores so the Registry can
// bulk-remove an entity's data from every store on free.
type Removable interface {
	Remove(id EntityID)
}

// PtrComponentStore is a generic typed map store for ECS components, keyed
// by the full EntityID: a recycled index with a new generation never sees
// the rows of its predecessor. Safe for concurrent use.
type PtrComponentStore[T any] struct {
	mu   sync.RWMutex
	data map[EntityID]*T
}

func NewPtrComponentStore[T any]() *PtrComponentStore[T] {
	return &PtrComponentStore[T]{
		data: make(map[EntityID]*T, 256),
	}
}

func (s *PtrComponentStore[T]) Set(id EntityID, c *T) {
	s.mu.Lock()
	s.data[id] = c
	s.mu.Unlock()
}

func (s *PtrComponentStore[T]) Get(id EntityID) (*T, bool) {
	s.mu.RLock()
	c, ok := s.data[id]
	s.mu.RUnlock()
	return c, ok
}

func (s *PtrComponentStore[T]) Remove(id EntityID) {
	s.mu.Lock()
	delete(s.data, id)
	s.mu.Unlock()
}

func (s *PtrComponentStore[T]) Has(id EntityID) bool {
	_, ok := s.Get(id)
	return ok
}

func (s *PtrComponentStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Each visits every row under the read lock; fn must not call back into the
// store's write methods.
func (s *PtrComponentStore[T]) Each(fn func(EntityID, *T)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, c := range s.data {
		fn(id, c)
	}
}
