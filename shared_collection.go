package roomsocket

import (
	"sync"
)

// A generic, thread-safe map keyed by id
type SharedCollection[T any, K comparable] struct {
	objectMap map[K]T
	sync.RWMutex
}

func NewSharedCollection[T any, K comparable](capacity ...int) *SharedCollection[T, K] {
	var newObjMap map[K]T

	if len(capacity) > 0 {
		newObjMap = make(map[K]T, capacity[0])
	} else {
		newObjMap = make(map[K]T)
	}

	return &SharedCollection[T, K]{
		objectMap: newObjMap,
	}
}

// Add stores obj under id, replacing any previous value
func (s *SharedCollection[T, K]) Add(obj T, id K) {
	s.Lock()
	defer s.Unlock()
	s.objectMap[id] = obj
}

// Removes an object from the map by ID, if it exists
// Returns true if the object was removed
func (s *SharedCollection[T, K]) Remove(id K) bool {
	s.Lock()
	defer s.Unlock()

	if _, exists := s.objectMap[id]; exists {
		delete(s.objectMap, id)
		return true
	}
	return false
}

// Call the callback function for each object in the map
func (s *SharedCollection[T, K]) ForEach(callback func(id K, obj T)) {
	// Create a local copy while holding the lock
	s.RLock()
	localCopy := make(map[K]T, len(s.objectMap))
	for id, obj := range s.objectMap {
		localCopy[id] = obj
	}
	s.RUnlock()

	// Iterate over the local copy without holding the lock
	for id, obj := range localCopy {
		callback(id, obj)
	}
}

// Get and object with the given ID, if it exists
// Also returns a boolean indication wheter the object was found
func (s *SharedCollection[T, K]) Get(id K) (T, bool) {
	s.RLock()
	defer s.RUnlock()

	obj, found := s.objectMap[id]
	return obj, found
}

// Values returns a snapshot of all objects
func (s *SharedCollection[T, K]) Values() []T {
	s.RLock()
	defer s.RUnlock()

	out := make([]T, 0, len(s.objectMap))
	for _, v := range s.objectMap {
		out = append(out, v)
	}
	return out
}

func (s *SharedCollection[T, K]) Has(id K) bool {
	s.RLock()
	defer s.RUnlock()

	_, exists := s.objectMap[id]
	return exists
}

func (s *SharedCollection[T, K]) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.objectMap)
}
