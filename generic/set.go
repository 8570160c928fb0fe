package generic

// Set is an unordered collection of distinct values.
type Set[T any] interface {
	// Add inserts item, returning false if it was already present.
	Add(item T) bool
	Clear()
	// Contains reports whether every one of items is present.
	Contains(items ...T) bool
	Count() int
	// Remove deletes item, returning false if it was not present.
	Remove(item T) bool
	ToSlice() []T
}

// NewSet creates a Set of comparable values.
func NewSet[T comparable](items ...T) Set[T] {
	return newKeyedSet(func(item T) T { return item }, items)
}

// NewPolymorphicSet creates a Set for interface types, keyed on the dynamic value. Adding a value whose dynamic
// type is not comparable panics, as it would for a map key.
func NewPolymorphicSet[T any](items ...T) Set[T] {
	return newKeyedSet(func(item T) any { return item }, items)
}

type keyedSet[K comparable, T any] struct {
	key   func(T) K
	items map[K]T
}

func newKeyedSet[K comparable, T any](key func(T) K, items []T) *keyedSet[K, T] {
	s := &keyedSet[K, T]{key: key, items: make(map[K]T, len(items))}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

func (s *keyedSet[K, T]) Add(item T) bool {
	k := s.key(item)
	if _, found := s.items[k]; found {
		return false
	}
	s.items[k] = item
	return true
}

func (s *keyedSet[K, T]) Clear() {
	s.items = make(map[K]T)
}

func (s *keyedSet[K, T]) Contains(items ...T) bool {
	for _, item := range items {
		if _, found := s.items[s.key(item)]; !found {
			return false
		}
	}
	return true
}

func (s *keyedSet[K, T]) Count() int {
	return len(s.items)
}

func (s *keyedSet[K, T]) Remove(item T) bool {
	k := s.key(item)
	if _, found := s.items[k]; !found {
		return false
	}
	delete(s.items, k)
	return true
}

func (s *keyedSet[K, T]) ToSlice() []T {
	slice := make([]T, 0, len(s.items))
	for _, item := range s.items {
		slice = append(slice, item)
	}
	return slice
}
