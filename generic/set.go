package generic

import "sort"

// Void is the zero-size value used for set membership.
type Void struct{}

type Set[T comparable] interface {
	Add(items ...T) int
	Clear()
	Clone() Set[T]
	Contains(items ...T) bool
	Count() int
	Remove(item T) bool
	ToSlice() []T
}

func NewSet[T comparable](items ...T) Set[T] {
	s := make(set[T], len(items))
	s.Add(items...)
	return &s
}

type set[T comparable] map[T]Void

// Add inserts each item, returning how many were not already present.
func (s *set[T]) Add(items ...T) int {
	added := 0
	for _, item := range items {
		if _, found := (*s)[item]; !found {
			(*s)[item] = Void{}
			added++
		}
	}
	return added
}

func (s *set[T]) Clear() {
	*s = make(set[T])
}

func (s *set[T]) Clone() Set[T] {
	res := make(set[T], len(*s))
	for item := range *s {
		res[item] = Void{}
	}
	return &res
}

// Contains returns true only if every item is in the set.
func (s *set[T]) Contains(items ...T) bool {
	for _, item := range items {
		if _, found := (*s)[item]; !found {
			return false
		}
	}
	return true
}

func (s *set[T]) Count() int {
	return len(*s)
}

func (s *set[T]) Remove(item T) bool {
	if _, found := (*s)[item]; !found {
		return false
	}
	delete(*s, item)
	return true
}

func (s *set[T]) ToSlice() []T {
	slice := make([]T, 0, len(*s))
	for item := range *s {
		slice = append(slice, item)
	}
	return slice
}

// Sorted returns the members of a set of strings (or string-like values) in lexical order, for stable messages.
func Sorted[T ~string](s Set[T]) []T {
	items := s.ToSlice()
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	return items
}
