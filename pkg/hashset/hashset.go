// Package hashset provides a minimal generic set.
package hashset

type Set[T comparable] map[T]struct{}

func New[T comparable]() Set[T] {
	return map[T]struct{}{}
}

func FromSlice[T comparable](vals []T) Set[T] {
	set := New[T]()
	for _, v := range vals {
		set.Add(v)
	}
	return set
}

func (s Set[T]) Add(v T) {
	s[v] = struct{}{}
}

func (s Set[T]) Delete(v T) {
	delete(s, v)
}

func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

func (s Set[T]) Len() int {
	return len(s)
}

func (s Set[T]) AsSlice() []T {
	slice := make([]T, 0, len(s))
	for v := range s {
		slice = append(slice, v)
	}
	return slice
}
