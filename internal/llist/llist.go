// Package llist provides the ordered, owned-handle collection the engine
// uses in place of the original C library's intrusive doubly-linked list
// (see original_source/list.c and include/list.h). Each element there lived
// embedded in a container-of node living in exactly one list; a Go port
// has no analog to container-of, so List instead holds the elements
// directly in order and offers the same operations the intrusive list
// supported: insertion at a position, removal, length, and "safe
// iteration allowing removal" via a snapshot.
package llist

// List is an ordered sequence of elements. The zero value is an empty,
// ready-to-use list.
type List[T any] struct {
	elems []T
}

// Len returns the number of elements in the list.
func (l *List[T]) Len() int { return len(l.elems) }

// Empty reports whether the list has no elements.
func (l *List[T]) Empty() bool { return len(l.elems) == 0 }

// Append adds v at the end of the list.
func (l *List[T]) Append(v T) { l.elems = append(l.elems, v) }

// InsertSorted inserts v immediately before the first element for which
// less(v, existing) is true, or at the end if there is no such element.
// It is the Go equivalent of the original's insertion-sorted
// liftoff_rpi_list_insert calls used to keep planes ordered by zpos.
func (l *List[T]) InsertSorted(v T, less func(v, existing T) bool) {
	for i, e := range l.elems {
		if less(v, e) {
			l.elems = append(l.elems, v)
			copy(l.elems[i+1:], l.elems[i:])
			l.elems[i] = v
			return
		}
	}
	l.elems = append(l.elems, v)
}

// Remove deletes the first element for which match returns true,
// preserving the order of the rest. It reports whether an element was
// removed.
func (l *List[T]) Remove(match func(T) bool) bool {
	for i, e := range l.elems {
		if match(e) {
			l.elems = append(l.elems[:i], l.elems[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the list's elements in order. Callers that
// need to iterate while the list (or state reachable from its elements)
// may be mutated should range over the snapshot rather than the list
// itself.
func (l *List[T]) Snapshot() []T {
	out := make([]T, len(l.elems))
	copy(out, l.elems)
	return out
}

// All returns the live backing slice. Callers must not retain it across a
// mutation of the list.
func (l *List[T]) All() []T { return l.elems }
