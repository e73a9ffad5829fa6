package tree

// Iterator walks a tree in order (or in reverse order) using an explicit stack, so it can be
// paused and resumed at any point. Iterators over a MutableTree fail with
// ErrConcurrentModification if the tree changes between two steps.
//
//	it := t.IteratorAfter(cursor)
//	for it.Next() {
//		v := it.Value()
//		...
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator[T any] struct {
	stack   []*node[T]
	reverse bool
	cur     T
	valid   bool
	err     error

	version      func() uint64
	startVersion uint64
}

func newIterator[T any](reverse bool, version func() uint64) *Iterator[T] {
	it := &Iterator[T]{reverse: reverse, version: version}
	if version != nil {
		it.startVersion = version()
	}
	return it
}

// pushLeft pushes n and its chain of left descendants.
func (it *Iterator[T]) pushLeft(n *node[T]) {
	for n != nil {
		it.stack = append(it.stack, n)
		n = n.left
	}
}

// pushRight pushes n and its chain of right descendants.
func (it *Iterator[T]) pushRight(n *node[T]) {
	for n != nil {
		it.stack = append(it.stack, n)
		n = n.right
	}
}

// seekAfter positions a forward iterator on the first value strictly greater than cursor.
func (it *Iterator[T]) seekAfter(n *node[T], cursor T, cmp Comparator[T]) {
	for n != nil {
		if cmp(n.value, cursor) > 0 {
			it.stack = append(it.stack, n)
			n = n.left
		} else {
			n = n.right
		}
	}
}

// seekFrom positions a forward iterator on the first value greater than or equal to cursor.
func (it *Iterator[T]) seekFrom(n *node[T], cursor T, cmp Comparator[T]) {
	for n != nil {
		if cmp(n.value, cursor) >= 0 {
			it.stack = append(it.stack, n)
			n = n.left
		} else {
			n = n.right
		}
	}
}

// seekBefore positions a reverse iterator on the last value strictly smaller than cursor.
func (it *Iterator[T]) seekBefore(n *node[T], cursor T, cmp Comparator[T]) {
	for n != nil {
		if cmp(n.value, cursor) < 0 {
			it.stack = append(it.stack, n)
			n = n.right
		} else {
			n = n.left
		}
	}
}

// Next advances the iterator and reports whether a value is available.
func (it *Iterator[T]) Next() bool {
	if it.err != nil {
		return false
	}
	if it.version != nil && it.version() != it.startVersion {
		it.err = ErrConcurrentModification
		it.valid = false
		return false
	}
	if len(it.stack) == 0 {
		it.valid = false
		return false
	}

	n := it.stack[len(it.stack)-1]
	it.stack = it.stack[:len(it.stack)-1]
	it.cur, it.valid = n.value, true
	if it.reverse {
		it.pushRight(n.left)
	} else {
		it.pushLeft(n.right)
	}
	return true
}

// Value returns the current value. Only valid after Next returned true.
func (it *Iterator[T]) Value() T {
	return it.cur
}

// Valid reports whether the iterator is positioned on a value.
func (it *Iterator[T]) Valid() bool {
	return it.valid
}

// Err returns the error that stopped the iteration, if any.
func (it *Iterator[T]) Err() error {
	return it.err
}

// Take collects at most n further values, n < 0 means all of them.
func (it *Iterator[T]) Take(n int) ([]T, error) {
	ret := []T{}
	for n != 0 && it.Next() {
		ret = append(ret, it.Value())
		n--
	}
	return ret, it.Err()
}
