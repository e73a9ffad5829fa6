package tree

import (
	"errors"
	"math/rand/v2"
)

// ErrConcurrentModification is returned by an iterator that was advanced after the tree it walks
// has been modified.
var ErrConcurrentModification = errors.New("tree modified during iteration")

// Comparator orders values: negative if a < b, zero if a == b, positive if a > b.
type Comparator[T any] func(a, b T) int

// Rand is the source of node priorities. A *math/rand/v2.Rand satisfies it.
type Rand interface {
	Uint64() uint64
}

type globalRand struct{}

func (globalRand) Uint64() uint64 { return rand.Uint64() }

// DefaultRand draws priorities from the global math/rand/v2 source.
var DefaultRand Rand = globalRand{}

// NewSeededRand returns a deterministic priority source, useful for tests.
func NewSeededRand(seed uint64) Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// base holds the read-only operations shared by the persistent and the mutable tree.
type base[T any] struct {
	root    *node[T]
	cmp     Comparator[T]
	rnd     Rand
	version func() uint64
}

// Size returns the number of values in the tree.
func (b *base[T]) Size() int { return sizeOf(b.root) }

// Empty returns true if the tree has no values.
func (b *base[T]) Empty() bool { return b.root == nil }

// Comparator returns the ordering of the tree.
func (b *base[T]) Comparator() Comparator[T] { return b.cmp }

// At returns the value at the given position in comparator order.
func (b *base[T]) At(i int) (T, bool) {
	n := at(b.root, i)
	if n == nil {
		var zero T
		return zero, false
	}
	return n.value, true
}

// Get returns the stored value comparing equal to v.
func (b *base[T]) Get(v T) (T, bool) {
	n := find(b.root, v, b.cmp)
	if n == nil {
		var zero T
		return zero, false
	}
	return n.value, true
}

// Has returns true if a value comparing equal to v is stored.
func (b *base[T]) Has(v T) bool {
	return find(b.root, v, b.cmp) != nil
}

// FindIndex returns the position of v in comparator order or -1 if v is not in the tree.
func (b *base[T]) FindIndex(v T) int {
	return rank(b.root, v, b.cmp)
}

// Min returns the smallest value.
func (b *base[T]) Min() (T, bool) { return b.At(0) }

// Max returns the largest value.
func (b *base[T]) Max() (T, bool) { return b.At(b.Size() - 1) }

// Depth returns the height of the tree.
func (b *base[T]) Depth() int { return depth(b.root) }

// Iterator returns an iterator over all values in ascending order.
func (b *base[T]) Iterator() *Iterator[T] {
	it := newIterator[T](false, b.version)
	it.pushLeft(b.root)
	return it
}

// ReverseIterator returns an iterator over all values in descending order.
func (b *base[T]) ReverseIterator() *Iterator[T] {
	it := newIterator[T](true, b.version)
	it.pushRight(b.root)
	return it
}

// IteratorAfter returns an ascending iterator starting strictly after cursor. The cursor does not
// need to be in the tree.
func (b *base[T]) IteratorAfter(cursor T) *Iterator[T] {
	it := newIterator[T](false, b.version)
	it.seekAfter(b.root, cursor, b.cmp)
	return it
}

// IteratorFrom returns an ascending iterator starting at the first value not smaller than cursor.
func (b *base[T]) IteratorFrom(cursor T) *Iterator[T] {
	it := newIterator[T](false, b.version)
	it.seekFrom(b.root, cursor, b.cmp)
	return it
}

// IteratorBefore returns a descending iterator starting strictly before cursor.
func (b *base[T]) IteratorBefore(cursor T) *Iterator[T] {
	it := newIterator[T](true, b.version)
	it.seekBefore(b.root, cursor, b.cmp)
	return it
}

// ForEach calls fn on every value in ascending order until fn returns false.
func (b *base[T]) ForEach(fn func(T) bool) {
	it := newIterator[T](false, nil)
	it.pushLeft(b.root)
	for it.Next() {
		if !fn(it.Value()) {
			return
		}
	}
}

// Values returns all values in ascending order.
func (b *base[T]) Values() []T {
	ret := make([]T, 0, b.Size())
	b.ForEach(func(v T) bool {
		ret = append(ret, v)
		return true
	})
	return ret
}

// Tree is a persistent order-statistics treap. Add and Delete never modify the receiver: they
// copy the nodes on the path to the change and return a new tree that shares every other node
// with the previous version. Old versions stay valid and unchanged forever, so iterators over a
// Tree never fail.
type Tree[T any] struct {
	base[T]
}

// New creates an empty persistent tree drawing priorities from DefaultRand.
func New[T any](cmp Comparator[T]) *Tree[T] {
	return NewWithRand(cmp, DefaultRand)
}

// NewWithRand creates an empty persistent tree with an explicit priority source.
func NewWithRand[T any](cmp Comparator[T], rnd Rand) *Tree[T] {
	if rnd == nil {
		rnd = DefaultRand
	}
	return &Tree[T]{base: base[T]{cmp: cmp, rnd: rnd}}
}

func (t *Tree[T]) withRoot(root *node[T]) *Tree[T] {
	return &Tree[T]{base: base[T]{root: root, cmp: t.cmp, rnd: t.rnd}}
}

// Add returns a new tree containing v. An existing value comparing equal to v is replaced.
func (t *Tree[T]) Add(v T) *Tree[T] {
	root, _ := insert(t.root, v, t.rnd.Uint64(), t.cmp, copyNode[T])
	return t.withRoot(root)
}

// Delete returns a new tree without v. The receiver is returned if v is not in the tree.
func (t *Tree[T]) Delete(v T) *Tree[T] {
	root, removed := remove(t.root, v, t.cmp, copyNode[T])
	if !removed {
		return t
	}
	return t.withRoot(root)
}

// Clear returns an empty tree with the same ordering.
func (t *Tree[T]) Clear() *Tree[T] {
	return t.withRoot(nil)
}

// MutableTree is the in-place variant of Tree for structures that never need old versions. Every
// structural change bumps a version counter that invalidates the outstanding iterators.
type MutableTree[T any] struct {
	base[T]
	counter uint64
}

// NewMutable creates an empty mutable tree drawing priorities from DefaultRand.
func NewMutable[T any](cmp Comparator[T]) *MutableTree[T] {
	return NewMutableWithRand(cmp, DefaultRand)
}

// NewMutableWithRand creates an empty mutable tree with an explicit priority source.
func NewMutableWithRand[T any](cmp Comparator[T], rnd Rand) *MutableTree[T] {
	if rnd == nil {
		rnd = DefaultRand
	}
	t := &MutableTree[T]{base: base[T]{cmp: cmp, rnd: rnd}}
	t.version = func() uint64 { return t.counter }
	return t
}

// Version returns the modification counter of the tree.
func (t *MutableTree[T]) Version() uint64 { return t.counter }

// Add inserts v, replacing an equal value. Returns true if the tree grew.
func (t *MutableTree[T]) Add(v T) bool {
	var added bool
	t.root, added = insert(t.root, v, t.rnd.Uint64(), t.cmp, sameNode[T])
	t.counter++
	return added
}

// Delete removes v. Returns true if v was in the tree.
func (t *MutableTree[T]) Delete(v T) bool {
	var removed bool
	t.root, removed = remove(t.root, v, t.cmp, sameNode[T])
	if removed {
		t.counter++
	}
	return removed
}

// Clear removes all values.
func (t *MutableTree[T]) Clear() {
	t.root = nil
	t.counter++
}
