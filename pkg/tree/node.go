package tree

// node is a treap node. Nodes reachable from a persistent Tree are never modified; the mutable
// variant modifies its own nodes in place.
type node[T any] struct {
	value       T
	priority    uint64
	left, right *node[T]
	size        int
}

func sizeOf[T any](n *node[T]) int {
	if n == nil {
		return 0
	}
	return n.size
}

func (n *node[T]) update() {
	n.size = 1 + sizeOf(n.left) + sizeOf(n.right)
}

// cloner returns the node that may be modified. The persistent tree returns a fresh copy, the
// mutable tree returns the node itself.
type cloner[T any] func(*node[T]) *node[T]

func copyNode[T any](n *node[T]) *node[T] {
	c := *n
	return &c
}

func sameNode[T any](n *node[T]) *node[T] { return n }

// rotateRight lifts the left child. Both n and n.left must be writable.
func rotateRight[T any](n *node[T]) *node[T] {
	l := n.left
	n.left = l.right
	n.update()
	l.right = n
	l.update()
	return l
}

// rotateLeft lifts the right child. Both n and n.right must be writable.
func rotateLeft[T any](n *node[T]) *node[T] {
	r := n.right
	n.right = r.left
	n.update()
	r.left = n
	r.update()
	return r
}

// insert adds v below n, replacing an equal value. Returns the new subtree root and whether a new
// node was created.
func insert[T any](n *node[T], v T, priority uint64, cmp Comparator[T], clone cloner[T]) (*node[T], bool) {
	if n == nil {
		return &node[T]{value: v, priority: priority, size: 1}, true
	}

	c := cmp(v, n.value)
	if c == 0 {
		w := clone(n)
		w.value = v
		return w, false
	}

	w := clone(n)
	var added bool
	if c < 0 {
		w.left, added = insert(n.left, v, priority, cmp, clone)
		if w.left.priority > w.priority {
			w = rotateRight(w)
		} else {
			w.update()
		}
	} else {
		w.right, added = insert(n.right, v, priority, cmp, clone)
		if w.right.priority > w.priority {
			w = rotateLeft(w)
		} else {
			w.update()
		}
	}
	return w, added
}

// remove deletes v from below n. Returns the new subtree root and whether a node was removed.
func remove[T any](n *node[T], v T, cmp Comparator[T], clone cloner[T]) (*node[T], bool) {
	if n == nil {
		return nil, false
	}

	c := cmp(v, n.value)
	if c == 0 {
		return merge(n.left, n.right, clone), true
	}

	var (
		child   *node[T]
		removed bool
	)
	if c < 0 {
		child, removed = remove(n.left, v, cmp, clone)
	} else {
		child, removed = remove(n.right, v, cmp, clone)
	}
	if !removed {
		return n, false
	}

	w := clone(n)
	if c < 0 {
		w.left = child
	} else {
		w.right = child
	}
	w.update()
	return w, true
}

// merge joins two treaps where every value in a precedes every value in b.
func merge[T any](a, b *node[T], clone cloner[T]) *node[T] {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.priority > b.priority:
		w := clone(a)
		w.right = merge(a.right, b, clone)
		w.update()
		return w
	default:
		w := clone(b)
		w.left = merge(a, b.left, clone)
		w.update()
		return w
	}
}

func find[T any](n *node[T], v T, cmp Comparator[T]) *node[T] {
	for n != nil {
		c := cmp(v, n.value)
		switch {
		case c == 0:
			return n
		case c < 0:
			n = n.left
		default:
			n = n.right
		}
	}
	return nil
}

func at[T any](n *node[T], i int) *node[T] {
	if i < 0 || i >= sizeOf(n) {
		return nil
	}
	for n != nil {
		ls := sizeOf(n.left)
		switch {
		case i < ls:
			n = n.left
		case i == ls:
			return n
		default:
			i -= ls + 1
			n = n.right
		}
	}
	return nil
}

// rank returns the index of v, or -1 if v is not in the tree.
func rank[T any](n *node[T], v T, cmp Comparator[T]) int {
	idx := 0
	for n != nil {
		c := cmp(v, n.value)
		switch {
		case c == 0:
			return idx + sizeOf(n.left)
		case c < 0:
			n = n.left
		default:
			idx += sizeOf(n.left) + 1
			n = n.right
		}
	}
	return -1
}

type depthFrame[T any] struct {
	n *node[T]
	d int
}

func depth[T any](n *node[T]) int {
	if n == nil {
		return 0
	}
	// explicit stack: degenerate trees must not blow the call stack
	deepest := 0
	stack := []depthFrame[T]{{n, 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.d > deepest {
			deepest = f.d
		}
		if f.n.left != nil {
			stack = append(stack, depthFrame[T]{f.n.left, f.d + 1})
		}
		if f.n.right != nil {
			stack = append(stack, depthFrame[T]{f.n.right, f.d + 1})
		}
	}
	return deepest
}
