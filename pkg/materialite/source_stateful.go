package materialite

import (
	"reflect"

	"github.com/l7mp/materialite/pkg/dbsp"
	"github.com/l7mp/materialite/pkg/graph"
	"github.com/l7mp/materialite/pkg/tree"
)

// TreeSource retains its committed contents in a persistent tree sorted by a comparator, together
// with the multiplicity of each value. Pulls are answered with the contents; pulls restricted by
// After and Take expressions over the same comparator get only the requested slice.
//
// Deleting a value that is not in the source is a no-op.
type TreeSource[T comparable] struct {
	sourceBase[T]
	cmp      func(a, b T) int
	contents *tree.Tree[dbsp.Entry[T]]
}

// NewTreeSource creates a source sorted by cmp. The comparator must be consistent with ==.
func NewTreeSource[T comparable](m *Materialite, name string, cmp func(a, b T) int) *TreeSource[T] {
	s := &TreeSource[T]{
		cmp: cmp,
		contents: tree.NewWithRand[dbsp.Entry[T]](func(a, b dbsp.Entry[T]) int {
			return cmp(a.Value, b.Value)
		}, m.rnd),
	}
	s.setup(m, s, name)
	return s
}

// Comparator returns the order of the source.
func (s *TreeSource[T]) Comparator() func(a, b T) int { return s.cmp }

// Snapshot returns the committed contents. The tree is persistent: it is not affected by later
// commits.
func (s *TreeSource[T]) Snapshot() *tree.Tree[dbsp.Entry[T]] { return s.contents }

// Contents returns the committed contents as a Z-set sorted by the comparator.
func (s *TreeSource[T]) Contents() dbsp.Multiset[T] {
	return dbsp.Multiset[T](s.contents.Values())
}

// Multiplicity returns the committed multiplicity of a value.
func (s *TreeSource[T]) Multiplicity(v T) int {
	e, _ := s.contents.Get(dbsp.Entry[T]{Value: v})
	return e.Multiplicity
}

func (s *TreeSource[T]) commit(v graph.Version) {
	delta := dbsp.Multiset[T]{}
	for _, e := range s.pending.Consolidate() {
		key := dbsp.Entry[T]{Value: e.Value}
		cur, _ := s.contents.Get(key)
		next := max(cur.Multiplicity+e.Multiplicity, 0)
		if next == cur.Multiplicity {
			continue
		}
		if next == 0 {
			s.contents = s.contents.Delete(key)
		} else {
			s.contents = s.contents.Add(dbsp.Entry[T]{Value: e.Value, Multiplicity: next})
		}
		delta = append(delta, dbsp.Entry[T]{Value: e.Value, Multiplicity: next - cur.Multiplicity})
	}
	s.log.V(4).Info("commit", "version", v, "pending", len(s.pending), "delta", len(delta))
	s.writer.SendData(v, delta)

	for _, msg := range s.pulls {
		data, reply := s.answer(msg)
		s.writer.SendReply(v, data, reply)
	}
	s.pending, s.pulls = nil, nil
}

// answer computes the reply to a pull. Hoisted expressions are honored only if they are all
// expressed over the comparator of the source, otherwise the full contents are sent.
func (s *TreeSource[T]) answer(msg graph.Msg) (dbsp.Multiset[T], graph.Msg) {
	if msg.Cause != graph.CausePartialRecompute {
		return s.Contents(), msg.Full()
	}

	var (
		cursor   T
		hasAfter bool
		limit    = -1
	)
	for _, e := range msg.Hoisted {
		switch x := e.(type) {
		case graph.AfterExpr:
			c, ok := x.Cursor.(T)
			if !ok || !s.sameOrder(x.Comparator) {
				return s.Contents(), msg.Full()
			}
			if !hasAfter || s.cmp(c, cursor) > 0 {
				cursor, hasAfter = c, true
			}
		case graph.TakeExpr:
			if !s.sameOrder(x.Comparator) {
				return s.Contents(), msg.Full()
			}
			if limit < 0 || x.Limit < limit {
				limit = x.Limit
			}
		}
	}

	it := s.contents.Iterator()
	if hasAfter {
		it = s.contents.IteratorAfter(dbsp.Entry[T]{Value: cursor})
	}
	// persistent tree iterators never fail
	es, _ := it.Take(limit)
	s.log.V(4).Info("partial reply", "msg", msg.String(), "entries", len(es))
	return dbsp.Multiset[T](es), msg
}

func (s *TreeSource[T]) sameOrder(cmp any) bool {
	c := reflect.ValueOf(cmp)
	return c.Kind() == reflect.Func && !c.IsNil() && c.Pointer() == reflect.ValueOf(s.cmp).Pointer()
}

// MapSource retains its committed contents as a count per value. It answers every pull with its
// full contents, in the order the values were last added.
//
// Deleting a value that is not in the source is a no-op.
type MapSource[T comparable] struct {
	sourceBase[T]
	counts map[T]int
	order  []T
	// pos is the index of the latest occurrence of a live value in order
	pos map[T]int
}

// NewMapSource creates a map backed source.
func NewMapSource[T comparable](m *Materialite, name string) *MapSource[T] {
	s := &MapSource[T]{counts: make(map[T]int), pos: make(map[T]int)}
	s.setup(m, s, name)
	return s
}

// Contents returns the committed contents.
func (s *MapSource[T]) Contents() dbsp.Multiset[T] {
	ret := make(dbsp.Multiset[T], 0, len(s.counts))
	for i, v := range s.order {
		if p, ok := s.pos[v]; ok && p == i {
			ret = append(ret, dbsp.Entry[T]{Value: v, Multiplicity: s.counts[v]})
		}
	}
	return ret
}

// Multiplicity returns the committed multiplicity of a value.
func (s *MapSource[T]) Multiplicity(v T) int { return s.counts[v] }

// Len returns the number of distinct values.
func (s *MapSource[T]) Len() int { return len(s.counts) }

func (s *MapSource[T]) commit(v graph.Version) {
	delta := dbsp.Multiset[T]{}
	for _, e := range s.pending.Consolidate() {
		cur, ok := s.counts[e.Value]
		next := max(cur+e.Multiplicity, 0)
		if next == cur {
			continue
		}
		if next == 0 {
			delete(s.counts, e.Value)
			delete(s.pos, e.Value)
		} else {
			if !ok {
				s.pos[e.Value] = len(s.order)
				s.order = append(s.order, e.Value)
			}
			s.counts[e.Value] = next
		}
		delta = append(delta, dbsp.Entry[T]{Value: e.Value, Multiplicity: next - cur})
	}
	s.compactOrder()
	s.writer.SendData(v, delta)

	for _, msg := range s.pulls {
		s.writer.SendReply(v, s.Contents(), msg.Full())
	}
	s.pending, s.pulls = nil, nil
}

// compactOrder drops the deleted values from the order list once they dominate it.
func (s *MapSource[T]) compactOrder() {
	if len(s.order) <= 2*len(s.counts)+16 {
		return
	}
	order := make([]T, 0, len(s.counts))
	for i, v := range s.order {
		if p, ok := s.pos[v]; ok && p == i {
			s.pos[v] = len(order)
			order = append(order, v)
		}
	}
	s.order = order
}
