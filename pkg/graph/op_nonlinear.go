package graph

import (
	"fmt"
	"slices"

	"github.com/l7mp/materialite/pkg/dbsp"
	"github.com/l7mp/materialite/pkg/tree"
)

// reduceOp is the incremental group-by. It indexes its input by key and remembers the last output
// emitted per key, so each version only recomputes the keys touched by the delta and emits the
// difference against the previous output.
type reduceOp[K, V, R comparable] struct {
	baseOp
	in       *Reader[V]
	out      *Writer[R]
	key      func(V) K
	fn       func(K, dbsp.Multiset[V]) dbsp.Multiset[R]
	inIndex  *dbsp.Index[K, V]
	outIndex *dbsp.Index[K, R]
	state    pullState
}

func newReduce[K, V, R comparable](s *Stream[V], name string, fn func(K, dbsp.Multiset[V]) dbsp.Multiset[R], key func(V) K) *Stream[R] {
	op := &reduceOp[K, V, R]{
		baseOp:   newBaseOp(name, s.log),
		key:      key,
		fn:       fn,
		inIndex:  dbsp.NewIndex[K, V](),
		outIndex: dbsp.NewIndex[K, R](),
	}
	op.out = NewWriter[R](name, op, s.log)
	op.in = attach(s, op)
	op.inputs = []input{op.in}
	op.baseOp.out = op.out
	return derive(s, op.out)
}

// Reduce groups the stream by key and maps the consolidated entries of every group with fn. Keys
// without entries produce no output.
func Reduce[K, V, R comparable](s *Stream[V], fn func(K, dbsp.Multiset[V]) dbsp.Multiset[R], key func(V) K) *Stream[R] {
	return newReduce(s, "gather^Δ", fn, key)
}

// KeyCount is the output of Count.
type KeyCount[K comparable] struct {
	Key   K
	Count int
}

// String returns a string representation of the count.
func (c KeyCount[K]) String() string { return fmt.Sprintf("%v:%d", c.Key, c.Count) }

// Count emits the total multiplicity of every key.
func Count[K, V comparable](s *Stream[V], key func(V) K) *Stream[KeyCount[K]] {
	return newReduce(s, "count", func(k K, es dbsp.Multiset[V]) dbsp.Multiset[KeyCount[K]] {
		total := 0
		for _, e := range es {
			total += e.Multiplicity
		}
		if total == 0 {
			return nil
		}
		return dbsp.Singleton(KeyCount[K]{Key: k, Count: total}, 1)
	}, key)
}

// Distinct emits every value with a positive multiplicity exactly once.
func (s *Stream[T]) Distinct() *Stream[T] {
	return newReduce(s, "distinct", func(v T, es dbsp.Multiset[T]) dbsp.Multiset[T] {
		if es.Multiplicity(v) <= 0 {
			return nil
		}
		return dbsp.Singleton(v, 1)
	}, func(v T) T { return v })
}

// Run applies the delta of version v.
func (op *reduceOp[K, V, R]) Run(v Version) {
	if !op.ready(v) {
		return
	}

	c := Collect(op.in.Drain(v))

	affected := []K{}
	seen := map[K]bool{}
	for _, e := range c.Delta {
		k := op.key(e.Value)
		if !seen[k] {
			seen[k] = true
			affected = append(affected, k)
		}
		op.inIndex.Add(k, e)
	}
	op.inIndex.Compact(affected...)

	out := dbsp.Multiset[R]{}
	for _, k := range affected {
		next := op.apply(k)
		out = append(out, next.Difference(op.outIndex.Get(k))...)
		op.outIndex.Set(k, next)
	}
	op.out.SendData(v, out.Consolidate())

	if op.state.resetting() && c.Reply != nil {
		op.log.V(2).Info("rebuilding state from reply", "version", v, "entries", len(c.ReplyData))
		op.inIndex = dbsp.IndexBy(c.ReplyData, op.key)
		op.inIndex.CompactAll()
		op.outIndex.Clear()
		for _, k := range op.inIndex.Keys() {
			op.outIndex.Set(k, op.apply(k))
		}
	}

	if replies := op.state.flush(); len(replies) > 0 {
		full := op.outIndex.All()
		for _, m := range replies {
			op.out.SendReply(v, full, m)
		}
	}

	op.out.Notify(v)
}

func (op *reduceOp[K, V, R]) apply(k K) dbsp.Multiset[R] {
	es := op.inIndex.Get(k)
	if len(es) == 0 {
		return nil
	}
	return op.fn(k, slices.Clone(es)).Consolidate()
}

// Pull answers from the reduce state or rebuilds it from upstream.
func (op *reduceOp[K, V, R]) Pull(msg Msg) {
	if op.destroyed {
		return
	}
	if fwd, ok := op.state.pull(msg); ok {
		op.pullInputs(fwd)
	}
}

// takeOp keeps a window of the first limit distinct values of its input in comparator order. The
// whole input is retained, so that values entering the window after a deletion are known.
type takeOp[T comparable] struct {
	baseOp
	in      *Reader[T]
	out     *Writer[T]
	limit   int
	entries *tree.MutableTree[dbsp.Entry[T]]
	state   pullState
}

// Take limits the stream to the first limit distinct values in the order of cmp.
func (s *Stream[T]) Take(limit int, cmp func(a, b T) int) *Stream[T] {
	op := &takeOp[T]{
		baseOp: newBaseOp(fmt.Sprintf("take(%d)", limit), s.log),
		limit:  limit,
		entries: tree.NewMutable[dbsp.Entry[T]](func(a, b dbsp.Entry[T]) int {
			return cmp(a.Value, b.Value)
		}),
	}
	op.out = NewWriter[T](op.name, op, s.log)
	op.in = attach(s, op)
	op.inputs = []input{op.in}
	op.baseOp.out = op.out
	return derive(s, op.out)
}

func (op *takeOp[T]) window() dbsp.Multiset[T] {
	ret := dbsp.Multiset[T]{}
	if op.limit <= 0 {
		return ret
	}
	op.entries.ForEach(func(e dbsp.Entry[T]) bool {
		if e.Multiplicity > 0 {
			ret = append(ret, e)
		}
		return len(ret) < op.limit
	})
	return ret
}

func (op *takeOp[T]) apply(ms dbsp.Multiset[T]) {
	for _, e := range ms.Consolidate() {
		n := e.Multiplicity
		if cur, ok := op.entries.Get(dbsp.Entry[T]{Value: e.Value}); ok {
			n += cur.Multiplicity
		}
		if n == 0 {
			op.entries.Delete(e)
			continue
		}
		op.entries.Add(dbsp.Entry[T]{Value: e.Value, Multiplicity: n})
	}
}

// Run applies the delta of version v and emits the change of the window.
func (op *takeOp[T]) Run(v Version) {
	if !op.ready(v) {
		return
	}

	c := Collect(op.in.Drain(v))
	before := op.window()
	op.apply(c.Delta)
	op.out.SendData(v, op.window().Difference(before).Consolidate())

	if op.state.resetting() && c.Reply != nil {
		op.entries.Clear()
		op.apply(c.ReplyData)
	}

	if replies := op.state.flush(); len(replies) > 0 {
		full := op.window()
		for _, m := range replies {
			op.out.SendReply(v, full, m)
		}
	}

	op.out.Notify(v)
}

// Pull answers from the window or rebuilds it from upstream.
func (op *takeOp[T]) Pull(msg Msg) {
	if op.destroyed {
		return
	}
	if fwd, ok := op.state.pull(msg); ok {
		op.pullInputs(fwd)
	}
}
