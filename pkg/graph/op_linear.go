package graph

import (
	"github.com/sanity-io/litter"

	"github.com/l7mp/materialite/pkg/dbsp"
)

// linearOp is a stateless single-input operator: it applies fn to every batch, replies
// included, and forwards pulls after rewriting them with rewrite.
type linearOp[T, U comparable] struct {
	baseOp
	in      *Reader[T]
	out     *Writer[U]
	fn      func(dbsp.Multiset[T]) dbsp.Multiset[U]
	rewrite func(Msg) Msg
	// observe, if set, is called on every batch before fn
	observe func(v Version, data dbsp.Multiset[T], reply *Msg)
}

func newLinear[T, U comparable](s *Stream[T], name string, fn func(dbsp.Multiset[T]) dbsp.Multiset[U], rewrite func(Msg) Msg) *linearOp[T, U] {
	op := &linearOp[T, U]{baseOp: newBaseOp(name, s.log), fn: fn, rewrite: rewrite}
	op.out = NewWriter[U](name, op, s.log)
	op.in = attach(s, op)
	op.inputs = []input{op.in}
	op.baseOp.out = op.out
	return op
}

func (op *linearOp[T, U]) stream(s *Stream[T]) *Stream[U] { return derive(s, op.out) }

// Run processes the input batches for version v.
func (op *linearOp[T, U]) Run(v Version) {
	if !op.ready(v) {
		return
	}
	for _, b := range op.in.Drain(v) {
		if op.observe != nil {
			op.observe(v, b.Data, b.Reply)
		}
		data := op.fn(b.Data)
		if b.Reply != nil {
			op.out.SendReply(v, data, *b.Reply)
		} else {
			op.out.SendData(v, data)
		}
	}
	op.out.Notify(v)
}

// Pull forwards a pull request upstream.
func (op *linearOp[T, U]) Pull(msg Msg) {
	if op.destroyed {
		return
	}
	if op.rewrite != nil {
		msg = op.rewrite(msg)
	}
	op.in.Pull(msg)
}

// Map applies f to every value. Since f may not preserve the order of the values, pulls through a
// map are upgraded to full recomputes.
func Map[T, U comparable](s *Stream[T], f func(T) U) *Stream[U] {
	op := newLinear(s, "π", func(ms dbsp.Multiset[T]) dbsp.Multiset[U] { return dbsp.Map(ms, f) }, Msg.Full)
	return op.stream(s)
}

// FlatMap maps every value to zero or more values, each keeping the multiplicity of the input.
func FlatMap[T, U comparable](s *Stream[T], f func(T) []U) *Stream[U] {
	op := newLinear(s, "unwind", func(ms dbsp.Multiset[T]) dbsp.Multiset[U] { return dbsp.FlatMap(ms, f) }, Msg.Full)
	return op.stream(s)
}

// Filter keeps the values satisfying p. Hoisted After restrictions survive a filter, Take
// restrictions do not.
func (s *Stream[T]) Filter(p func(T) bool) *Stream[T] {
	op := newLinear(s, "σ", func(ms dbsp.Multiset[T]) dbsp.Multiset[T] { return ms.Filter(p) },
		func(m Msg) Msg {
			return m.Retain(func(e Expression) bool { _, ok := e.(AfterExpr); return ok })
		})
	return op.stream(s)
}

// Negate flips the sign of every multiplicity.
func (s *Stream[T]) Negate() *Stream[T] {
	op := newLinear(s, "neg", dbsp.Multiset[T].Negate, nil)
	return op.stream(s)
}

// After keeps the values strictly greater than cursor.
func (s *Stream[T]) After(cursor T, cmp func(a, b T) int) *Stream[T] {
	op := newLinear(s, "after", func(ms dbsp.Multiset[T]) dbsp.Multiset[T] {
		return ms.Filter(func(v T) bool { return cmp(v, cursor) > 0 })
	}, func(m Msg) Msg {
		return m.With(AfterExpr{Cursor: cursor, Comparator: cmp})
	})
	return op.stream(s)
}

// Effect calls fn on every value of every committed delta, with the multiplicity consolidated
// per value. Replies to pulls do not trigger fn. The stream passes through unchanged.
func (s *Stream[T]) Effect(fn func(v T, mult int)) *Stream[T] {
	op := newLinear(s, "effect", func(ms dbsp.Multiset[T]) dbsp.Multiset[T] { return ms }, nil)
	op.observe = func(_ Version, data dbsp.Multiset[T], reply *Msg) {
		if reply != nil {
			return
		}
		for _, e := range data.Consolidate() {
			fn(e.Value, e.Multiplicity)
		}
	}
	return op.stream(s)
}

// Debug logs every batch flowing through the stream.
func (s *Stream[T]) Debug(label string) *Stream[T] {
	op := newLinear(s, "debug", func(ms dbsp.Multiset[T]) dbsp.Multiset[T] { return ms }, nil)
	log := op.log.WithValues("label", label)
	op.observe = func(v Version, data dbsp.Multiset[T], reply *Msg) {
		if reply != nil {
			log.Info("reply", "version", v, "msg", reply.String(), "data", litter.Sdump(data))
			return
		}
		log.Info("delta", "version", v, "data", litter.Sdump(data))
	}
	return op.stream(s)
}
