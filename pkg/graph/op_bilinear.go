package graph

import (
	"fmt"

	"github.com/l7mp/materialite/pkg/dbsp"
)

// JoinResult is the default output of a join: the pair of matching values.
type JoinResult[A, B comparable] struct {
	Left  A
	Right B
}

// String returns a string representation of the pair.
func (r JoinResult[A, B]) String() string { return fmt.Sprintf("(%v, %v)", r.Left, r.Right) }

// joinOp implements the incremental binary equi-join. It keeps an index of everything seen on
// each input, so that the join of the deltas of version v is
//
//	ΔA ⋈ B  +  (A + ΔA) ⋈ ΔB
//
// where A and B are the indexes before v.
type joinOp[K, A, B, C comparable] struct {
	baseOp
	left    *Reader[A]
	right   *Reader[B]
	out     *Writer[C]
	keyA    func(A) K
	keyB    func(B) K
	combine func(K, A, B) C
	indexA  *dbsp.Index[K, A]
	indexB  *dbsp.Index[K, B]
	state   pullState
}

// Join joins two streams on equal keys and emits the matching pairs.
func Join[K, A, B comparable](a *Stream[A], b *Stream[B], keyA func(A) K, keyB func(B) K) *Stream[JoinResult[A, B]] {
	return JoinWith(a, b, keyA, keyB, func(x A, y B) JoinResult[A, B] { return JoinResult[A, B]{Left: x, Right: y} })
}

// JoinWith joins two streams on equal keys and emits combine(a, b) for every matching pair.
// Chained joins stay flat when combine builds the flat row directly.
func JoinWith[K, A, B, C comparable](a *Stream[A], b *Stream[B], keyA func(A) K, keyB func(B) K, combine func(A, B) C) *Stream[C] {
	op := &joinOp[K, A, B, C]{
		baseOp:  newBaseOp("⋈", a.log),
		keyA:    keyA,
		keyB:    keyB,
		combine: func(_ K, x A, y B) C { return combine(x, y) },
		indexA:  dbsp.NewIndex[K, A](),
		indexB:  dbsp.NewIndex[K, B](),
	}
	op.out = NewWriter[C]("⋈", op, a.log)
	op.left = attach(a, op)
	op.right = attach(b, op)
	op.inputs = []input{op.left, op.right}
	op.baseOp.out = op.out
	return derive(a, op.out)
}

// Run joins the deltas of version v once both inputs have been notified.
func (op *joinOp[K, A, B, C]) Run(v Version) {
	if !op.ready(v) {
		return
	}

	ca, cb := Collect(op.left.Drain(v)), Collect(op.right.Drain(v))

	deltaA := dbsp.IndexBy(ca.Delta, op.keyA)
	deltaB := dbsp.IndexBy(cb.Delta, op.keyB)

	out := dbsp.JoinIndex(deltaA, op.indexB, op.combine)
	op.indexA.Extend(deltaA)
	op.indexA.Compact(deltaA.Keys()...)
	out = append(out, dbsp.JoinIndex(op.indexA, deltaB, op.combine)...)
	op.indexB.Extend(deltaB)
	op.indexB.Compact(deltaB.Keys()...)

	op.out.SendData(v, out.Consolidate())

	// an input without state sends no reply, its index stays what the deltas built
	if op.state.resetting() {
		op.log.V(2).Info("rebuilding state from replies", "version", v,
			"left", ca.Reply != nil, "right", cb.Reply != nil)
		if ca.Reply != nil {
			op.indexA = dbsp.IndexBy(ca.ReplyData, op.keyA)
			op.indexA.CompactAll()
		}
		if cb.Reply != nil {
			op.indexB = dbsp.IndexBy(cb.ReplyData, op.keyB)
			op.indexB.CompactAll()
		}
	}

	if replies := op.state.flush(); len(replies) > 0 {
		full := dbsp.JoinIndex(op.indexA, op.indexB, op.combine).Consolidate()
		for _, m := range replies {
			op.out.SendReply(v, full, m)
		}
	}

	op.out.Notify(v)
}

// Pull answers from the join state, or asks both inputs for their full contents if the join has
// not seen them yet.
func (op *joinOp[K, A, B, C]) Pull(msg Msg) {
	if op.destroyed {
		return
	}
	if fwd, ok := op.state.pull(msg); ok {
		op.pullInputs(fwd)
	}
}
