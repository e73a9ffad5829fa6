package graph

import (
	"github.com/l7mp/materialite/pkg/dbsp"
)

// concatOp is the n-ary Z-set sum of its inputs.
type concatOp[T comparable] struct {
	baseOp
	ins []*Reader[T]
	out *Writer[T]
}

// Concat merges the stream with others. Pulls are forwarded to every input and the replies are
// summed into a single reply.
func (s *Stream[T]) Concat(others ...*Stream[T]) *Stream[T] {
	op := &concatOp[T]{baseOp: newBaseOp("+", s.log)}
	op.out = NewWriter[T]("+", op, s.log)
	for _, in := range append([]*Stream[T]{s}, others...) {
		r := attach(in, op)
		op.ins = append(op.ins, r)
		op.inputs = append(op.inputs, r)
	}
	op.baseOp.out = op.out
	return derive(s, op.out)
}

// Run sums the inputs for version v.
func (op *concatOp[T]) Run(v Version) {
	if !op.ready(v) {
		return
	}

	delta := dbsp.Multiset[T]{}
	var (
		reply     *Msg
		replyData = dbsp.Multiset[T]{}
	)
	for _, in := range op.ins {
		c := Collect(in.Drain(v))
		delta = append(delta, c.Delta...)
		if c.Reply == nil {
			continue
		}
		if reply == nil {
			reply = c.Reply
		} else {
			reply.Cause = mergeCause(reply.Cause, c.Reply.Cause)
		}
		replyData = append(replyData, c.ReplyData...)
	}

	op.out.SendData(v, delta)
	if reply != nil {
		op.out.SendReply(v, replyData, *reply)
	}
	op.out.Notify(v)
}

// Pull forwards the pull to all inputs.
func (op *concatOp[T]) Pull(msg Msg) {
	if op.destroyed {
		return
	}
	op.pullInputs(msg)
}
