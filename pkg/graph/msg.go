package graph

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Version is the logical timestamp of a committed transaction. Versions are strictly increasing.
type Version uint64

// Cause tells a receiver how to interpret a batch that answers a pull.
type Cause int

const (
	// CauseDifference marks ordinary deltas.
	CauseDifference Cause = iota
	// CauseFullRecompute marks a batch carrying the complete contents of the sender: the receiver
	// drops its state and rebuilds it from the batch.
	CauseFullRecompute
	// CausePartialRecompute marks a batch carrying a slice of the sender's contents restricted by
	// the hoisted expressions of the pull: the receiver merges it into its state.
	CausePartialRecompute
)

// String returns the name of the cause.
func (c Cause) String() string {
	switch c {
	case CauseDifference:
		return "difference"
	case CauseFullRecompute:
		return "full-recompute"
	case CausePartialRecompute:
		return "partial-recompute"
	default:
		panic(fmt.Sprintf("unknown cause %d", int(c)))
	}
}

// Expression is a restriction hoisted into a pull so that a source can skip sending what the
// puller does not need. The set of expressions is closed: AfterExpr and TakeExpr.
type Expression interface {
	fmt.Stringer
	isExpression()
}

// AfterExpr restricts a pull to the values strictly after Cursor in the order of Comparator. The
// comparator is a func(a, b T) int of the value type of the pulled stream.
type AfterExpr struct {
	Cursor     any
	Comparator any
}

func (AfterExpr) isExpression() {}

func (e AfterExpr) String() string { return fmt.Sprintf("after(%v)", e.Cursor) }

// TakeExpr restricts a pull to the first Limit distinct values in the order of Comparator.
type TakeExpr struct {
	Limit      int
	Comparator any
}

func (TakeExpr) isExpression() {}

func (e TakeExpr) String() string { return fmt.Sprintf("take(%d)", e.Limit) }

// Msg is a pull request travelling upstream. Replies travel downstream tagged with the Msg that
// produced them, so the ID identifies a pull across the entire graph.
type Msg struct {
	ID      uuid.UUID
	Cause   Cause
	Hoisted []Expression
}

// NewMsg creates a pull request with a fresh ID. A partial recompute without any hoisted
// expression is the same as a full one.
func NewMsg(cause Cause, hoisted ...Expression) Msg {
	return Msg{ID: uuid.New(), Cause: cause, Hoisted: hoisted}.normalize()
}

// Full returns the message upgraded to a full recompute, dropping the hoisted expressions.
func (m Msg) Full() Msg {
	return Msg{ID: m.ID, Cause: CauseFullRecompute}
}

// Retain returns the message keeping only the hoisted expressions for which keep returns true.
func (m Msg) Retain(keep func(Expression) bool) Msg {
	ret := Msg{ID: m.ID, Cause: m.Cause}
	for _, e := range m.Hoisted {
		if keep(e) {
			ret.Hoisted = append(ret.Hoisted, e)
		}
	}
	return ret.normalize()
}

// With returns the message with an extra hoisted expression, turning it into a partial
// recompute.
func (m Msg) With(e Expression) Msg {
	hoisted := make([]Expression, 0, len(m.Hoisted)+1)
	hoisted = append(hoisted, m.Hoisted...)
	return Msg{ID: m.ID, Cause: CausePartialRecompute, Hoisted: append(hoisted, e)}
}

func (m Msg) normalize() Msg {
	if m.Cause == CausePartialRecompute && len(m.Hoisted) == 0 {
		m.Cause = CauseFullRecompute
	}
	return m
}

// String returns a short description of the message for logging.
func (m Msg) String() string {
	if len(m.Hoisted) == 0 {
		return fmt.Sprintf("pull:%s:%s", m.ID.String()[:8], m.Cause)
	}
	es := make([]string, len(m.Hoisted))
	for i, e := range m.Hoisted {
		es[i] = e.String()
	}
	return fmt.Sprintf("pull:%s:%s[%s]", m.ID.String()[:8], m.Cause, strings.Join(es, ","))
}

// mergeCause returns the cause of a reply assembled from two replies.
func mergeCause(a, b Cause) Cause {
	switch {
	case a == CauseFullRecompute || b == CauseFullRecompute:
		return CauseFullRecompute
	case a == CausePartialRecompute || b == CausePartialRecompute:
		return CausePartialRecompute
	default:
		return CauseDifference
	}
}
