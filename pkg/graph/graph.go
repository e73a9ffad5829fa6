package graph

import "errors"

// ErrDuplicateOperatorBinding is returned when a second operator is bound to a reader.
var ErrDuplicateOperatorBinding = errors.New("reader is already bound to an operator")

// NodeKind classifies the vertices of the dataflow graph.
type NodeKind int

const (
	KindSource NodeKind = iota
	KindOperator
	KindView
)

// String returns the name of the kind.
func (k NodeKind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindOperator:
		return "operator"
	case KindView:
		return "view"
	default:
		return "unknown"
	}
}

// Node is a vertex of the dataflow graph: a source, an operator or a view.
type Node interface {
	// Name returns a human readable name of the node.
	Name() string
	// Kind returns the role of the node in the graph.
	Kind() NodeKind
	// Downstream returns the nodes reading the output of this node.
	Downstream() []Node
}

// Upstream is what a writer calls back into: the producer of the data flowing through it.
type Upstream interface {
	// Pull asks the producer to answer msg in the next transaction.
	Pull(msg Msg)
	// Destroy is called when the last reader of the writer is gone.
	Destroy()
}

// Operator is a node with input readers and an output writer. Run is called by the input readers
// each time a version is notified on them. Operators are destroyed when the last reader of their
// output goes away, which in turn destroys their own input readers.
type Operator interface {
	Node
	Upstream
	Run(v Version)
}

// Coordinator runs transactions. Tx runs body in the current transaction or in a new one, and
// PullTx runs body in a transaction of its own, deferring it if another transaction is in
// progress.
type Coordinator interface {
	Tx(body func() error) error
	PullTx(body func() error) error
}
