package graph

import (
	"github.com/go-logr/logr"
)

// Stream is a handle on the output of a source or an operator. Operators are attached to a
// stream by the builder methods (for operators that keep the value type) and the package level
// functions (for operators that change it). Each builder call creates a new reader on the
// stream, so a stream can feed any number of operators.
type Stream[T comparable] struct {
	writer *Writer[T]
	coord  Coordinator
	log    logr.Logger
}

// NewStream wraps a writer into a stream. The coordinator runs the pulls issued by the views
// built on the stream.
func NewStream[T comparable](w *Writer[T], coord Coordinator, log logr.Logger) *Stream[T] {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Stream[T]{writer: w, coord: coord, log: log}
}

// Writer returns the writer of the stream.
func (s *Stream[T]) Writer() *Writer[T] { return s.writer }

// Coordinator returns the coordinator the stream belongs to.
func (s *Stream[T]) Coordinator() Coordinator { return s.coord }

// Logger returns the logger of the stream.
func (s *Stream[T]) Logger() logr.Logger { return s.log }

// Downstream returns the nodes reading the stream.
func (s *Stream[T]) Downstream() []Node { return s.writer.Downstream() }

func derive[T, U comparable](s *Stream[T], w *Writer[U]) *Stream[U] {
	return &Stream[U]{writer: w, coord: s.coord, log: s.log}
}

// attach creates a reader on the stream bound to op.
func attach[T comparable](s *Stream[T], op Operator) *Reader[T] {
	r := s.writer.NewReader()
	if err := r.SetOperator(op); err != nil {
		// a fresh reader is never bound
		panic(err)
	}
	return r
}
