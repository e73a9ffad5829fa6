package materialite

import (
	"github.com/go-logr/logr"

	"github.com/l7mp/materialite/pkg/dbsp"
	"github.com/l7mp/materialite/pkg/graph"
)

// sourceBase implements the part of a source shared by all source kinds: the pending buffer of
// the open transaction, the pulls to answer, and the output stream.
type sourceBase[T comparable] struct {
	m        *Materialite
	self     source
	name     string
	writer   *graph.Writer[T]
	stream   *graph.Stream[T]
	pending  dbsp.Multiset[T]
	pulls    []graph.Msg
	detached bool
	log      logr.Logger
}

func (s *sourceBase[T]) setup(m *Materialite, self source, name string) {
	s.m = m
	s.self = self
	s.name = name
	s.log = m.log.WithName("source").WithValues("source", name)
	s.writer = graph.NewWriter[T](name, &sourceUpstream[T]{s: s}, m.log)
	s.stream = graph.NewStream(s.writer, m, m.log)
	m.register(self)
	s.log.V(1).Info("source created")
}

// Name returns the name of the source.
func (s *sourceBase[T]) Name() string { return s.name }

// Kind returns graph.KindSource.
func (s *sourceBase[T]) Kind() graph.NodeKind { return graph.KindSource }

// Downstream returns the nodes reading the source.
func (s *sourceBase[T]) Downstream() []graph.Node { return s.writer.Downstream() }

// Stream returns the output stream of the source.
func (s *sourceBase[T]) Stream() *graph.Stream[T] { return s.stream }

// Add adds a value. The change becomes visible when the enclosing transaction commits; outside a
// transaction Add runs in a transaction of its own.
func (s *sourceBase[T]) Add(v T) error {
	return s.enqueue(dbsp.Singleton(v, 1))
}

// Delete removes one occurrence of a value.
func (s *sourceBase[T]) Delete(v T) error {
	return s.enqueue(dbsp.Singleton(v, -1))
}

// AddAll adds a list of values in a single transaction.
func (s *sourceBase[T]) AddAll(vs []T) error {
	return s.enqueue(dbsp.FromValues(vs...))
}

// DeleteAll removes one occurrence of each value in a single transaction.
func (s *sourceBase[T]) DeleteAll(vs []T) error {
	return s.enqueue(dbsp.FromValues(vs...).Negate())
}

func (s *sourceBase[T]) enqueue(ms dbsp.Multiset[T]) error {
	if s.detached {
		return ErrDetached
	}
	return s.m.Tx(func() error {
		if s.detached {
			return ErrDetached
		}
		s.pending = append(s.pending, ms...)
		s.m.markDirty(s.self)
		return nil
	})
}

// Detach removes the source from its coordinator and tears down every pipeline built on it. The
// committed contents are kept: after Attach, new pipelines can pull them.
func (s *sourceBase[T]) Detach() {
	if s.detached {
		return
	}
	s.detached = true
	s.pending, s.pulls = nil, nil
	s.m.unregister(s.self)
	s.writer.Close()
	s.log.V(1).Info("source detached")
}

// Attach registers a detached source with its coordinator again.
func (s *sourceBase[T]) Attach() {
	if !s.detached {
		return
	}
	s.detached = false
	s.m.register(s.self)
	s.log.V(1).Info("source attached")
}

// Detached returns true if the source is detached.
func (s *sourceBase[T]) Detached() bool { return s.detached }

func (s *sourceBase[T]) rollback() {
	s.log.V(4).Info("rollback", "pending", len(s.pending), "pulls", len(s.pulls))
	s.pending, s.pulls = nil, nil
}

func (s *sourceBase[T]) notify(v graph.Version) {
	s.writer.Notify(v)
}

func (s *sourceBase[T]) pull(msg graph.Msg) {
	s.log.V(2).Info("pull", "msg", msg.String())
	s.pulls = append(s.pulls, msg)
	s.m.markDirty(s.self)
}

// sourceUpstream receives the calls of the source writer.
type sourceUpstream[T comparable] struct {
	s *sourceBase[T]
}

func (u *sourceUpstream[T]) Pull(msg graph.Msg) { u.s.pull(msg) }

func (u *sourceUpstream[T]) Destroy() {
	// the source outlives its pipelines
	u.s.log.V(1).Info("last reader removed")
}

// StatelessSource forwards the changes made to it without retaining them. Pulls are not
// answered: views built on a stateless source only see the changes committed after they were
// created.
type StatelessSource[T comparable] struct {
	sourceBase[T]
}

// NewStatelessSource creates a stateless source.
func NewStatelessSource[T comparable](m *Materialite, name string) *StatelessSource[T] {
	s := &StatelessSource[T]{}
	s.setup(m, s, name)
	return s
}

func (s *StatelessSource[T]) commit(v graph.Version) {
	s.writer.SendData(v, s.pending.Consolidate())
	if len(s.pulls) > 0 {
		s.log.V(2).Info("ignoring pulls: stateless source", "pulls", len(s.pulls))
	}
	s.pending, s.pulls = nil, nil
}
