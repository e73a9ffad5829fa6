// Package view implements the terminal sinks of a dataflow graph: materialized views that apply
// the deltas of their input stream and notify listeners about the changes.
package view

import (
	"maps"
	"slices"

	"github.com/go-logr/logr"

	"github.com/l7mp/materialite/pkg/graph"
)

// Options can be used to customize a view.
type Options struct {
	// Name identifies the view in logs and graph renderings.
	Name string
	// WantInitialData makes the view pull the current contents of its upstream sources when it
	// is created. Otherwise the view only sees the changes committed after its creation.
	WantInitialData bool
	// Limit, if positive, keeps only the first Limit distinct values in the order of the view.
	// Only sorted views honor it.
	Limit int
}

// Handle identifies a registered listener.
type Handle uint64

// registry holds the listeners of a view. Listeners run in registration order.
type registry[D any] struct {
	handlers map[Handle]func(D)
	counter  Handle
}

func newRegistry[D any]() registry[D] {
	return registry[D]{handlers: make(map[Handle]func(D))}
}

func (r *registry[D]) on(fn func(D)) Handle {
	r.counter++
	r.handlers[r.counter] = fn
	return r.counter
}

func (r *registry[D]) off(h Handle) bool {
	if _, ok := r.handlers[h]; !ok {
		return false
	}
	delete(r.handlers, h)
	return true
}

func (r *registry[D]) fire(d D) {
	for _, h := range slices.Sorted(maps.Keys(r.handlers)) {
		// a listener may remove another one
		if fn, ok := r.handlers[h]; ok {
			fn(d)
		}
	}
}

func (r *registry[D]) len() int { return len(r.handlers) }

// sink is the node a view binds to its reader.
type sink struct {
	name    string
	run     func(graph.Version)
	destroy func()
}

func (s *sink) Name() string             { return s.name }
func (s *sink) Kind() graph.NodeKind     { return graph.KindView }
func (s *sink) Downstream() []graph.Node { return nil }
func (s *sink) Run(v graph.Version)      { s.run(v) }
func (s *sink) Pull(graph.Msg)           {}
func (s *sink) Destroy()                 { s.destroy() }

// base holds what all views share: the reader on the input stream and the version bookkeeping.
type base[T comparable] struct {
	name      string
	stream    *graph.Stream[T]
	reader    *graph.Reader[T]
	node      *sink
	lastRun   graph.Version
	destroyed bool
	log       logr.Logger
}

func (b *base[T]) setup(s *graph.Stream[T], kind string, opts Options, run func(graph.Version)) {
	b.name = opts.Name
	if b.name == "" {
		b.name = kind
	}
	b.stream = s
	b.log = s.Logger().WithName("view").WithValues("view", b.name)
	b.node = &sink{name: b.name, run: run, destroy: b.Destroy}
	b.reader = s.Writer().NewReader()
	if err := b.reader.SetOperator(b.node); err != nil {
		// a fresh reader is never bound
		panic(err)
	}
	b.log.V(1).Info("view materialized", "initial-data", opts.WantInitialData, "limit", opts.Limit)
}

// Name returns the name of the view.
func (b *base[T]) Name() string { return b.name }

// Node returns the graph node of the view.
func (b *base[T]) Node() graph.Node { return b.node }

// Destroyed returns true if the view was destroyed.
func (b *base[T]) Destroyed() bool { return b.destroyed }

// Destroy removes the view from the graph. The operators feeding only this view are destroyed
// too. The data of a destroyed view stays readable but is no longer updated.
func (b *base[T]) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.reader.Destroy()
	b.log.V(1).Info("view destroyed")
}

// begin returns the batches to apply in version v, or false if the version was already applied.
func (b *base[T]) begin(v graph.Version) ([]graph.Batch[T], bool) {
	if b.destroyed || v <= b.lastRun {
		return nil, false
	}
	b.lastRun = v
	return b.reader.Drain(v), true
}

// pull issues a pull in a transaction of its own. The message is built when the pull actually
// runs, which may be after the current transaction.
func (b *base[T]) pull(msg func() graph.Msg) error {
	return b.stream.Coordinator().PullTx(func() error {
		if b.destroyed {
			return nil
		}
		m := msg()
		b.log.V(2).Info("pull", "msg", m.String())
		b.reader.Pull(m)
		return nil
	})
}

func fullRecompute() graph.Msg { return graph.NewMsg(graph.CauseFullRecompute) }
