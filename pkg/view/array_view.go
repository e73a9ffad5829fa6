package view

import (
	"slices"

	"github.com/l7mp/materialite/pkg/dbsp"
	"github.com/l7mp/materialite/pkg/graph"
)

// ArrayView materializes a stream into a flat list of values with their multiplicities, in the
// order the values first arrived.
type ArrayView[T comparable] struct {
	base[T]
	data      dbsp.Multiset[T]
	pos       map[T]int
	listeners registry[dbsp.Multiset[T]]
}

// NewArrayView creates a flat view over the stream. The limit option is ignored.
func NewArrayView[T comparable](s *graph.Stream[T], opts Options) (*ArrayView[T], error) {
	av := &ArrayView[T]{
		data:      dbsp.Multiset[T]{},
		pos:       make(map[T]int),
		listeners: newRegistry[dbsp.Multiset[T]](),
	}
	av.setup(s, "array-view", opts, av.run)
	if opts.WantInitialData {
		if err := av.pull(fullRecompute); err != nil {
			av.Destroy()
			return nil, err
		}
	}
	return av, nil
}

// Data returns a copy of the contents.
func (av *ArrayView[T]) Data() dbsp.Multiset[T] { return slices.Clone(av.data) }

// Len returns the number of distinct values.
func (av *ArrayView[T]) Len() int { return len(av.data) }

// Multiplicity returns the multiplicity of a value.
func (av *ArrayView[T]) Multiplicity(v T) int {
	if i, ok := av.pos[v]; ok {
		return av.data[i].Multiplicity
	}
	return 0
}

// On registers a listener called with a copy of the contents each time a version changes the
// view.
func (av *ArrayView[T]) On(fn func(dbsp.Multiset[T])) Handle { return av.listeners.on(fn) }

// Off removes a listener.
func (av *ArrayView[T]) Off(h Handle) bool { return av.listeners.off(h) }

// Pull rebuilds the view from the current contents of the upstream sources.
func (av *ArrayView[T]) Pull() error { return av.pull(fullRecompute) }

func (av *ArrayView[T]) run(v graph.Version) {
	batches, ok := av.begin(v)
	if !ok {
		return
	}

	changed := false
	for _, b := range batches {
		if b.Reply != nil && b.Reply.Cause == graph.CauseFullRecompute {
			av.data = dbsp.Multiset[T]{}
			clear(av.pos)
			changed = true
		}
		for _, e := range b.Data.Consolidate() {
			av.apply(e)
			changed = true
		}
	}

	if changed && av.listeners.len() > 0 {
		av.listeners.fire(av.Data())
	}
}

func (av *ArrayView[T]) apply(e dbsp.Entry[T]) {
	i, ok := av.pos[e.Value]
	if !ok {
		av.pos[e.Value] = len(av.data)
		av.data = append(av.data, e)
		return
	}

	av.data[i].Multiplicity += e.Multiplicity
	if av.data[i].Multiplicity != 0 {
		return
	}
	av.data = slices.Delete(av.data, i, i+1)
	delete(av.pos, e.Value)
	for j := i; j < len(av.data); j++ {
		av.pos[av.data[j].Value] = j
	}
}

// ValueView folds a stream into a single value. The step function is called for every change
// with the current accumulator, and returns the new one. A full recompute restarts the fold from
// the initial value.
type ValueView[T comparable, U any] struct {
	base[T]
	initial   U
	value     U
	step      func(acc U, v T, mult int) U
	listeners registry[U]
}

// NewValueView creates an accumulator view over the stream.
func NewValueView[T comparable, U any](s *graph.Stream[T], initial U, step func(acc U, v T, mult int) U, opts Options) (*ValueView[T, U], error) {
	vv := &ValueView[T, U]{
		initial:   initial,
		value:     initial,
		step:      step,
		listeners: newRegistry[U](),
	}
	vv.setup(s, "value-view", opts, vv.run)
	if opts.WantInitialData {
		if err := vv.pull(fullRecompute); err != nil {
			vv.Destroy()
			return nil, err
		}
	}
	return vv, nil
}

// NewCountView creates a view holding the total multiplicity of the stream.
func NewCountView[T comparable](s *graph.Stream[T], opts Options) (*ValueView[T, int], error) {
	return NewValueView(s, 0, func(acc int, _ T, mult int) int { return acc + mult }, opts)
}

// NewSumView creates a view holding the sum of f over the stream, weighted by multiplicity.
func NewSumView[T comparable](s *graph.Stream[T], f func(T) float64, opts Options) (*ValueView[T, float64], error) {
	return NewValueView(s, 0, func(acc float64, v T, mult int) float64 { return acc + f(v)*float64(mult) }, opts)
}

// Data returns the current value.
func (vv *ValueView[T, U]) Data() U { return vv.value }

// On registers a listener called with the new value each time a version changes the view.
func (vv *ValueView[T, U]) On(fn func(U)) Handle { return vv.listeners.on(fn) }

// Off removes a listener.
func (vv *ValueView[T, U]) Off(h Handle) bool { return vv.listeners.off(h) }

// Pull rebuilds the value from the current contents of the upstream sources.
func (vv *ValueView[T, U]) Pull() error { return vv.pull(fullRecompute) }

func (vv *ValueView[T, U]) run(v graph.Version) {
	batches, ok := vv.begin(v)
	if !ok {
		return
	}

	changed := false
	for _, b := range batches {
		if b.Reply != nil && b.Reply.Cause == graph.CauseFullRecompute {
			vv.value = vv.initial
			changed = true
		}
		for _, e := range b.Data {
			vv.value = vv.step(vv.value, e.Value, e.Multiplicity)
			changed = true
		}
	}

	if changed {
		vv.listeners.fire(vv.value)
	}
}
