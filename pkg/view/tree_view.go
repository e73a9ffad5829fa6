package view

import (
	"maps"

	"github.com/l7mp/materialite/pkg/dbsp"
	"github.com/l7mp/materialite/pkg/graph"
	"github.com/l7mp/materialite/pkg/tree"
)

// TreeView materializes a stream into a persistent tree sorted by a comparator. Every version
// that changes the view publishes a new tree, so the tree handed to listeners and returned by
// Data is an immutable snapshot.
//
// A view with a limit keeps only the first Limit distinct values. Values past the window are
// dropped; when deletions shrink the window below the limit the view pulls the missing tail from
// upstream.
type TreeView[T comparable] struct {
	base[T]
	cmp       func(a, b T) int
	data      *tree.Tree[T]
	counts    map[T]int
	limit     int
	truncated bool
	refilling bool
	listeners registry[*tree.Tree[T]]
}

// NewTreeView creates a sorted view over the stream.
func NewTreeView[T comparable](s *graph.Stream[T], cmp func(a, b T) int, opts Options) (*TreeView[T], error) {
	tv := newTreeView(cmp, opts.Limit)
	tv.setup(s, "tree-view", opts, tv.run)
	if !opts.WantInitialData {
		return tv, nil
	}
	if err := tv.pull(tv.initialPull); err != nil {
		tv.Destroy()
		return nil, err
	}
	return tv, nil
}

// Materialize is an alias of NewTreeView.
func Materialize[T comparable](s *graph.Stream[T], cmp func(a, b T) int, opts Options) (*TreeView[T], error) {
	return NewTreeView(s, cmp, opts)
}

func newTreeView[T comparable](cmp func(a, b T) int, limit int) *TreeView[T] {
	return &TreeView[T]{
		cmp:       cmp,
		data:      tree.New[T](cmp),
		counts:    make(map[T]int),
		limit:     max(limit, 0),
		listeners: newRegistry[*tree.Tree[T]](),
	}
}

// Data returns the current contents.
func (tv *TreeView[T]) Data() *tree.Tree[T] { return tv.data }

// Values returns the values of the view in order.
func (tv *TreeView[T]) Values() []T { return tv.data.Values() }

// Size returns the number of distinct values in the view.
func (tv *TreeView[T]) Size() int { return tv.data.Size() }

// Multiplicity returns the multiplicity of a value in the view.
func (tv *TreeView[T]) Multiplicity(v T) int { return tv.counts[v] }

// Limit returns the limit of the view, 0 if unlimited.
func (tv *TreeView[T]) Limit() int { return tv.limit }

// Comparator returns the order of the view.
func (tv *TreeView[T]) Comparator() func(a, b T) int { return tv.cmp }

// On registers a listener called with the new contents each time a version changes the view.
func (tv *TreeView[T]) On(fn func(*tree.Tree[T])) Handle { return tv.listeners.on(fn) }

// Off removes a listener. Returns false if the handle is unknown.
func (tv *TreeView[T]) Off(h Handle) bool { return tv.listeners.off(h) }

// Pull rebuilds the view from the current contents of the upstream sources.
func (tv *TreeView[T]) Pull() error { return tv.pull(fullRecompute) }

// Rematerialize returns a new view over the same stream with a different limit, reusing the data
// of this view: only the values past the current window are pulled from upstream. The receiver
// is destroyed, its data stays readable.
func (tv *TreeView[T]) Rematerialize(limit int) (*TreeView[T], error) {
	nv := newTreeView(tv.cmp, limit)
	nv.data = tv.data
	nv.counts = maps.Clone(tv.counts)
	nv.truncated = tv.truncated
	// the new reader must exist before the old one goes away, or the pipeline is torn down
	nv.setup(tv.stream, "tree-view", Options{Name: tv.name, Limit: limit}, nv.run)
	tv.Destroy()

	for nv.limit > 0 && nv.data.Size() > nv.limit {
		nv.evictMax()
	}
	tv.log.V(2).Info("rematerialized", "limit", limit, "size", nv.data.Size(), "truncated", nv.truncated)

	if nv.needsRefill() {
		if err := nv.refill(); err != nil {
			nv.Destroy()
			return nil, err
		}
	}
	return nv, nil
}

func (tv *TreeView[T]) initialPull() graph.Msg {
	if tv.limit > 0 && tv.data.Empty() {
		return graph.NewMsg(graph.CausePartialRecompute, graph.TakeExpr{Limit: tv.limit, Comparator: tv.cmp})
	}
	return fullRecompute()
}

func (tv *TreeView[T]) needsRefill() bool {
	return tv.truncated && !tv.refilling && (tv.limit == 0 || tv.data.Size() < tv.limit)
}

// refill pulls the values after the current window.
func (tv *TreeView[T]) refill() error {
	tv.refilling = true
	return tv.pull(func() graph.Msg {
		hoisted := []graph.Expression{}
		if last, ok := tv.data.Max(); ok {
			hoisted = append(hoisted, graph.AfterExpr{Cursor: last, Comparator: tv.cmp})
		}
		if tv.limit > 0 {
			hoisted = append(hoisted, graph.TakeExpr{Limit: tv.limit - tv.data.Size(), Comparator: tv.cmp})
		}
		return graph.NewMsg(graph.CausePartialRecompute, hoisted...)
	})
}

func (tv *TreeView[T]) run(v graph.Version) {
	batches, ok := tv.begin(v)
	if !ok {
		return
	}

	changed := false
	for _, b := range batches {
		if b.Reply == nil {
			changed = tv.apply(b.Data, false) || changed
			continue
		}

		tv.refilling = false
		switch b.Reply.Cause {
		case graph.CauseFullRecompute:
			tv.log.V(2).Info("full recompute", "version", v, "entries", len(b.Data))
			tv.data = tv.data.Clear()
			tv.counts = make(map[T]int)
			tv.truncated = false
			tv.apply(b.Data, true)
			changed = true
		case graph.CausePartialRecompute:
			tv.log.V(2).Info("partial recompute", "version", v, "entries", len(b.Data))
			tv.truncated = exhaustedTake(b.Reply, b.Data)
			changed = tv.apply(b.Data, true) || changed
		case graph.CauseDifference:
			changed = tv.apply(b.Data, false) || changed
		}
	}

	if tv.needsRefill() {
		if err := tv.refill(); err != nil {
			tv.log.Error(err, "refill failed")
		}
	}

	if changed {
		tv.listeners.fire(tv.data)
	}
}

// exhaustedTake returns true if a partial reply delivered as many values as its Take allowed,
// in which case more values may exist upstream.
func exhaustedTake[T comparable](msg *graph.Msg, data dbsp.Multiset[T]) bool {
	for _, e := range msg.Hoisted {
		if t, ok := e.(graph.TakeExpr); ok {
			n := 0
			for _, e := range data.Consolidate() {
				if e.Multiplicity > 0 {
					n++
				}
			}
			return n >= t.Limit
		}
	}
	return false
}

func (tv *TreeView[T]) apply(ms dbsp.Multiset[T], reply bool) bool {
	changed := false
	for _, e := range ms.Consolidate() {
		if tv.applyEntry(e, reply) {
			changed = true
		}
	}
	return changed
}

func (tv *TreeView[T]) applyEntry(e dbsp.Entry[T], reply bool) bool {
	cur, tracked := tv.counts[e.Value]
	if !tracked && !reply && tv.beyondWindow(e.Value) {
		// the value arrives with the next refill, if it ever enters the window
		if e.Multiplicity > 0 {
			tv.truncated = true
		}
		return false
	}

	next := cur + e.Multiplicity
	if next == 0 {
		delete(tv.counts, e.Value)
	} else {
		tv.counts[e.Value] = next
	}

	switch {
	case cur <= 0 && next > 0:
		tv.insert(e.Value)
	case cur > 0 && next <= 0:
		tv.data = tv.data.Delete(e.Value)
	}
	return true
}

// beyondWindow returns true for the values a limited view must not track.
func (tv *TreeView[T]) beyondWindow(v T) bool {
	full := tv.limit > 0 && tv.data.Size() >= tv.limit
	if !full && !tv.truncated {
		return false
	}
	last, ok := tv.data.Max()
	return !ok || tv.cmp(v, last) > 0
}

func (tv *TreeView[T]) insert(v T) {
	tv.data = tv.data.Add(v)
	if tv.limit > 0 && tv.data.Size() > tv.limit {
		tv.evictMax()
	}
}

func (tv *TreeView[T]) evictMax() {
	last, ok := tv.data.Max()
	if !ok {
		return
	}
	tv.data = tv.data.Delete(last)
	delete(tv.counts, last)
	tv.truncated = true
}
