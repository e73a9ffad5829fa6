package materialite

import (
	"errors"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/l7mp/materialite/pkg/graph"
	"github.com/l7mp/materialite/pkg/tree"
)

var _ graph.Coordinator = &Materialite{}

type txState int

const (
	stateIdle txState = iota
	stateInTx
	stateCommitting
	stateRollingBack
)

func (s txState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateInTx:
		return "in-transaction"
	case stateCommitting:
		return "committing"
	case stateRollingBack:
		return "rolling-back"
	default:
		return "unknown"
	}
}

// source is the coordinator's view of a source.
type source interface {
	graph.Node
	// commit applies the pending changes and queues the deltas and replies for version v.
	commit(v graph.Version)
	// notify notifies the readers of the source about version v.
	notify(v graph.Version)
	// rollback drops the pending changes.
	rollback()
}

// Options can be used to customize a coordinator.
type Options struct {
	// Name identifies the coordinator in logs and metrics. Default: "materialite".
	Name string
	// Logger is the base logger of the coordinator and everything built on it.
	Logger logr.Logger
	// Registerer, when set, is used to register the metrics of the coordinator.
	Registerer prometheus.Registerer
	// Rand is the priority source of the trees built by the sources. Default: tree.DefaultRand.
	Rand tree.Rand
}

// Materialite is the transaction coordinator. It owns the version counter and the set of
// sources, and runs every commit in two phases: first each dirty source applies its pending
// changes and queues the resulting deltas, then every source notifies its readers, which drives
// the operators and views downstream. The coordinator is single threaded: it must not be used
// from multiple goroutines concurrently.
type Materialite struct {
	name     string
	state    txState
	version  graph.Version
	sources  []source
	dirty    mapset.Set[source]
	deferred []func() error
	rnd      tree.Rand
	metrics  *metrics
	log      logr.Logger
}

// New creates a coordinator.
func New(opts Options) *Materialite {
	name := opts.Name
	if name == "" {
		name = "materialite"
	}
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = tree.DefaultRand
	}

	return &Materialite{
		name:    name,
		dirty:   mapset.NewThreadUnsafeSet[source](),
		rnd:     rnd,
		metrics: newMetrics(opts.Registerer, name),
		log:     log.WithName(name),
	}
}

// Version returns the last committed version.
func (m *Materialite) Version() graph.Version { return m.version }

// Logger returns the logger of the coordinator.
func (m *Materialite) Logger() logr.Logger { return m.log }

// Sources returns the registered sources in registration order.
func (m *Materialite) Sources() []graph.Node {
	ret := make([]graph.Node, len(m.sources))
	for i, s := range m.sources {
		ret[i] = s
	}
	return ret
}

// Tx runs body in a transaction. Source mutations in body are buffered and become visible
// downstream when the transaction commits. If body returns an error, the buffered mutations are
// discarded and a *TxError is returned. If body panics, the transaction is rolled back and the
// panic is propagated.
//
// Calling Tx from inside body just runs the nested body in the enclosing transaction. Calling Tx
// while a commit is in progress, e.g., from an effect or a view listener, defers the body to a
// transaction of its own that runs after the current one; the errors of deferred transactions
// are returned by the outermost Tx.
func (m *Materialite) Tx(body func() error) error {
	switch m.state {
	case stateInTx:
		return body()
	case stateCommitting, stateRollingBack:
		m.log.V(2).Info("deferring transaction", "state", m.state.String())
		m.deferred = append(m.deferred, body)
		return nil
	}

	err := m.run(body)
	if derr := m.runDeferred(); derr != nil {
		if err == nil {
			return derr
		}
		return errors.Join(err, derr)
	}
	return err
}

// PullTx runs body, which is expected to issue pulls, in a transaction of its own. If a
// transaction is in progress the body is deferred until after it finishes.
func (m *Materialite) PullTx(body func() error) error {
	m.metrics.pulls.Inc()
	if m.state != stateIdle {
		m.log.V(2).Info("deferring pull", "state", m.state.String())
		m.deferred = append(m.deferred, body)
		return nil
	}
	return m.Tx(body)
}

func (m *Materialite) run(body func() error) error {
	v := m.version + 1
	m.state = stateInTx
	m.log.V(4).Info("transaction started", "version", v)

	defer func() {
		if r := recover(); r != nil {
			m.log.Error(nil, "panic in transaction, rolling back", "version", v, "panic", r)
			m.rollback(v)
			m.deferred = nil
			panic(r)
		}
	}()

	if err := body(); err != nil {
		m.rollback(v)
		return &TxError{Version: v, Cause: err}
	}

	m.commit(v)
	return nil
}

func (m *Materialite) runDeferred() error {
	errs := []error{}
	for len(m.deferred) > 0 {
		body := m.deferred[0]
		m.deferred = m.deferred[1:]
		if err := m.run(body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Materialite) commit(v graph.Version) {
	start := time.Now()
	m.state = stateCommitting
	// writers have seen v as soon as the first source notifies, so v is used up even if a
	// callback panics halfway through the commit
	m.version = v

	// phase 1: dirty sources apply their pending changes
	for _, s := range m.sources {
		if m.dirty.Contains(s) {
			s.commit(v)
		}
	}
	dirty := m.dirty.Cardinality()
	m.dirty.Clear()

	// phase 2: all sources notify, so that every operator runs exactly once per version
	for _, s := range slices.Clone(m.sources) {
		s.notify(v)
	}

	m.state = stateIdle
	m.metrics.commits.Inc()
	m.metrics.version.Set(float64(v))
	m.metrics.commitDuration.Observe(time.Since(start).Seconds())
	m.log.V(2).Info("commit", "version", v, "dirty-sources", dirty, "duration", time.Since(start))
}

func (m *Materialite) rollback(v graph.Version) {
	m.state = stateRollingBack
	m.dirty.Each(func(s source) bool {
		s.rollback()
		return false
	})
	m.dirty.Clear()
	m.state = stateIdle
	m.metrics.rollbacks.Inc()
	m.log.V(2).Info("rollback", "version", v)
}

// markDirty schedules a source for phase 1 of the current transaction.
func (m *Materialite) markDirty(s source) {
	m.dirty.Add(s)
}

func (m *Materialite) register(s source) {
	if slices.Contains(m.sources, s) {
		return
	}
	m.sources = append(m.sources, s)
	m.log.V(1).Info("source registered", "source", s.Name(), "sources", len(m.sources))
}

func (m *Materialite) unregister(s source) {
	i := slices.Index(m.sources, s)
	if i < 0 {
		return
	}
	m.sources = slices.Delete(m.sources, i, i+1)
	m.dirty.Remove(s)
	m.log.V(1).Info("source unregistered", "source", s.Name(), "sources", len(m.sources))
}
