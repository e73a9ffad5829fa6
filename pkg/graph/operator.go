package graph

import (
	"github.com/go-logr/logr"
)

// input is the type-erased view of a reader an operator consumes.
type input interface {
	Notified() Version
	Pull(msg Msg)
	Destroy()
}

type output interface {
	Downstream() []Node
	Close()
}

// baseOp holds the bookkeeping shared by all operators.
type baseOp struct {
	name      string
	inputs    []input
	out       output
	lastRun   Version
	destroyed bool
	log       logr.Logger
}

func newBaseOp(name string, log logr.Logger) baseOp {
	return baseOp{name: name, log: log.WithName("op").WithValues("op", name)}
}

func (o *baseOp) Name() string       { return o.name }
func (o *baseOp) Kind() NodeKind     { return KindOperator }
func (o *baseOp) Downstream() []Node { return o.out.Downstream() }

// ready returns true exactly once per version, when every input has been notified about v.
func (o *baseOp) ready(v Version) bool {
	if o.destroyed || v <= o.lastRun {
		return false
	}
	for _, in := range o.inputs {
		if in.Notified() < v {
			return false
		}
	}
	o.lastRun = v
	o.log.V(4).Info("run", "version", v)
	return true
}

func (o *baseOp) pullInputs(msg Msg) {
	for _, in := range o.inputs {
		in.Pull(msg)
	}
}

// Destroy detaches the operator from its inputs, which may cascade further upstream, and closes
// its output, which destroys whatever is still reading it.
func (o *baseOp) Destroy() {
	if o.destroyed {
		return
	}
	o.destroyed = true
	o.log.V(1).Info("destroyed")
	for _, in := range o.inputs {
		in.Destroy()
	}
	o.out.Close()
}

// pullState tracks the pulls of a stateful operator. An operator that never saw the complete
// contents of its inputs forwards a full recompute upstream and rebuilds the state of every input
// that replied; inputs that do not reply keep the state built from their deltas. Once primed it
// answers every pull from its own state.
type pullState struct {
	primed  bool
	pending *Msg
	answers []Msg
}

// pull records msg and returns the message to forward upstream, if any.
func (p *pullState) pull(msg Msg) (Msg, bool) {
	if p.primed || p.pending != nil {
		p.answers = append(p.answers, msg.Full())
		return Msg{}, false
	}
	full := msg.Full()
	p.pending = &full
	return full, true
}

// resetting returns true if the operator must rebuild its state from the replies of this run.
func (p *pullState) resetting() bool { return p.pending != nil }

// flush returns the pulls to answer in this run.
func (p *pullState) flush() []Msg {
	ret := []Msg{}
	if p.pending != nil {
		ret = append(ret, *p.pending)
		p.pending = nil
		p.primed = true
	}
	ret = append(ret, p.answers...)
	p.answers = nil
	return ret
}
