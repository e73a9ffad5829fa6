package graph

import (
	"slices"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/l7mp/materialite/pkg/dbsp"
)

// Batch is a unit of data queued on a reader.
type Batch[T comparable] struct {
	Version Version
	Data    dbsp.Multiset[T]
	// Reply is the pull this batch answers, nil for ordinary deltas.
	Reply *Msg
}

// Writer is the output end of a channel. A writer fans out to any number of readers, each with an
// independent queue. Data is queued first and readers are notified later, so that an operator with
// several inputs sees all its inputs for a version before running.
type Writer[T comparable] struct {
	name         string
	upstream     Upstream
	readers      []*Reader[T]
	pending      map[uuid.UUID][]*Reader[T]
	lastNotified Version
	log          logr.Logger
}

// NewWriter creates a writer. The upstream receives the pulls of the readers and is destroyed
// when the last reader is removed; it may be nil.
func NewWriter[T comparable](name string, upstream Upstream, log logr.Logger) *Writer[T] {
	return &Writer[T]{
		name:     name,
		upstream: upstream,
		pending:  make(map[uuid.UUID][]*Reader[T]),
		log:      log.WithName("writer").WithValues("name", name),
	}
}

// Name returns the name of the writer.
func (w *Writer[T]) Name() string { return w.name }

// LastNotified returns the last version the readers were notified about.
func (w *Writer[T]) LastNotified() Version { return w.lastNotified }

// NewReader creates a new reader. The reader only sees the versions after the last one already
// notified.
func (w *Writer[T]) NewReader() *Reader[T] {
	r := &Reader[T]{writer: w, notified: w.lastNotified}
	w.readers = append(w.readers, r)
	w.log.V(2).Info("reader added", "readers", len(w.readers))
	return r
}

// RemoveReader removes a reader. When the last reader is gone the upstream is destroyed.
func (w *Writer[T]) RemoveReader(r *Reader[T]) {
	i := slices.Index(w.readers, r)
	if i < 0 {
		return
	}
	w.readers = slices.Delete(w.readers, i, i+1)
	for id, rs := range w.pending {
		if j := slices.Index(rs, r); j >= 0 {
			rs = slices.Delete(rs, j, j+1)
			if len(rs) == 0 {
				delete(w.pending, id)
			} else {
				w.pending[id] = rs
			}
		}
	}
	w.log.V(2).Info("reader removed", "readers", len(w.readers))

	if len(w.readers) == 0 && w.upstream != nil {
		w.upstream.Destroy()
	}
}

// Close removes every reader and destroys the operators bound to them, tearing down everything
// downstream of the writer. The upstream is not destroyed.
func (w *Writer[T]) Close() {
	rs := w.readers
	w.readers = nil
	clear(w.pending)
	if len(rs) > 0 {
		w.log.V(1).Info("closing", "readers", len(rs))
	}
	for _, r := range rs {
		r.close()
	}
}

// Readers returns the number of readers.
func (w *Writer[T]) Readers() int { return len(w.readers) }

// Downstream returns the operators bound to the readers of the writer.
func (w *Writer[T]) Downstream() []Node {
	ret := []Node{}
	for _, r := range w.readers {
		if r.op != nil && !slices.Contains(ret, Node(r.op)) {
			ret = append(ret, r.op)
		}
	}
	return ret
}

func (w *Writer[T]) stale(v Version, what string) bool {
	if v > w.lastNotified {
		return false
	}
	w.log.V(1).Info("ignoring stale version", "op", what, "version", v, "last-notified", w.lastNotified)
	return true
}

// SendData queues an ordinary delta for version v on every reader. Empty deltas are not queued.
func (w *Writer[T]) SendData(v Version, data dbsp.Multiset[T]) {
	if w.stale(v, "send") || len(data) == 0 {
		return
	}
	w.log.V(5).Info("send", "version", v, "data", data.String())
	for _, r := range w.readers {
		r.queue = append(r.queue, Batch[T]{Version: v, Data: data})
	}
}

// SendReply queues data answering msg on the readers that pulled msg. A reply is queued even if
// it carries no data.
func (w *Writer[T]) SendReply(v Version, data dbsp.Multiset[T], msg Msg) {
	if w.stale(v, "reply") {
		return
	}
	rs := w.pending[msg.ID]
	delete(w.pending, msg.ID)
	w.log.V(5).Info("reply", "version", v, "msg", msg.String(), "readers", len(rs), "data", data.String())
	for _, r := range rs {
		r.queue = append(r.queue, Batch[T]{Version: v, Data: data, Reply: &msg})
	}
}

// Notify tells every reader that all data for version v has been queued. Versions not newer than
// the last notified one are ignored.
func (w *Writer[T]) Notify(v Version) {
	if w.stale(v, "notify") {
		return
	}
	w.lastNotified = v
	// pulls that nobody answered in this version are dropped
	clear(w.pending)

	w.log.V(8).Info("notify", "version", v, "readers", len(w.readers))
	for _, r := range slices.Clone(w.readers) {
		r.notify(v)
	}
}

func (w *Writer[T]) pull(r *Reader[T], msg Msg) {
	rs, seen := w.pending[msg.ID]
	if !slices.Contains(rs, r) {
		w.pending[msg.ID] = append(rs, r)
	}
	if seen {
		return
	}
	w.log.V(4).Info("pull", "msg", msg.String())
	if w.upstream != nil {
		w.upstream.Pull(msg)
	}
}

// Reader is the input end of a channel, bound to at most one operator.
type Reader[T comparable] struct {
	writer    *Writer[T]
	op        Operator
	queue     []Batch[T]
	notified  Version
	destroyed bool
}

// SetOperator binds the operator that is run when the reader is notified.
func (r *Reader[T]) SetOperator(op Operator) error {
	if r.op != nil {
		return ErrDuplicateOperatorBinding
	}
	r.op = op
	return nil
}

// Notified returns the last version notified on the reader.
func (r *Reader[T]) Notified() Version { return r.notified }

// Writer returns the writer the reader is attached to.
func (r *Reader[T]) Writer() *Writer[T] { return r.writer }

// Drain removes and returns the batches queued for versions up to v.
func (r *Reader[T]) Drain(v Version) []Batch[T] {
	n := 0
	for n < len(r.queue) && r.queue[n].Version <= v {
		n++
	}
	ret := r.queue[:n:n]
	r.queue = r.queue[n:]
	return ret
}

// Pull sends a pull request upstream. The reply is queued only on this reader.
func (r *Reader[T]) Pull(msg Msg) {
	if r.destroyed {
		return
	}
	r.writer.pull(r, msg)
}

// Destroy detaches the reader from its writer.
func (r *Reader[T]) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	r.queue = nil
	r.writer.RemoveReader(r)
}

func (r *Reader[T]) close() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	r.queue = nil
	if r.op != nil {
		r.op.Destroy()
	}
}

func (r *Reader[T]) notify(v Version) {
	if r.destroyed {
		return
	}
	r.notified = v
	if r.op != nil {
		r.op.Run(v)
	}
}

// Collected is the content of the batches an operator drained from one input for a version.
type Collected[T comparable] struct {
	// Delta is the sum of the ordinary deltas.
	Delta dbsp.Multiset[T]
	// Reply is the sum of the replies, nil if no reply arrived.
	Reply *Msg
	// ReplyData is the data of the replies.
	ReplyData dbsp.Multiset[T]
}

// Collect sums up drained batches. Multiple replies are merged into one carrying the ID of the
// first one and the strongest cause.
func Collect[T comparable](batches []Batch[T]) Collected[T] {
	ret := Collected[T]{Delta: dbsp.Multiset[T]{}, ReplyData: dbsp.Multiset[T]{}}
	for _, b := range batches {
		if b.Reply == nil {
			ret.Delta = append(ret.Delta, b.Data...)
			continue
		}
		if ret.Reply == nil {
			m := *b.Reply
			ret.Reply = &m
		} else {
			ret.Reply.Cause = mergeCause(ret.Reply.Cause, b.Reply.Cause)
		}
		ret.ReplyData = append(ret.ReplyData, b.Data...)
	}
	return ret
}
