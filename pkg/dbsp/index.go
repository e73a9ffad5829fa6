package dbsp

// Index is a multimap from a key to the Z-set entries of that key. Join and reduce operators use
// indexes to match deltas against the accumulated state of their inputs without rescanning the
// whole relation. An Index is owned by a single operator and must not be shared.
type Index[K, V comparable] struct {
	entries map[K]Multiset[V]
	// keys preserves insertion order so that joins and reductions are deterministic. Removed keys
	// leave a stale slot behind, pos holds the slot of every live key.
	keys []K
	pos  map[K]int
}

// NewIndex creates an empty index.
func NewIndex[K, V comparable]() *Index[K, V] {
	return &Index[K, V]{entries: make(map[K]Multiset[V]), pos: make(map[K]int)}
}

// IndexBy builds a fresh index from a Z-set using the key extractor.
func IndexBy[K, V comparable](ms Multiset[V], key func(V) K) *Index[K, V] {
	idx := NewIndex[K, V]()
	idx.AddMultiset(ms, key)
	return idx
}

func (idx *Index[K, V]) insertKey(key K) {
	idx.pos[key] = len(idx.keys)
	idx.keys = append(idx.keys, key)
}

func (idx *Index[K, V]) removeKey(key K) {
	delete(idx.entries, key)
	delete(idx.pos, key)
	idx.compactKeys()
}

// compactKeys drops the stale slots once they dominate the key list.
func (idx *Index[K, V]) compactKeys() {
	if len(idx.keys) <= 2*len(idx.entries)+16 {
		return
	}
	keys := make([]K, 0, len(idx.entries))
	for i, k := range idx.keys {
		if p, ok := idx.pos[k]; ok && p == i {
			idx.pos[k] = len(keys)
			keys = append(keys, k)
		}
	}
	idx.keys = keys
}

// each calls fn on the live keys in insertion order.
func (idx *Index[K, V]) each(fn func(K, Multiset[V])) {
	for i, k := range idx.keys {
		if p, ok := idx.pos[k]; ok && p == i {
			fn(k, idx.entries[k])
		}
	}
}

// Add appends an entry under a key.
func (idx *Index[K, V]) Add(key K, e Entry[V]) {
	es, ok := idx.entries[key]
	if !ok {
		idx.insertKey(key)
	}
	idx.entries[key] = append(es, e)
}

// AddMultiset adds all entries of a Z-set using the key extractor.
func (idx *Index[K, V]) AddMultiset(ms Multiset[V], key func(V) K) {
	for _, e := range ms {
		idx.Add(key(e.Value), e)
	}
}

// Set replaces the entries stored under a key. Setting an empty Z-set removes the key.
func (idx *Index[K, V]) Set(key K, ms Multiset[V]) {
	if len(ms) == 0 {
		idx.Delete(key)
		return
	}
	if _, ok := idx.entries[key]; !ok {
		idx.insertKey(key)
	}
	idx.entries[key] = ms
}

// Delete removes a key with all its entries.
func (idx *Index[K, V]) Delete(key K) {
	if _, ok := idx.entries[key]; !ok {
		return
	}
	idx.removeKey(key)
}

// Get returns the entries stored under a key. The returned slice must not be modified.
func (idx *Index[K, V]) Get(key K) Multiset[V] {
	return idx.entries[key]
}

// Has returns true if the index stores any entry under the key.
func (idx *Index[K, V]) Has(key K) bool {
	_, ok := idx.entries[key]
	return ok
}

// Keys returns the keys of the index in insertion order.
func (idx *Index[K, V]) Keys() []K {
	ret := make([]K, 0, len(idx.entries))
	idx.each(func(k K, _ Multiset[V]) { ret = append(ret, k) })
	return ret
}

// Len returns the number of keys in the index.
func (idx *Index[K, V]) Len() int {
	return len(idx.entries)
}

// Extend merges all entries of another index into this one.
func (idx *Index[K, V]) Extend(other *Index[K, V]) {
	other.each(func(k K, es Multiset[V]) {
		for _, e := range es {
			idx.Add(k, e)
		}
	})
}

// Compact consolidates the entries of the given keys and removes the keys left with no entries.
// Only the given keys are touched, so the cost is proportional to the change.
func (idx *Index[K, V]) Compact(keys ...K) {
	for _, k := range keys {
		es, ok := idx.entries[k]
		if !ok {
			continue
		}
		es = es.Consolidate()
		if len(es) == 0 {
			idx.removeKey(k)
			continue
		}
		idx.entries[k] = es
	}
}

// CompactAll compacts every key of the index.
func (idx *Index[K, V]) CompactAll() {
	idx.Compact(idx.Keys()...)
}

// Clear removes all entries.
func (idx *Index[K, V]) Clear() {
	idx.entries = make(map[K]Multiset[V])
	idx.pos = make(map[K]int)
	idx.keys = nil
}

// All returns all entries in the index as a single Z-set.
func (idx *Index[K, V]) All() Multiset[V] {
	ret := Multiset[V]{}
	idx.each(func(_ K, es Multiset[V]) { ret = append(ret, es...) })
	return ret
}

// JoinIndex computes the equi-join of two indexes: for every key present in both, each pair of
// entries produces combine(key, a, b) with the product of the multiplicities. The result is not
// consolidated. The smaller index drives the iteration.
func JoinIndex[K, A, B, C comparable](a *Index[K, A], b *Index[K, B], combine func(K, A, B) C) Multiset[C] {
	ret := Multiset[C]{}
	if a.Len() <= b.Len() {
		a.each(func(k K, as Multiset[A]) {
			bs, ok := b.entries[k]
			if !ok {
				return
			}
			for _, ea := range as {
				for _, eb := range bs {
					ret = append(ret, Entry[C]{
						Value:        combine(k, ea.Value, eb.Value),
						Multiplicity: ea.Multiplicity * eb.Multiplicity,
					})
				}
			}
		})
		return ret
	}

	b.each(func(k K, bs Multiset[B]) {
		as, ok := a.entries[k]
		if !ok {
			return
		}
		for _, ea := range as {
			for _, eb := range bs {
				ret = append(ret, Entry[C]{
					Value:        combine(k, ea.Value, eb.Value),
					Multiplicity: ea.Multiplicity * eb.Multiplicity,
				})
			}
		}
	})
	return ret
}
