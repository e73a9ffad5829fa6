package dbsp

import (
	"fmt"
	"strings"
)

// Entry is a value with its multiplicity in a Z-set. A positive multiplicity means the value is
// present that many times, a negative one means the value is retracted that many times.
type Entry[T comparable] struct {
	Value        T
	Multiplicity int
}

// String returns a string representation of the entry.
func (e Entry[T]) String() string {
	return fmt.Sprintf("%v×%d", e.Value, e.Multiplicity)
}

// Multiset implements Z-sets (multisets with signed integer multiplicities) over comparable
// values. The order of entries is insignificant for the semantics but it is preserved by all
// operations so that results are deterministic. A Multiset is not consolidated unless it was
// produced by Consolidate: it may contain the same value multiple times and zero multiplicities.
//
// Value equality is Go equality: structural for structs and arrays, identity for pointers.
type Multiset[T comparable] []Entry[T]

// FromValues creates a Z-set containing each value with multiplicity 1.
func FromValues[T comparable](values ...T) Multiset[T] {
	ret := make(Multiset[T], 0, len(values))
	for _, v := range values {
		ret = append(ret, Entry[T]{Value: v, Multiplicity: 1})
	}
	return ret
}

// Singleton creates a Z-set containing a single value with the given multiplicity.
func Singleton[T comparable](v T, mult int) Multiset[T] {
	return Multiset[T]{{Value: v, Multiplicity: mult}}
}

// Map applies f to each value and keeps the multiplicity. The result is not consolidated: f may
// map distinct values to the same output.
func Map[T, U comparable](ms Multiset[T], f func(T) U) Multiset[U] {
	ret := make(Multiset[U], 0, len(ms))
	for _, e := range ms {
		ret = append(ret, Entry[U]{Value: f(e.Value), Multiplicity: e.Multiplicity})
	}
	return ret
}

// FlatMap applies f to each value and adds every produced value with the multiplicity of the
// input entry.
func FlatMap[T, U comparable](ms Multiset[T], f func(T) []U) Multiset[U] {
	ret := make(Multiset[U], 0, len(ms))
	for _, e := range ms {
		for _, u := range f(e.Value) {
			ret = append(ret, Entry[U]{Value: u, Multiplicity: e.Multiplicity})
		}
	}
	return ret
}

// Filter drops the entries whose value fails the predicate.
func (ms Multiset[T]) Filter(p func(T) bool) Multiset[T] {
	ret := make(Multiset[T], 0, len(ms))
	for _, e := range ms {
		if p(e.Value) {
			ret = append(ret, e)
		}
	}
	return ret
}

// Negate multiplies every multiplicity by -1.
func (ms Multiset[T]) Negate() Multiset[T] {
	ret := make(Multiset[T], len(ms))
	for i, e := range ms {
		ret[i] = Entry[T]{Value: e.Value, Multiplicity: -e.Multiplicity}
	}
	return ret
}

// Concat performs Z-set addition without consolidation.
func (ms Multiset[T]) Concat(others ...Multiset[T]) Multiset[T] {
	n := len(ms)
	for _, o := range others {
		n += len(o)
	}
	ret := make(Multiset[T], 0, n)
	ret = append(ret, ms...)
	for _, o := range others {
		ret = append(ret, o...)
	}
	return ret
}

// Difference performs Z-set subtraction without consolidation.
func (ms Multiset[T]) Difference(other Multiset[T]) Multiset[T] {
	return ms.Concat(other.Negate())
}

// Consolidate sums the multiplicities per distinct value and drops the values whose multiplicity
// sums to zero. Values keep the position of their first occurrence. Consolidate is idempotent.
func (ms Multiset[T]) Consolidate() Multiset[T] {
	if len(ms) == 0 {
		return Multiset[T]{}
	}

	pos := make(map[T]int, len(ms))
	acc := make(Multiset[T], 0, len(ms))
	for _, e := range ms {
		if i, ok := pos[e.Value]; ok {
			acc[i].Multiplicity += e.Multiplicity
			continue
		}
		pos[e.Value] = len(acc)
		acc = append(acc, e)
	}

	ret := acc[:0]
	for _, e := range acc {
		if e.Multiplicity != 0 {
			ret = append(ret, e)
		}
	}
	return ret
}

// Counts returns the consolidated multiplicity of each value.
func (ms Multiset[T]) Counts() map[T]int {
	ret := make(map[T]int, len(ms))
	for _, e := range ms {
		ret[e.Value] += e.Multiplicity
		if ret[e.Value] == 0 {
			delete(ret, e.Value)
		}
	}
	return ret
}

// Equal checks whether two Z-sets contain the same values with the same total multiplicities,
// irrespective of order and consolidation.
func (ms Multiset[T]) Equal(other Multiset[T]) bool {
	a, b := ms.Counts(), other.Counts()
	if len(a) != len(b) {
		return false
	}
	for v, m := range a {
		if b[v] != m {
			return false
		}
	}
	return true
}

// Multiplicity returns the total multiplicity of a value.
func (ms Multiset[T]) Multiplicity(v T) int {
	total := 0
	for _, e := range ms {
		if e.Value == v {
			total += e.Multiplicity
		}
	}
	return total
}

// IsZero checks if the Z-set is empty after consolidation.
func (ms Multiset[T]) IsZero() bool {
	return len(ms.Counts()) == 0
}

// Size returns the number of values counting only positive consolidated multiplicities.
func (ms Multiset[T]) Size() int {
	total := 0
	for _, m := range ms.Counts() {
		if m > 0 {
			total += m
		}
	}
	return total
}

// Values returns the values of the Z-set in order, ignoring multiplicities.
func (ms Multiset[T]) Values() []T {
	ret := make([]T, len(ms))
	for i, e := range ms {
		ret[i] = e.Value
	}
	return ret
}

// String returns a string representation of the Z-set for debugging.
func (ms Multiset[T]) String() string {
	if len(ms) == 0 {
		return "∅"
	}

	parts := make([]string, len(ms))
	for i, e := range ms {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
