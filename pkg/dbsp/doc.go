// Package dbsp implements the Z-set algebra (multisets with signed integer multiplicities) that
// underlies incremental view maintenance, following the Database Stream Processing (DBSP) model,
// see https://mihaibudiu.github.io/work/dbsp-spec.pdf.
//
// A change to a relation is represented as a delta Z-set: inserting a value adds it with
// multiplicity +1, deleting it adds it with multiplicity -1. Operators in the dataflow graph
// consume and produce deltas, so that the cost of keeping a view up to date is proportional to
// the size of the change instead of the size of the relation.
//
// Key components:
//   - Multiset: an ordered sequence of (value, multiplicity) entries with the usual Z-set
//     operations (map, filter, negate, concat, difference, consolidate, equality).
//   - Index: a multimap from a join or grouping key to Z-set entries, with an equi-join between
//     two indexes and compaction.
//
// Example usage:
//
//	delta := dbsp.FromValues(1, 1, 2)
//	delta = delta.Concat(dbsp.Singleton(2, -1)).Consolidate() // {1×2}
package dbsp
