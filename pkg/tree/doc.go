/*
Package tree implements order-statistics treaps: randomized balanced binary search trees whose
nodes cache the size of their subtree, so that positional access (At) and rank lookup (FindIndex)
take O(log n) time.

Two variants share the same read API. Tree is persistent: Add and Delete copy the path to the
modified node and return a new tree, leaving every earlier version intact. MutableTree modifies
its nodes in place and invalidates outstanding iterators on each structural change.

Iterators keep an explicit stack so they can be paused and resumed, and can be started strictly
after or strictly before an arbitrary cursor value. Node priorities come from an injectable Rand;
use NewSeededRand to get reproducible tree shapes.
*/
package tree
