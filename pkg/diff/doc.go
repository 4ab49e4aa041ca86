// Package diff computes minimal, order-preserving change sets between the
// desired (local) and observed (remote) representation of one resource,
// both given as nested maps of JSON-like values.
//
// List comparison is driven by pluggable per-path identity strategies:
// value identity matches entries that are deeply equal after normalization
// (unordered-set-like arrays), keyed identity matches by a caller-supplied
// key extraction (elements that carry their own stable identifier and may
// have mutated fields). Entries present in both sides are updates, entries
// only in the local list are creations, and remote entries absent from the
// match are implicit deletions.
//
// The engine never fails on mismatched types at a path: an un-diffable
// path degenerates to whole-value replacement. All functions are pure.
package diff
