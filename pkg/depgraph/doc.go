// Package depgraph orders resource deployments by their declared
// dependencies.
//
// A node is a resource instance; an edge "A depends on B" means B must be
// created or updated before A. Order performs a strict topological sort and
// fails with a CycleError naming the offending nodes when the graph is not
// acyclic. OrderBestEffort instead prunes reported cycles and returns the
// pruned nodes separately, for the one dependency class where container
// level requirements can legitimately cycle through cross-referencing
// views. Transitive computes full transitive dependency sets with
// memoization.
package depgraph
