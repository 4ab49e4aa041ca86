// Package engine implements the reconciliation driver for the Marble
// deployment engine. It turns declarative resource definitions into an
// ordered plan of create, update, and delete operations and applies that
// plan against the platform API through the batch transport.
//
// The workflow is: Load -> Resolve -> Diff -> Plan -> Apply -> Summarize.
// Resource instances are ordered by the dependency resolver in pkg/depgraph,
// compared against observed remote state by pkg/diff, and shipped in batches
// by pkg/transport. The engine itself stays thin: it owns sequencing and
// result accounting, not retry or comparison logic.
package engine
